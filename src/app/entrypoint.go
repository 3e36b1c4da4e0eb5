package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

type Entrypoint interface {
	io.Closer
	Init(ctx context.Context) error
	Run(ctx context.Context) error
}

// Run drives an entrypoint through its lifecycle. SIGINT/SIGTERM cancel the
// context; Close runs exactly once whether Run finished or was interrupted.
func Run(ctx context.Context, e Entrypoint) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := e.Init(ctx); err != nil {
		return errors.Wrap(err, "entrypoint init")
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return e.Run(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()
		return e.Close()
	})

	if err := eg.Wait(); err != nil {
		fmt.Printf("app was shut down, reason: %s\n", err.Error())
		return err
	}

	return nil
}
