package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/RelDB/src/app"
)

func initStats() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Opens the database and prints engine counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), &app.StatsEntrypoint{
				EnvPath: rootCmd.Options.EnvPath,
			})
		},
	})
}
