package execution

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// Executor is the Volcano-style operator contract. Next appends up to
// batchSize rows to the output slices and reports whether it produced any;
// a false return with nothing appended is end of stream. Short batches are
// allowed. Rows that do not originate in a table heap carry zero record ids
// which callers must not consult.
type Executor interface {
	Init() error
	Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool
	OutputSchema() *table.Schema
}

// Context carries the per-query environment shared by an operator tree.
type Context struct {
	queryID uuid.UUID
	pool    *bufferpool.Manager
	logger  *zap.Logger
}

func NewContext(pool *bufferpool.Manager, logger *zap.Logger) *Context {
	queryID := uuid.New()

	return &Context{
		queryID: queryID,
		pool:    pool,
		logger:  logger.With(zap.String("query_id", queryID.String())),
	}
}

func (c *Context) QueryID() uuid.UUID {
	return c.queryID
}

func (c *Context) Pool() *bufferpool.Manager {
	return c.pool
}

func (c *Context) Logger() *zap.Logger {
	return c.logger
}
