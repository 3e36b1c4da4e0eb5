package execution

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// Limit passes through at most limit rows.
type Limit struct {
	child   Executor
	limit   int
	emitted int
}

func NewLimit(child Executor, limit int) *Limit {
	return &Limit{child: child, limit: limit}
}

func (e *Limit) Init() error {
	e.emitted = 0
	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init limit input")
	}

	return nil
}

func (e *Limit) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	remaining := e.limit - e.emitted
	if remaining <= 0 {
		return false
	}
	if batchSize > remaining {
		batchSize = remaining
	}

	before := len(*tuples)
	ok := e.child.Next(tuples, rids, batchSize)
	e.emitted += len(*tuples) - before

	return ok
}

func (e *Limit) OutputSchema() *table.Schema {
	return e.child.OutputSchema()
}

// Projection maps each input row through an expression list.
type Projection struct {
	child  Executor
	exprs  []Expression
	schema *table.Schema
}

func NewProjection(child Executor, exprs []Expression, schema *table.Schema) *Projection {
	return &Projection{child: child, exprs: exprs, schema: schema}
}

func (e *Projection) Init() error {
	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init projection input")
	}

	return nil
}

func (e *Projection) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	var (
		in     []*table.Tuple
		inRids []common.RecordID
	)
	if !e.child.Next(&in, &inRids, batchSize) {
		return false
	}

	for i, t := range in {
		values := make([]table.Value, len(e.exprs))
		for j, expr := range e.exprs {
			values[j] = expr.Evaluate(t)
		}

		*tuples = append(*tuples, table.NewTuple(values))
		*rids = append(*rids, inRids[i])
	}

	return true
}

func (e *Projection) OutputSchema() *table.Schema {
	return e.schema
}

// Filter drops rows whose predicate is not true.
type Filter struct {
	child     Executor
	predicate Expression
}

func NewFilter(child Executor, predicate Expression) *Filter {
	return &Filter{child: child, predicate: predicate}
}

func (e *Filter) Init() error {
	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init filter input")
	}

	return nil
}

func (e *Filter) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize {
		var (
			in     []*table.Tuple
			inRids []common.RecordID
		)
		if !e.child.Next(&in, &inRids, batchSize-produced) {
			break
		}

		for i, t := range in {
			if !truthy(e.predicate.Evaluate(t)) {
				continue
			}

			*tuples = append(*tuples, t)
			*rids = append(*rids, inRids[i])
			produced++
		}
	}

	return produced > 0
}

func (e *Filter) OutputSchema() *table.Schema {
	return e.child.OutputSchema()
}

// Values emits a fixed list of rows.
type Values struct {
	rows   [][]table.Value
	schema *table.Schema
	pos    int
}

func NewValues(rows [][]table.Value, schema *table.Schema) *Values {
	return &Values{rows: rows, schema: schema}
}

func (e *Values) Init() error {
	e.pos = 0
	return nil
}

func (e *Values) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize && e.pos < len(e.rows) {
		*tuples = append(*tuples, table.NewTuple(e.rows[e.pos]))
		*rids = append(*rids, common.RecordID{})
		e.pos++
		produced++
	}

	return produced > 0
}

func (e *Values) OutputSchema() *table.Schema {
	return e.schema
}
