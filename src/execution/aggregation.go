package execution

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

type AggType int

const (
	AggCountStar AggType = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

// Aggregate is one aggregate expression. Expr is nil for COUNT(*).
type Aggregate struct {
	Type AggType
	Expr Expression
}

// Aggregation is a hash group-by. NULL inputs are skipped by every aggregate
// except COUNT(*); a global aggregation over an empty input still yields one
// row, with COUNT(*) = 0 and everything else NULL.
type Aggregation struct {
	ctx     *Context
	child   Executor
	groupBy []Expression
	aggs    []Aggregate
	schema  *table.Schema

	results []*table.Tuple
	pos     int
}

type aggGroup struct {
	keys   []table.Value
	states []table.Value
}

func NewAggregation(
	ctx *Context,
	child Executor,
	groupBy []Expression,
	aggs []Aggregate,
	schema *table.Schema,
) *Aggregation {
	assert.Assert(schema.ColumnCount() == len(groupBy)+len(aggs),
		"aggregation schema has %d columns, want %d",
		schema.ColumnCount(), len(groupBy)+len(aggs))

	return &Aggregation{
		ctx:     ctx,
		child:   child,
		groupBy: groupBy,
		aggs:    aggs,
		schema:  schema,
	}
}

func (e *Aggregation) Init() error {
	e.results = nil
	e.pos = 0

	if err := e.child.Init(); err != nil {
		return errors.Wrap(err, "init aggregation input")
	}

	groups := make(map[uint64][]*aggGroup)
	order := make([]*aggGroup, 0)

	var (
		tuples []*table.Tuple
		rids   []common.RecordID
	)
	for {
		tuples = tuples[:0]
		rids = rids[:0]
		if !e.child.Next(&tuples, &rids, common.BatchSize) {
			break
		}

		for _, t := range tuples {
			g, created := e.findGroup(groups, t)
			if created {
				order = append(order, g)
			}
			e.accumulate(g, t)
		}
	}

	if len(order) == 0 && len(e.groupBy) == 0 {
		order = append(order, e.newGroup(nil))
	}

	for _, g := range order {
		values := make([]table.Value, 0, len(g.keys)+len(g.states))
		values = append(values, g.keys...)
		values = append(values, g.states...)
		e.results = append(e.results, table.NewTuple(values))
	}

	return nil
}

func (e *Aggregation) findGroup(groups map[uint64][]*aggGroup, t *table.Tuple) (*aggGroup, bool) {
	keys := make([]table.Value, len(e.groupBy))
	for i, expr := range e.groupBy {
		keys[i] = expr.Evaluate(t)
	}

	h := uint64(14695981039346656037)
	for _, k := range keys {
		h = (h ^ k.Hash()) * 1099511628211
	}

	for _, g := range groups[h] {
		if groupKeysEqual(g.keys, keys) {
			return g, false
		}
	}

	g := e.newGroup(keys)
	groups[h] = append(groups[h], g)

	return g, true
}

// groupKeysEqual groups NULLs together, unlike comparison predicates.
func groupKeysEqual(a, b []table.Value) bool {
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}

	return true
}

func (e *Aggregation) newGroup(keys []table.Value) *aggGroup {
	states := make([]table.Value, len(e.aggs))
	for i, agg := range e.aggs {
		if agg.Type == AggCountStar {
			states[i] = table.NewInteger(0)
			continue
		}

		states[i] = table.NewNull(table.TypeInteger)
	}

	return &aggGroup{keys: keys, states: states}
}

func (e *Aggregation) accumulate(g *aggGroup, t *table.Tuple) {
	for i, agg := range e.aggs {
		if agg.Type == AggCountStar {
			g.states[i] = table.NewInteger(g.states[i].AsInt() + 1)
			continue
		}

		v := agg.Expr.Evaluate(t)
		if v.IsNull() {
			continue
		}

		switch agg.Type {
		case AggCount:
			if g.states[i].IsNull() {
				g.states[i] = table.NewInteger(1)
			} else {
				g.states[i] = table.NewInteger(g.states[i].AsInt() + 1)
			}
		case AggSum:
			if g.states[i].IsNull() {
				g.states[i] = table.NewInteger(v.AsInt())
			} else {
				g.states[i] = table.NewInteger(g.states[i].AsInt() + v.AsInt())
			}
		case AggMin:
			if g.states[i].IsNull() || v.Compare(g.states[i]) < 0 {
				g.states[i] = v
			}
		case AggMax:
			if g.states[i].IsNull() || v.Compare(g.states[i]) > 0 {
				g.states[i] = v
			}
		default:
			assert.Assert(false, "unknown aggregate type %d", agg.Type)
		}
	}
}

func (e *Aggregation) Next(tuples *[]*table.Tuple, rids *[]common.RecordID, batchSize int) bool {
	produced := 0
	for produced < batchSize && e.pos < len(e.results) {
		*tuples = append(*tuples, e.results[e.pos])
		*rids = append(*rids, common.RecordID{})
		e.pos++
		produced++
	}

	return produced > 0
}

func (e *Aggregation) OutputSchema() *table.Schema {
	return e.schema
}
