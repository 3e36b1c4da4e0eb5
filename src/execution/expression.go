package execution

import (
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// Expression evaluates to a single value against a row. Evaluate serves
// single-input operators; EvaluateJoin serves join predicates, where column
// references resolve against either the left or the right row.
type Expression interface {
	Evaluate(t *table.Tuple) table.Value
	EvaluateJoin(left, right *table.Tuple) table.Value
}

// JoinSide selects which input row a column reference reads in a join.
type JoinSide int

const (
	LeftSide JoinSide = iota
	RightSide
)

// ColumnRef reads one column of the input row.
type ColumnRef struct {
	side   JoinSide
	colIdx int
}

func NewColumnRef(colIdx int) *ColumnRef {
	return &ColumnRef{side: LeftSide, colIdx: colIdx}
}

func NewJoinColumnRef(side JoinSide, colIdx int) *ColumnRef {
	return &ColumnRef{side: side, colIdx: colIdx}
}

func (c *ColumnRef) Side() JoinSide {
	return c.side
}

func (c *ColumnRef) ColIdx() int {
	return c.colIdx
}

func (c *ColumnRef) Evaluate(t *table.Tuple) table.Value {
	return t.Value(c.colIdx)
}

func (c *ColumnRef) EvaluateJoin(left, right *table.Tuple) table.Value {
	if c.side == LeftSide {
		return left.Value(c.colIdx)
	}

	return right.Value(c.colIdx)
}

// Constant is a literal value.
type Constant struct {
	value table.Value
}

func NewConstant(v table.Value) *Constant {
	return &Constant{value: v}
}

func (c *Constant) Value() table.Value {
	return c.value
}

func (c *Constant) Evaluate(*table.Tuple) table.Value {
	return c.value
}

func (c *Constant) EvaluateJoin(*table.Tuple, *table.Tuple) table.Value {
	return c.value
}

type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNotEq
	CmpLess
	CmpLessEq
	CmpGreater
	CmpGreaterEq
)

// Comparison compares its operands under SQL semantics: a NULL operand
// makes the result NULL.
type Comparison struct {
	op          CmpOp
	left, right Expression
}

func NewComparison(op CmpOp, left, right Expression) *Comparison {
	return &Comparison{op: op, left: left, right: right}
}

func (c *Comparison) Op() CmpOp {
	return c.op
}

func (c *Comparison) Left() Expression {
	return c.left
}

func (c *Comparison) Right() Expression {
	return c.right
}

func (c *Comparison) Evaluate(t *table.Tuple) table.Value {
	return c.apply(c.left.Evaluate(t), c.right.Evaluate(t))
}

func (c *Comparison) EvaluateJoin(left, right *table.Tuple) table.Value {
	return c.apply(c.left.EvaluateJoin(left, right), c.right.EvaluateJoin(left, right))
}

func (c *Comparison) apply(lhs, rhs table.Value) table.Value {
	if lhs.IsNull() || rhs.IsNull() {
		return table.NewNull(table.TypeBoolean)
	}

	cmp := lhs.Compare(rhs)

	switch c.op {
	case CmpEq:
		return table.NewBoolean(cmp == 0)
	case CmpNotEq:
		return table.NewBoolean(cmp != 0)
	case CmpLess:
		return table.NewBoolean(cmp < 0)
	case CmpLessEq:
		return table.NewBoolean(cmp <= 0)
	case CmpGreater:
		return table.NewBoolean(cmp > 0)
	case CmpGreaterEq:
		return table.NewBoolean(cmp >= 0)
	default:
		assert.Assert(false, "unknown comparison op %d", c.op)
		return table.Value{}
	}
}

type LogicOp int

const (
	LogicAnd LogicOp = iota
	LogicOr
)

// Logic combines boolean operands with three-valued AND/OR.
type Logic struct {
	op          LogicOp
	left, right Expression
}

func NewLogic(op LogicOp, left, right Expression) *Logic {
	return &Logic{op: op, left: left, right: right}
}

func (l *Logic) Op() LogicOp {
	return l.op
}

func (l *Logic) Left() Expression {
	return l.left
}

func (l *Logic) Right() Expression {
	return l.right
}

func (l *Logic) Evaluate(t *table.Tuple) table.Value {
	return l.apply(l.left.Evaluate(t), l.right.Evaluate(t))
}

func (l *Logic) EvaluateJoin(left, right *table.Tuple) table.Value {
	return l.apply(l.left.EvaluateJoin(left, right), l.right.EvaluateJoin(left, right))
}

func (l *Logic) apply(lhs, rhs table.Value) table.Value {
	switch l.op {
	case LogicAnd:
		if isFalse(lhs) || isFalse(rhs) {
			return table.NewBoolean(false)
		}
		if lhs.IsNull() || rhs.IsNull() {
			return table.NewNull(table.TypeBoolean)
		}

		return table.NewBoolean(true)
	case LogicOr:
		if isTrue(lhs) || isTrue(rhs) {
			return table.NewBoolean(true)
		}
		if lhs.IsNull() || rhs.IsNull() {
			return table.NewNull(table.TypeBoolean)
		}

		return table.NewBoolean(false)
	default:
		assert.Assert(false, "unknown logic op %d", l.op)
		return table.Value{}
	}
}

func isTrue(v table.Value) bool {
	return !v.IsNull() && v.AsBool()
}

func isFalse(v table.Value) bool {
	return !v.IsNull() && !v.AsBool()
}

// truthy is the predicate acceptance rule: NULL filters the row out.
func truthy(v table.Value) bool {
	return isTrue(v)
}
