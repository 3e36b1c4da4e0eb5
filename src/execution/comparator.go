package execution

import (
	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

// NullOrder places NULLs relative to non-NULL values in a sort key.
type NullOrder int

const (
	// NullsDefault resolves to first for ascending keys and last for
	// descending ones.
	NullsDefault NullOrder = iota
	NullsFirst
	NullsLast
)

// OrderBy is one sort key: the expression, the direction and the NULL
// placement.
type OrderBy struct {
	Expr  Expression
	Desc  bool
	Nulls NullOrder
}

func (o OrderBy) nullsFirst() bool {
	switch o.Nulls {
	case NullsFirst:
		return true
	case NullsLast:
		return false
	default:
		return !o.Desc
	}
}

// compareTuples orders two rows under the key list, evaluating keys left to
// right. Ties compare equal, which keeps stable sorts stable.
func compareTuples(a, b *table.Tuple, order []OrderBy) int {
	for _, key := range order {
		av := key.Expr.Evaluate(a)
		bv := key.Expr.Evaluate(b)

		if av.IsNull() || bv.IsNull() {
			if av.IsNull() && bv.IsNull() {
				continue
			}

			cmp := 1
			if av.IsNull() {
				cmp = -1
			}
			if !key.nullsFirst() {
				cmp = -cmp
			}

			return cmp
		}

		cmp := av.Compare(bv)
		if cmp == 0 {
			continue
		}
		if key.Desc {
			cmp = -cmp
		}

		return cmp
	}

	return 0
}
