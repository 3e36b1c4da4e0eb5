package execution

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/RelDB/src/storage/table"
)

func aggSchema(cols ...string) *table.Schema {
	out := make([]table.Column, len(cols))
	for i, name := range cols {
		out[i] = table.Column{Name: name, Type: table.TypeInteger}
	}

	return table.NewSchema(out)
}

func TestAggregation_GlobalOverEmptyInput(t *testing.T) {
	ctx := newExecContext(t, 16)

	e := NewAggregation(ctx, NewValues(nil, intColumn("n")), nil,
		[]Aggregate{
			{Type: AggCountStar},
			{Type: AggSum, Expr: NewColumnRef(0)},
		},
		aggSchema("count", "sum"))

	got := drainAll(t, e)
	require.Len(t, got, 1)

	// COUNT(*) по пустому входу равен нулю, остальные агрегаты NULL
	assert.Equal(t, int64(0), got[0].Value(0).AsInt())
	assert.True(t, got[0].Value(1).IsNull())
}

func TestAggregation_GlobalAggregates(t *testing.T) {
	ctx := newExecContext(t, 16)

	e := NewAggregation(ctx, NewValues(intRows(4, 1, 7, 2), intColumn("n")), nil,
		[]Aggregate{
			{Type: AggCountStar},
			{Type: AggSum, Expr: NewColumnRef(0)},
			{Type: AggMin, Expr: NewColumnRef(0)},
			{Type: AggMax, Expr: NewColumnRef(0)},
		},
		aggSchema("count", "sum", "min", "max"))

	got := drainAll(t, e)
	require.Len(t, got, 1)

	assert.Equal(t, int64(4), got[0].Value(0).AsInt())
	assert.Equal(t, int64(14), got[0].Value(1).AsInt())
	assert.Equal(t, int64(1), got[0].Value(2).AsInt())
	assert.Equal(t, int64(7), got[0].Value(3).AsInt())
}

func TestAggregation_CountSkipsNulls(t *testing.T) {
	ctx := newExecContext(t, 16)

	rows := [][]table.Value{
		{table.NewInteger(1)},
		{table.NewNull(table.TypeInteger)},
		{table.NewInteger(3)},
	}

	e := NewAggregation(ctx, NewValues(rows, intColumn("n")), nil,
		[]Aggregate{
			{Type: AggCountStar},
			{Type: AggCount, Expr: NewColumnRef(0)},
			{Type: AggSum, Expr: NewColumnRef(0)},
		},
		aggSchema("count_star", "count", "sum"))

	got := drainAll(t, e)
	require.Len(t, got, 1)

	assert.Equal(t, int64(3), got[0].Value(0).AsInt())
	assert.Equal(t, int64(2), got[0].Value(1).AsInt())
	assert.Equal(t, int64(4), got[0].Value(2).AsInt())
}

func TestAggregation_GroupBy(t *testing.T) {
	ctx := newExecContext(t, 16)

	schema := table.NewSchema([]table.Column{
		{Name: "grp", Type: table.TypeInteger},
		{Name: "val", Type: table.TypeInteger},
	})
	rows := [][]table.Value{
		{table.NewInteger(1), table.NewInteger(10)},
		{table.NewInteger(2), table.NewInteger(20)},
		{table.NewInteger(1), table.NewInteger(30)},
		{table.NewInteger(2), table.NewInteger(40)},
		{table.NewInteger(3), table.NewInteger(50)},
	}

	e := NewAggregation(ctx, NewValues(rows, schema),
		[]Expression{NewColumnRef(0)},
		[]Aggregate{
			{Type: AggCountStar},
			{Type: AggSum, Expr: NewColumnRef(1)},
		},
		aggSchema("grp", "count", "sum"))

	got := drainAll(t, e)
	require.Len(t, got, 3)

	type groupRow struct{ grp, count, sum int64 }
	rowsOut := make([]groupRow, 0, len(got))
	for _, row := range got {
		rowsOut = append(rowsOut, groupRow{
			row.Value(0).AsInt(), row.Value(1).AsInt(), row.Value(2).AsInt(),
		})
	}
	sort.Slice(rowsOut, func(i, j int) bool { return rowsOut[i].grp < rowsOut[j].grp })

	assert.Equal(t, []groupRow{
		{1, 2, 40},
		{2, 2, 60},
		{3, 1, 50},
	}, rowsOut)
}

func TestAggregation_GroupByEmptyInputYieldsNoRows(t *testing.T) {
	ctx := newExecContext(t, 16)

	e := NewAggregation(ctx, NewValues(nil, intColumn("n")),
		[]Expression{NewColumnRef(0)},
		[]Aggregate{{Type: AggCountStar}},
		aggSchema("grp", "count"))

	assert.Empty(t, drainAll(t, e))
}

func TestAggregation_NullKeysGroupTogether(t *testing.T) {
	ctx := newExecContext(t, 16)

	rows := [][]table.Value{
		{table.NewNull(table.TypeInteger)},
		{table.NewNull(table.TypeInteger)},
		{table.NewInteger(1)},
	}

	e := NewAggregation(ctx, NewValues(rows, intColumn("n")),
		[]Expression{NewColumnRef(0)},
		[]Aggregate{{Type: AggCountStar}},
		aggSchema("grp", "count"))

	got := drainAll(t, e)
	require.Len(t, got, 2)

	for _, row := range got {
		if row.Value(0).IsNull() {
			assert.Equal(t, int64(2), row.Value(1).AsInt())
		} else {
			assert.Equal(t, int64(1), row.Value(1).AsInt())
		}
	}
}
