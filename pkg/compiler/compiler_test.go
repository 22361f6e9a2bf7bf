package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/dsl"
)

func newCompiler() *Compiler {
	return New(catalog.Get(), DefaultConfig())
}

func cond(field, op string, value interface{}) *dsl.Filter {
	return &dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{Field: field, Operator: op, Value: value}}
}

func and(children ...*dsl.Filter) *dsl.Filter { return &dsl.Filter{Kind: dsl.NodeAnd, And: children} }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

func TestCompile_SimpleValueFilter(t *testing.T) {
	// "PE less than 15" end to end.
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "< $1")
	assert.Equal(t, []interface{}{15.0, 100}, res.Params)
}

func TestCompile_Period_AllQuartersPositive(t *testing.T) {
	// "positive earnings last 4 quarters" end to end.
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "net_income", Operator: ">", Value: 0.0,
		Period: &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "all"},
	}}), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "NOT EXISTS")
	assert.Contains(t, res.SQL, "<= $")
	assert.Contains(t, res.SQL, "LIMIT $")
	assert.Contains(t, res.Params, 0.0)
	assert.Contains(t, res.Params, 4)
	assert.Contains(t, res.Params, 100)
	assert.True(t, res.UsesTimeSeries)
}

func TestCompile_CrossFieldComparison(t *testing.T) {
	// "current price below analyst target".
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "close_price", Operator: "<", Value: "price_target_avg", ValueIsField: true,
	}}), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "ph.close < ae.price_target_avg")
	assert.Contains(t, res.RequiredTables, "price_history")
	assert.Contains(t, res.RequiredTables, "analyst_estimates")
}

func TestCompile_DerivedMetric_DivideByZeroGuard(t *testing.T) {
	// The expanded formula must carry its divide-by-zero guard.
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("debt_to_fcf", "<", 3.0)), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "NULLIF(fq.free_cash_flow")
	assert.Equal(t, []interface{}{3.0, 100}, res.Params)
	assert.True(t, res.UsesDerived)
}

func TestCompile_NoUnparameterizedLiterals(t *testing.T) {
	// Every user-supplied literal must come out as a placeholder.
	c := newCompiler()
	q := &dsl.Query{Filter: and(
		cond("pe_ratio", "<", 15.0),
		cond("sector", "=", "Technology"),
		cond("exchange", "in", []interface{}{"NASDAQ", "NYSE"}),
	), Limit: 50}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.NotContains(t, res.SQL, "Technology")
	assert.NotContains(t, res.SQL, "NASDAQ")
	assert.NotContains(t, res.SQL, "15")
	assert.NotContains(t, res.SQL, "50")
}

func TestCompile_ParamCount_MatchesPlaceholders(t *testing.T) {
	// Params length equals the number of distinct placeholders emitted.
	c := newCompiler()
	q := &dsl.Query{Filter: and(
		cond("pe_ratio", "between", []interface{}{5.0, 20.0}),
		cond("sector", "in", []interface{}{"Technology", "Healthcare", "Energy"}),
	), Limit: 25}

	res, err := c.Compile(q)
	require.NoError(t, err)
	maxN := 0
	for i := range res.Params {
		ph := "$" + itoa(i+1)
		assert.Contains(t, res.SQL, ph)
		maxN = i + 1
	}
	assert.Equal(t, len(res.Params), maxN)
}

func TestCompile_Period_ParamCount_ValuePlusN(t *testing.T) {
	// A period condition pushes exactly two params — the window depth N
	// (LIMIT placeholder, emitted first in textual order) and the
	// comparison value — plus the trailing limit.
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		Period: &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "any"},
	}}), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{4, 15.0, 100}, res.Params)
}

func TestCompile_Determinism(t *testing.T) {
	// Two compilations of the same tree produce
	// byte-identical SQL and param arrays.
	c := newCompiler()
	build := func() *dsl.Query {
		return &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0), cond("roe", ">", 0.1)), Limit: 50}
	}

	r1, err := c.Compile(build())
	require.NoError(t, err)
	r2, err := c.Compile(build())
	require.NoError(t, err)

	assert.Equal(t, r1.SQL, r2.SQL)
	assert.Equal(t, r1.Params, r2.Params)
}

func TestCompile_EmptyFilter_WhereOneEqualsOne(t *testing.T) {
	// Translating an empty NL query produces WHERE 1=1 — the degenerate
	// {and:[]} filter compiles to a full-universe screen, never an error.
	c := newCompiler()
	q := &dsl.Query{Filter: &dsl.Filter{Kind: dsl.NodeAnd}, Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "WHERE 1=1")
	assert.Equal(t, []interface{}{100}, res.Params)
}

func TestCompile_Between(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "between", []interface{}{5.0, 20.0})), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "BETWEEN $1 AND $2")
	assert.Equal(t, []interface{}{5.0, 20.0, 100}, res.Params)
}

func TestCompile_InNotIn(t *testing.T) {
	c := newCompiler()

	q := &dsl.Query{Filter: and(cond("sector", "in", []interface{}{"Technology", "Healthcare"})), Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "IN ($1, $2)")

	q = &dsl.Query{Filter: and(cond("sector", "not_in", []interface{}{"Energy"})), Limit: 100}
	res, err = c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "NOT IN ($1)")
}

func TestCompile_Exists(t *testing.T) {
	c := newCompiler()

	q := &dsl.Query{Filter: and(cond("buyback_announced", "exists", true)), Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "IS NOT NULL")

	q = &dsl.Query{Filter: and(cond("buyback_announced", "exists", false)), Limit: 100}
	res, err = c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "IS NULL")
}

func TestCompile_AndOrNot(t *testing.T) {
	c := newCompiler()

	q := &dsl.Query{Filter: &dsl.Filter{Kind: dsl.NodeOr, Or: []*dsl.Filter{
		cond("sector", "=", "Technology"),
		cond("sector", "=", "Healthcare"),
	}}, Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, " OR ")

	q = &dsl.Query{Filter: &dsl.Filter{Kind: dsl.NodeNot, Not: cond("pe_ratio", "<", 0.0)}, Limit: 100}
	res, err = c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "NOT (")
}

func TestCompile_NullHandling_UseDefault(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		NullHandling: &dsl.NullHandling{Strategy: "use_default", DefaultValue: 0.0},
	}}), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "COALESCE(")
}

func TestCompile_NullHandling_UseLatest(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		NullHandling: &dsl.NullHandling{Strategy: "use_latest"},
	}}), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "IS NOT NULL ORDER BY")
}

func TestCompile_NullHandling_Interpolate_Rejected(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		NullHandling: &dsl.NullHandling{Strategy: "interpolate"},
	}}), Limit: 100}

	_, err := c.Compile(q)
	require.Error(t, err)
	var ce *CompilationError
	assert.ErrorAs(t, err, &ce)
}

func TestCompile_TrendAggregation_UsesLagWindow(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "net_income", Operator: "increasing",
		Period:      &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "trend"},
		TrendConfig: &dsl.TrendConfig{Direction: "increasing", MinPeriods: 3},
	}}), Limit: 100}

	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "LAG(")
	assert.Contains(t, res.SQL, "v.val > v.prev_val")
}

func TestCompile_AggregatedPeriod(t *testing.T) {
	c := newCompiler()
	for _, agg := range []string{"avg", "sum", "min", "max"} {
		q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
			Field: "net_income", Operator: ">", Value: 1000.0,
			Period: &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: agg},
		}}), Limit: 100}
		res, err := c.Compile(q)
		require.NoError(t, err)
		assert.Contains(t, res.SQL, strings.ToUpper(agg)+"(val)")
		assert.Contains(t, res.SQL, "LIMIT $")
	}
}

func TestCompile_Period_N1_SameAsLatest(t *testing.T) {
	// Boundary behavior: n=1 period is identical semantics to
	// a latest single-row comparison.
	c := newCompiler()
	qAny := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		Period: &dsl.Period{Type: "last_n_quarters", N: 1, Aggregation: "any"},
	}}), Limit: 100}
	res, err := c.Compile(qAny)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "EXISTS")

	qLatest := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		Period: &dsl.Period{Type: "last_n_quarters", N: 1, Aggregation: "latest"},
	}}), Limit: 100}
	res2, err := c.Compile(qLatest)
	require.NoError(t, err)
	// "latest" reads the most recent non-null observation, never the
	// LATERAL-projected row, which may hold a null for a sparse column.
	assert.Contains(t, res2.SQL, "pe_ratio IS NOT NULL ORDER BY quarter_end DESC LIMIT 1) < $")
}

func TestCompile_TimeSeriesPredicate_UsesLatestNonNull(t *testing.T) {
	// The predicate on a time-series column must come from a correlated
	// latest-non-null subquery, not the fq alias.
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.NotContains(t, res.SQL, "WHERE (fq.pe_ratio")
	assert.Contains(t, res.SQL, "AND pe_ratio IS NOT NULL ORDER BY quarter_end DESC LIMIT 1) < $1")
}

func TestCompile_DefaultSort_MarketCapDescNullsLast(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "ORDER BY c.market_cap DESC NULLS LAST")
}

func TestCompile_Projection_LatestNonNullFallback(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("sector", "=", "Technology")), Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "COALESCE(fq.pe_ratio,")
	assert.Contains(t, res.SQL, "COALESCE(fq.revenue,")
}

func TestCompile_UnknownField_Errors(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("not_a_real_field", "<", 15.0))}
	_, err := c.Compile(q)
	require.Error(t, err)
}

func TestCompile_Sort_DefaultAscWhenInvalid(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Sort: &dsl.Sort{Field: "market_cap", Order: "sideways"}, Limit: 100}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "ORDER BY c.market_cap ASC")
}

func TestCompile_Sort_NonSortableField_Errors(t *testing.T) {
	// volume is real but not projected; under SELECT DISTINCT it cannot
	// appear in ORDER BY.
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Sort: &dsl.Sort{Field: "volume", Order: "desc"}, Limit: 100}
	_, err := c.Compile(q)
	require.Error(t, err)
}

func TestCompile_Sort_UnknownField_Errors(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Sort: &dsl.Sort{Field: "not_a_field", Order: "desc"}, Limit: 100}
	_, err := c.Compile(q)
	require.Error(t, err)
}

func TestCompile_DefaultLimit_WhenUnset(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0))}
	res, err := c.Compile(q)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Params[len(res.Params)-1])
}

func TestCompileForTicker_NarrowsToSingleInstrument(t *testing.T) {
	c := newCompiler()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 100}
	res, err := c.CompileForTicker(q, "AAPL")
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "c.symbol = ")
	assert.Contains(t, res.Params, "AAPL")
}

func TestInvertOperator(t *testing.T) {
	tests := []struct{ op, want string }{
		{">", "<="}, {">=", "<"}, {"<", ">="}, {"<=", ">"}, {"=", "!="}, {"!=", "="},
	}
	for _, tt := range tests {
		got, err := invertOperator(tt.op)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := invertOperator("in")
	assert.Error(t, err)
}
