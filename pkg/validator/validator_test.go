package validator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/dsl"
)

func newValidator() *Validator {
	return New(catalog.Get(), DefaultConfig())
}

func cond(field, op string, value interface{}) *dsl.Filter {
	return &dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{Field: field, Operator: op, Value: value}}
}

func and(children ...*dsl.Filter) *dsl.Filter { return &dsl.Filter{Kind: dsl.NodeAnd, And: children} }
func or(children ...*dsl.Filter) *dsl.Filter  { return &dsl.Filter{Kind: dsl.NodeOr, Or: children} }

func TestValidate_NilQuery(t *testing.T) {
	v := newValidator()
	r := v.Validate(nil)
	require.False(t, r.OK())
	assert.Equal(t, KindRuleValidity, r.Errors()[0].Kind)
}

func TestValidate_NilFilter(t *testing.T) {
	v := newValidator()
	r := v.Validate(&dsl.Query{})
	require.False(t, r.OK())
	assert.Equal(t, "filter", r.Errors()[0].Path)
}

func TestValidate_SimpleValueFilter(t *testing.T) {
	// "PE less than 15".
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 100}
	r := v.Validate(q)
	assert.True(t, r.OK())
	assert.Empty(t, r.Errors())
}

func TestValidate_UnknownField(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("not_a_field", "<", 15.0))}
	r := v.Validate(q)
	require.False(t, r.OK())
	assert.Equal(t, KindRuleValidity, r.Errors()[0].Kind)
	assert.Equal(t, "filter.and[0].field", r.Errors()[0].Path)
}

func TestValidate_OperatorNotAllowedForKind(t *testing.T) {
	v := newValidator()
	// "increasing" is only valid on numeric time-series fields; sector is a string.
	q := &dsl.Query{Filter: and(cond("sector", "increasing", nil))}
	r := v.Validate(q)
	require.False(t, r.OK())
	assert.Equal(t, KindRuleValidity, r.Errors()[0].Kind)
}

func TestValidate_OperatorSuggestion_NaturalLanguageRejected(t *testing.T) {
	// "above"/"below" spellings are rejected with a
	// suggestion naming the canonical token.
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "above", 15.0))}
	r := v.Validate(q)
	require.False(t, r.OK())
	assert.Contains(t, r.Errors()[0].Suggestion, `">"`)
}

func TestValidate_Between_ValidAndInvalid(t *testing.T) {
	v := newValidator()

	t.Run("valid two-tuple", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "between", []interface{}{5.0, 20.0}))}
		r := v.Validate(q)
		assert.True(t, r.OK())
	})

	t.Run("wrong arity", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "between", []interface{}{5.0}))}
		r := v.Validate(q)
		assert.False(t, r.OK())
	})

	t.Run("not an array", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "between", 5.0))}
		r := v.Validate(q)
		assert.False(t, r.OK())
	})

	t.Run("inverted bounds rejected", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "between", []interface{}{20.0, 5.0}))}
		r := v.Validate(q)
		assert.False(t, r.OK())
	})

	t.Run("equal bounds rejected", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "between", []interface{}{5.0, 5.0}))}
		r := v.Validate(q)
		assert.False(t, r.OK())
	})
}

func TestValidate_In_EmptyArrayRejected(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("sector", "in", []interface{}{}))}
	assert.False(t, v.Validate(q).OK())
}

func TestValidate_ValueKind_Mismatch(t *testing.T) {
	v := newValidator()

	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", "fifteen"))}
	assert.False(t, v.Validate(q).OK(), "string literal against a numeric field")

	q = &dsl.Query{Filter: and(cond("sector", "=", 42.0))}
	assert.False(t, v.Validate(q).OK(), "numeric literal against a string field")
}

func TestValidate_Normalization_AliasRewritten(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("pe", "<", 15.0))}
	r := v.Validate(q)
	require.True(t, r.OK())
	assert.Equal(t, "pe_ratio", q.Filter.And[0].Cond.Field)
}

func TestValidate_Normalization_LegacyTimeframe(t *testing.T) {
	v := newValidator()
	c := &dsl.Condition{Field: "net_income", Operator: ">", Value: 0.0,
		Timeframe: &dsl.Period{Type: "last_n_quarters", N: 4}}
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: c})}
	r := v.Validate(q)
	require.True(t, r.OK())
	require.NotNil(t, c.Period)
	assert.Nil(t, c.Timeframe)
	assert.Equal(t, "last_n_quarters", c.Period.Type)
	assert.Equal(t, "all", c.Period.Aggregation, "missing aggregation defaults to all")
}

func TestValidate_Normalization_FractionRescale(t *testing.T) {
	// roe is stored as a 0..1 fraction; a literal 15 means 15%.
	v := newValidator()
	c := &dsl.Condition{Field: "roe", Operator: ">", Value: 15.0}
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: c})}
	r := v.Validate(q)
	require.True(t, r.OK())
	assert.InDelta(t, 0.15, c.Value.(float64), 1e-9)
}

func TestValidate_InNotIn_RequireArray(t *testing.T) {
	v := newValidator()

	q := &dsl.Query{Filter: and(cond("sector", "in", []interface{}{"Technology", "Healthcare"}))}
	assert.True(t, v.Validate(q).OK())

	q = &dsl.Query{Filter: and(cond("sector", "in", "Technology"))}
	assert.False(t, v.Validate(q).OK())
}

func TestValidate_Exists_RequiresBoolean(t *testing.T) {
	v := newValidator()

	q := &dsl.Query{Filter: and(cond("buyback_announced", "exists", true))}
	assert.True(t, v.Validate(q).OK())

	q = &dsl.Query{Filter: and(cond("buyback_announced", "exists", "yes"))}
	assert.False(t, v.Validate(q).OK())
}

func TestValidate_ValueIsField_CrossFieldComparison(t *testing.T) {
	// "current price below analyst target".
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "close_price", Operator: "<", Value: "price_target_avg", ValueIsField: true,
	}})}
	r := v.Validate(q)
	assert.True(t, r.OK())
}

func TestValidate_ValueIsField_IncompatibleKinds(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "close_price", Operator: "<", Value: "sector", ValueIsField: true,
	}})}
	r := v.Validate(q)
	require.False(t, r.OK())
	assert.Equal(t, KindRuleValidity, r.Errors()[0].Kind)
}

func TestValidate_ValueIsField_UnknownRHS(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "close_price", Operator: "<", Value: "not_a_field", ValueIsField: true,
	}})}
	r := v.Validate(q)
	require.False(t, r.OK())
	assert.NotEmpty(t, r.Errors()[0].Suggestion)
}

func TestValidate_RangeSanity_WarnsNotFails(t *testing.T) {
	v := newValidator()
	// pe_ratio's declared range is [-50, 500]; 10000 is implausible but
	// still numeric, so this must warn, never fail.
	q := &dsl.Query{Filter: and(cond("pe_ratio", ">", 10000.0))}
	r := v.Validate(q)
	assert.True(t, r.OK())
	require.NotEmpty(t, r.Warnings())
	assert.Equal(t, KindDataAvailability, r.Warnings()[0].Kind)
}

func TestValidate_PeriodOnNonTimeSeriesField_Rejected(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "sector", Operator: "=", Value: "Technology",
		Period: &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "all"},
	}})}
	r := v.Validate(q)
	assert.False(t, r.OK())
}

func TestValidate_Period_AllQuartersPositive(t *testing.T) {
	// "positive earnings last 4 quarters".
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "net_income", Operator: ">", Value: 0.0,
		Period: &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "all"},
	}})}
	r := v.Validate(q)
	assert.True(t, r.OK())
}

func TestValidate_PeriodN_BoundaryValues(t *testing.T) {
	v := newValidator()

	mk := func(n int) *dsl.Query {
		return &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
			Field: "net_income", Operator: ">", Value: 0.0,
			Period: &dsl.Period{Type: "last_n_quarters", N: n, Aggregation: "all"},
		}})}
	}

	assert.True(t, v.Validate(mk(1)).OK(), "n=1 should compile")
	assert.True(t, v.Validate(mk(20)).OK(), "n=20 should compile")
	assert.False(t, v.Validate(mk(0)).OK(), "n=0 should be rejected")
	assert.False(t, v.Validate(mk(21)).OK(), "n=21 should be rejected")
}

func TestValidate_Period_CoverageWarning(t *testing.T) {
	// A deep-but-legal window warns (DataAvailability) without blocking.
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "net_income", Operator: ">", Value: 0.0,
		Period: &dsl.Period{Type: "last_n_quarters", N: 16, Aggregation: "all"},
	}})}
	r := v.Validate(q)
	assert.True(t, r.OK())
	require.NotEmpty(t, r.Warnings())
	found := false
	for _, w := range r.Warnings() {
		if w.Kind == KindDataAvailability {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_TrendAggregation_RequiresTrendConfig(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "net_income", Operator: "increasing",
		Period: &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "trend"},
	}})}
	r := v.Validate(q)
	assert.False(t, r.OK())
}

func TestValidate_NullHandling_InterpolateRejected(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeCondition, Cond: &dsl.Condition{
		Field: "pe_ratio", Operator: "<", Value: 15.0,
		Period:       &dsl.Period{Type: "last_n_quarters", N: 4, Aggregation: "all"},
		NullHandling: &dsl.NullHandling{Strategy: "interpolate"},
	}})}
	r := v.Validate(q)
	assert.False(t, r.OK())
}

// TestValidate_UnsatisfiableConflict: the intersection of two
// comparison bounds on the same scalar field must be non-empty.
func TestValidate_UnsatisfiableConflict(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("pe_ratio", ">", 50.0), cond("pe_ratio", "<", 5.0))}
	r := v.Validate(q)
	require.False(t, r.OK())
	errs := r.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, KindLogicalConflict, errs[0].Kind)
	assert.Equal(t, "filter.and", errs[0].Path)
	assert.Contains(t, errs[0].Message, "pe_ratio")
}

func TestValidate_SatisfiableRangeAccepted(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("pe_ratio", ">", 5.0), cond("pe_ratio", "<", 50.0))}
	r := v.Validate(q)
	assert.True(t, r.OK())
}

func TestValidate_ConflictAcrossOrBranches_NotFlagged(t *testing.T) {
	// Bounds on the same field in different OR branches do not compose
	// conjunctively and must not be treated as a conflict.
	v := newValidator()
	q := &dsl.Query{Filter: or(cond("pe_ratio", ">", 50.0), cond("pe_ratio", "<", 5.0))}
	r := v.Validate(q)
	assert.True(t, r.OK())
}

func TestValidate_EqualityConflict(t *testing.T) {
	v := newValidator()

	t.Run("exclusive bounds touching", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", ">", 10.0), cond("pe_ratio", "<", 10.0))}
		assert.False(t, v.Validate(q).OK())
	})

	t.Run("equal and not-equal same value", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "=", 10.0), cond("pe_ratio", "!=", 10.0))}
		r := v.Validate(q)
		require.False(t, r.OK())
		assert.Equal(t, KindLogicalConflict, r.Errors()[0].Kind)
	})

	t.Run("pin outside range", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "=", 100.0), cond("pe_ratio", "<", 50.0))}
		assert.False(t, v.Validate(q).OK())
	})

	t.Run("two different pins", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "=", 10.0), cond("pe_ratio", "=", 20.0))}
		assert.False(t, v.Validate(q).OK())
	})
}

func TestValidate_DerivedMetric_SafetyGuard(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("debt_to_fcf", "<", 3.0))}
	r := v.Validate(q)
	assert.True(t, r.OK())
}

func TestValidate_Meta_SortAndLimit(t *testing.T) {
	v := newValidator()

	t.Run("unknown sort field rejected", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Sort: &dsl.Sort{Field: "not_a_field", Order: "desc"}}
		assert.False(t, v.Validate(q).OK())
	})

	t.Run("non-sortable field rejected", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Sort: &dsl.Sort{Field: "volume", Order: "desc"}}
		assert.False(t, v.Validate(q).OK())
	})

	t.Run("bad sort order rejected", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Sort: &dsl.Sort{Field: "market_cap", Order: "sideways"}}
		assert.False(t, v.Validate(q).OK())
	})

	t.Run("limit exactly 1000 accepted", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 1000}
		assert.True(t, v.Validate(q).OK())
	})

	t.Run("limit 1001 rejected", func(t *testing.T) {
		q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0)), Limit: 1001}
		assert.False(t, v.Validate(q).OK())
	})
}

func TestValidate_NestingDepth_Boundary(t *testing.T) {
	v := newValidator()

	leaf := cond("pe_ratio", "<", 15.0)
	depth5 := leaf
	for i := 0; i < 4; i++ {
		depth5 = &dsl.Filter{Kind: dsl.NodeNot, Not: depth5}
	}
	require.Equal(t, 5, depth5.Depth())
	assert.True(t, v.Validate(&dsl.Query{Filter: depth5}).OK())

	depth6 := &dsl.Filter{Kind: dsl.NodeNot, Not: depth5}
	assert.False(t, v.Validate(&dsl.Query{Filter: depth6}).OK())
}

func TestValidate_Ambiguity_TimeSeriesWithoutPeriod(t *testing.T) {
	v := newValidator()
	q := &dsl.Query{Filter: and(cond("pe_ratio", "<", 15.0))}
	r := v.Validate(q)
	require.True(t, r.OK())
	require.NotEmpty(t, r.Warnings())
	assert.Equal(t, KindAmbiguity, r.Warnings()[0].Kind)
}

func TestValidate_EmptyNodeArrays_Rejected(t *testing.T) {
	v := newValidator()

	t.Run("top-level empty or from client JSON", func(t *testing.T) {
		var f dsl.Filter
		require.NoError(t, json.Unmarshal([]byte(`{"or":[]}`), &f))
		r := v.Validate(&dsl.Query{Filter: &f})
		require.False(t, r.OK())
		assert.Equal(t, KindRuleValidity, r.Errors()[0].Kind)
		assert.Equal(t, "filter", r.Errors()[0].Path)
	})

	t.Run("top-level empty and from client JSON", func(t *testing.T) {
		// An explicit `"and":[]` in the wire payload is not the
		// translator's nil-slice sentinel and must be rejected.
		var f dsl.Filter
		require.NoError(t, json.Unmarshal([]byte(`{"and":[]}`), &f))
		r := v.Validate(&dsl.Query{Filter: &f})
		assert.False(t, r.OK())
	})

	t.Run("nested empty or", func(t *testing.T) {
		var f dsl.Filter
		require.NoError(t, json.Unmarshal(
			[]byte(`{"and":[{"field":"pe_ratio","operator":"<","value":15},{"or":[]}]}`), &f))
		r := v.Validate(&dsl.Query{Filter: &f})
		require.False(t, r.OK())
		assert.Equal(t, "filter.and[1]", r.Errors()[0].Path)
	})

	t.Run("nested empty and", func(t *testing.T) {
		q := &dsl.Query{Filter: and(
			cond("pe_ratio", "<", 15.0),
			&dsl.Filter{Kind: dsl.NodeAnd, And: []*dsl.Filter{}},
		)}
		assert.False(t, v.Validate(q).OK())
	})

	t.Run("not without a child", func(t *testing.T) {
		q := &dsl.Query{Filter: and(&dsl.Filter{Kind: dsl.NodeNot})}
		assert.False(t, v.Validate(q).OK())
	})
}

func TestValidate_EmptyFilter_DegenerateTree(t *testing.T) {
	// The translator never raises for an empty query; its no-conditions
	// sentinel — a root and-node with a nil child slice — must stay
	// valid, unlike an explicit empty array from client JSON.
	v := newValidator()
	q := &dsl.Query{Filter: &dsl.Filter{Kind: dsl.NodeAnd}}
	r := v.Validate(q)
	assert.True(t, r.OK())
}

func TestKind_IsWarning(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindAmbiguity, true},
		{KindDataAvailability, true},
		{KindRuleValidity, false},
		{KindLogicalConflict, false},
		{KindMetricSafety, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.IsWarning(), "kind %s", tt.kind)
	}
}
