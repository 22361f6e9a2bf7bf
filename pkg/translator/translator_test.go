package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/dsl"
)

func newTranslator() *Translator {
	return New(catalog.Get(), nil)
}

func firstCond(t *testing.T, f *dsl.Filter) *dsl.Condition {
	t.Helper()
	var c *dsl.Condition
	f.Walk(func(cond *dsl.Condition) {
		if c == nil {
			c = cond
		}
	})
	require.NotNil(t, c, "expected at least one condition in %+v", f)
	return c
}

func TestTranslate_SimpleComparison(t *testing.T) {
	// "PE less than 15".
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "PE less than 15")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "pe_ratio", c.Field)
	assert.Equal(t, "<", c.Operator)
	assert.Equal(t, 15.0, c.Value)
}

func TestTranslate_PositivePeriodCondition(t *testing.T) {
	// "positive earnings last 4 quarters".
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "positive earnings last 4 quarters")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "net_income", c.Field)
	assert.Equal(t, ">", c.Operator)
	require.NotNil(t, c.Period)
	assert.Equal(t, "last_n_quarters", c.Period.Type)
	assert.Equal(t, 4, c.Period.N)
	assert.Equal(t, "all", c.Period.Aggregation)
}

func TestTranslate_CrossFieldComparison(t *testing.T) {
	// "current price below analyst target".
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "price below price target avg")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "close_price", c.Field)
	assert.True(t, c.ValueIsField)
	assert.Equal(t, "price_target_avg", c.Value)
}

func TestTranslate_EventPredicate(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "companies with a buyback")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "buyback_announced", c.Field)
	assert.Equal(t, "exists", c.Operator)
	assert.Equal(t, true, c.Value)
}

func TestTranslate_MetadataExtraction(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "technology sector companies with pe below 20")
	require.NoError(t, err)

	assert.Equal(t, "Technology", q.Meta.Sector)
	c := firstCond(t, q.Filter)
	assert.Equal(t, "pe_ratio", c.Field)
	assert.Equal(t, "<", c.Operator)
	assert.Equal(t, 20.0, c.Value)
}

func TestTranslate_GrowthSibling(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "increasing revenue")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "revenue_growth_yoy", c.Field)
	assert.Equal(t, ">", c.Operator)
}

func TestTranslate_UnitMultipliers(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "market cap above 10 billion")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "market_cap", c.Field)
	assert.Equal(t, 1e10, c.Value)
}

func TestTranslate_PercentRescalingForFractionScaledField(t *testing.T) {
	// dividend_yield is stored 0..1; a literal > 1 in NL must be rescaled.
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "dividend yield above 3")
	require.NoError(t, err)

	c := firstCond(t, q.Filter)
	assert.Equal(t, "dividend_yield", c.Field)
	assert.InDelta(t, 0.03, c.Value.(float64), 1e-9)
}

func TestTranslate_OrSplit(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "pe below 10 or pe above 50")
	require.NoError(t, err)
	assert.Equal(t, dsl.NodeOr, q.Filter.And[0].Kind)
}

func TestTranslate_BetweenProtectedFromAndSplit(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "pe ratio between 5 and 20")
	require.NoError(t, err)

	var conds []*dsl.Condition
	q.Filter.Walk(func(c *dsl.Condition) { conds = append(conds, c) })
	assert.Len(t, conds, 1, "between clause must not be split by the and-separator")
}

func TestTranslate_EmptyQuery_NoLLM_ReturnsDegenerate(t *testing.T) {
	// Round-trip law: Translate never raises for an empty/unparseable
	// query even with no LLM fallback configured.
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, q.Filter)
}

func TestTranslate_UnmatchedPhrase_AbortsConditionSilently(t *testing.T) {
	tr := newTranslator()
	q, err := tr.Translate(context.Background(), "companies that are really great")
	require.NoError(t, err)
	require.NotNil(t, q.Filter)
}

// fakeLLM implements the translator's narrow LLMClient interface for the
// fallback-path test.
type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return f.response, f.err
}

func TestTranslate_LLMFallback_UsedWhenHeuristicFindsNothing(t *testing.T) {
	llm := &fakeLLM{response: `{"filter":{"field":"pe_ratio","operator":"<","value":15}}`}
	tr := New(catalog.Get(), llm)

	q, err := tr.Translate(context.Background(), "something the heuristics cannot parse at all")
	require.NoError(t, err)
	c := firstCond(t, q.Filter)
	assert.Equal(t, "pe_ratio", c.Field)
}

func TestTranslate_LLMFallback_UnparseableJSON_Errors(t *testing.T) {
	llm := &fakeLLM{response: "not json"}
	tr := New(catalog.Get(), llm)

	_, err := tr.Translate(context.Background(), "something the heuristics cannot parse at all")
	assert.Error(t, err)
}
