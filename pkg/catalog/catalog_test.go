package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestLookup_CanonicalName(t *testing.T) {
	c := Get()
	f, ok := c.Lookup("pe_ratio")
	require.True(t, ok)
	assert.Equal(t, "pe_ratio", f.Name)
	assert.Equal(t, KindNumeric, f.Kind)
	assert.True(t, f.TimeSeries)
}

func TestLookup_Alias(t *testing.T) {
	c := Get()
	f, ok := c.Lookup("fcf")
	require.True(t, ok)
	assert.Equal(t, "free_cash_flow", f.Name)
}

func TestLookup_Unknown(t *testing.T) {
	c := Get()
	_, ok := c.Lookup("not_a_real_field")
	assert.False(t, ok)
}

func TestLookup_NonTimeSeriesField(t *testing.T) {
	c := Get()
	f, ok := c.Lookup("sector")
	require.True(t, ok)
	assert.False(t, f.TimeSeries)
	assert.Equal(t, KindString, f.Kind)
}

func TestMustLookup_PanicsOnUnknown(t *testing.T) {
	c := Get()
	assert.Panics(t, func() { c.MustLookup("does_not_exist") })
}

func TestMustLookup_ResolvesKnown(t *testing.T) {
	c := Get()
	assert.NotPanics(t, func() {
		f := c.MustLookup("pe_ratio")
		assert.Equal(t, "pe_ratio", f.Name)
	})
}

func TestNames_UniqueAndNonEmpty(t *testing.T) {
	c := Get()
	names := c.Names()
	assert.NotEmpty(t, names)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		assert.False(t, seen[n], "duplicate field name %q", n)
		seen[n] = true
	}
}

// Derived entries must reference only non-derived entries.
func TestDerivedFields_RequireTransitivelyNonDerived(t *testing.T) {
	c := Get()
	for _, name := range c.Names() {
		f := c.MustLookup(name)
		if !f.Derived {
			continue
		}
		assert.NotEmpty(t, f.SQLExpr, "derived field %q must carry a guarded SQLExpr", name)
		for _, req := range f.Requires {
			reqField, ok := c.Lookup(req)
			require.True(t, ok, "derived field %q requires unknown field %q", name, req)
			assert.False(t, reqField.Derived, "derived field %q requires another derived field %q", name, req)
		}
	}
}

// Every time-series field belongs to a table with a monotonic
// ordering column.
func TestTimeSeriesFields_HaveOrderAndKeyColumns(t *testing.T) {
	c := Get()
	for _, name := range c.Names() {
		f := c.MustLookup(name)
		if !f.TimeSeries {
			continue
		}
		assert.NotEmpty(t, f.Source.OrderColumn, "time-series field %q needs an ordering column", name)
		assert.NotEmpty(t, f.Source.KeyColumn, "time-series field %q needs a key column", name)
	}
}

func TestFractionScaledFields_ArePercentageKind(t *testing.T) {
	c := Get()
	f := c.MustLookup("dividend_yield")
	assert.Equal(t, ScaleFraction, f.Scale)
	assert.Equal(t, KindPercentage, f.Kind)
}

func TestAliases_ResolveToDistinctCanonicalNames(t *testing.T) {
	c := Get()
	tests := []struct {
		alias     string
		canonical string
	}{
		{"price_to_book", "pb_ratio"},
		{"net_profit", "net_income"},
		{"earnings", "net_income"},
		{"listed_on", "exchange"},
		{"name", "company_name"},
	}
	for _, tt := range tests {
		f, ok := c.Lookup(tt.alias)
		require.True(t, ok, "alias %q should resolve", tt.alias)
		assert.Equal(t, tt.canonical, f.Name)
	}
}
