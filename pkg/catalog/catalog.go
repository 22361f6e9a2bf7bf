// Package catalog holds the static, process-wide field registry the
// translator, validator, and compiler all share. It is built once at
// init and never mutated afterward.
package catalog

import "fmt"

// Kind describes the value shape a field's operators must accept.
type Kind string

const (
	KindNumeric    Kind = "numeric"
	KindPercentage Kind = "percentage"
	KindFraction   Kind = "fraction"
	KindString     Kind = "string"
	KindDate       Kind = "date"
	KindBoolean    Kind = "boolean"
)

// Scale records the unit a numeric field is stored in, so the compiler
// and validator can reason about magnitude sanity checks.
type Scale string

const (
	ScaleUnit     Scale = "unit"
	ScaleFraction Scale = "fraction"
)

// Source identifies where a non-derived field's value lives.
type Source struct {
	Table  string
	Column string
	// OrderColumn is the monotonic ordering column for this field's
	// table (e.g. "quarter_end", "date"), required when TimeSeries is set.
	OrderColumn string
	// KeyColumn joins the table back to the instrument identifier.
	KeyColumn string
}

// Field is one entry in the catalog.
type Field struct {
	Name             string
	Kind             Kind
	Scale            Scale
	Source           Source
	TimeSeries       bool
	AllowedOperators map[string]bool
	ValueRange       *Range
	Aliases          []string
	// Sortable marks fields the screener projection exposes as an
	// output column — the only ones ORDER BY can reference under
	// SELECT DISTINCT.
	Sortable bool

	// Derived is set for computed fields. Requires lists the base
	// fields the formula reads; SQLExpr, when non-empty, is the guarded
	// SQL expression the compiler inlines in place of a column
	// reference. Every derived field in this catalog carries a SQLExpr
	// — none fall back to a Python-style post-processing placeholder.
	Derived  bool
	Requires []string
	SQLExpr  string
}

// Range bounds a numeric/percentage/fraction field for the validator's
// range-sanity warning phase. Violations warn, they do not fail.
type Range struct {
	Min, Max float64
}

type Catalog struct {
	fields  map[string]*Field
	aliases map[string]string
}

var global = build()

// Get returns the process-wide catalog instance.
func Get() *Catalog { return global }

// Lookup resolves a field name or alias to its canonical Field.
func (c *Catalog) Lookup(name string) (*Field, bool) {
	if f, ok := c.fields[name]; ok {
		return f, true
	}
	if canon, ok := c.aliases[name]; ok {
		f, ok := c.fields[canon]
		return f, ok
	}
	return nil, false
}

// MustLookup panics on an unknown field; only safe for catalog-internal
// derived-field dependency wiring at init time.
func (c *Catalog) MustLookup(name string) *Field {
	f, ok := c.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("catalog: unknown field %q", name))
	}
	return f
}

// Names returns every canonical field name, for diagnostics and the
// translator's keyword matcher.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.fields))
	for n := range c.fields {
		out = append(out, n)
	}
	return out
}

func ops(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var numericOps = ops("<", ">", "<=", ">=", "=", "!=", "between", "in", "not_in", "exists", "increasing", "decreasing", "stable")
var stringOps = ops("=", "!=", "in", "not_in", "exists")
var boolOps = ops("=", "!=", "exists")
var dateOps = ops("<", ">", "<=", ">=", "=", "!=", "between", "exists")

func build() *Catalog {
	c := &Catalog{fields: map[string]*Field{}, aliases: map[string]string{}}

	reg := func(f Field) {
		if _, dup := c.fields[f.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate field %q", f.Name))
		}
		c.fields[f.Name] = &f
		for _, a := range f.Aliases {
			c.aliases[a] = f.Name
		}
	}

	// companies — static descriptive fields, no time series.
	reg(Field{Name: "market_cap", Kind: KindNumeric, Scale: ScaleUnit,
		Source: Source{Table: "companies", Column: "market_cap", KeyColumn: "symbol"},
		AllowedOperators: numericOps, ValueRange: &Range{0, 5e13}, Sortable: true})
	reg(Field{Name: "sector", Kind: KindString,
		Source: Source{Table: "companies", Column: "sector", KeyColumn: "symbol"},
		AllowedOperators: stringOps, Sortable: true})
	reg(Field{Name: "industry", Kind: KindString,
		Source: Source{Table: "companies", Column: "industry", KeyColumn: "symbol"},
		AllowedOperators: stringOps})
	reg(Field{Name: "exchange", Kind: KindString,
		Source: Source{Table: "companies", Column: "exchange", KeyColumn: "symbol"},
		AllowedOperators: stringOps, Aliases: []string{"listed_on"}})
	reg(Field{Name: "company_name", Kind: KindString,
		Source: Source{Table: "companies", Column: "name", KeyColumn: "symbol"},
		AllowedOperators: stringOps, Aliases: []string{"name"}, Sortable: true})

	// fundamentals_quarterly — time-series capable.
	fq := func(name, column string, r *Range, aliases ...string) Field {
		return Field{Name: name, Kind: KindNumeric, Scale: ScaleUnit,
			Source: Source{Table: "fundamentals_quarterly", Column: column,
				KeyColumn: "symbol", OrderColumn: "quarter_end"},
			TimeSeries: true, AllowedOperators: numericOps, ValueRange: r, Aliases: aliases}
	}
	// fqPct is fq's percentage-kind sibling for columns stored as a
	// 0..1 fraction rather than a
	// 0..100 unit — the translator auto-rescales a literal NL value
	// above 1 for these by dividing by 100.
	fqPct := func(name, column string, r *Range, aliases ...string) Field {
		f := fq(name, column, r, aliases...)
		f.Kind = KindPercentage
		f.Scale = ScaleFraction
		return f
	}
	// pe_ratio/roe/net_income/revenue are projected as output columns,
	// so they are the fundamentals fields ORDER BY may reference.
	peRatio := fq("pe_ratio", "pe_ratio", &Range{-50, 500}, "pe")
	peRatio.Sortable = true
	reg(peRatio)
	reg(fq("pb_ratio", "pb_ratio", &Range{0, 100}, "price_to_book"))
	netIncome := fq("net_income", "net_income", nil, "net_profit", "earnings")
	netIncome.Sortable = true
	reg(netIncome)
	revenue := fq("revenue", "revenue", nil)
	revenue.Sortable = true
	reg(revenue)
	reg(fq("eps", "eps", nil))
	reg(fqPct("operating_margin", "operating_margin", &Range{-2, 1}))
	roe := fqPct("roe", "roe", &Range{-2, 2})
	roe.Sortable = true
	reg(roe)
	reg(fqPct("roa", "roa", &Range{-1, 1}))
	reg(fq("price_to_sales", "price_to_sales", &Range{0, 100}))
	reg(fq("ev_to_ebitda", "ev_to_ebitda", &Range{-100, 200}))
	reg(fqPct("dividend_yield", "dividend_yield", &Range{0, 0.3}))
	reg(fqPct("net_margin", "net_margin", &Range{-2, 1}))
	reg(fq("gross_profit", "gross_profit", nil))
	reg(fq("operating_profit", "operating_profit", nil))
	reg(fq("current_ratio", "current_ratio", &Range{0, 50}))
	reg(fq("quick_ratio", "quick_ratio", &Range{0, 50}))
	reg(fq("debt_to_equity", "debt_to_equity", &Range{-10, 50}))
	reg(fq("ebitda", "ebitda", nil))
	reg(fq("total_debt", "total_debt", nil))
	reg(fq("free_cash_flow", "free_cash_flow", nil, "fcf"))
	epsGrowth := fq("eps_growth", "eps_growth_yoy", &Range{-100, 500})
	epsGrowth.Kind = KindPercentage
	reg(epsGrowth)
	revGrowth := fq("revenue_growth_yoy", "revenue_growth_yoy", &Range{-100, 500})
	revGrowth.Kind = KindPercentage
	reg(revGrowth)
	earnGrowth := fq("earnings_growth_yoy", "earnings_growth_yoy", &Range{-100, 500})
	earnGrowth.Kind = KindPercentage
	reg(earnGrowth)

	// price_history — time-series.
	reg(Field{Name: "close_price", Kind: KindNumeric, Scale: ScaleUnit,
		Source: Source{Table: "price_history", Column: "close", KeyColumn: "ticker", OrderColumn: "date"},
		TimeSeries: true, AllowedOperators: numericOps, Aliases: []string{"price", "close"}})
	reg(Field{Name: "volume", Kind: KindNumeric,
		Source: Source{Table: "price_history", Column: "volume", KeyColumn: "ticker", OrderColumn: "date"},
		TimeSeries: true, AllowedOperators: numericOps})

	// analyst_estimates.
	reg(Field{Name: "price_target_avg", Kind: KindNumeric,
		Source: Source{Table: "analyst_estimates", Column: "price_target_avg", KeyColumn: "ticker", OrderColumn: "estimate_date"},
		TimeSeries: true, AllowedOperators: numericOps})
	reg(Field{Name: "price_target_low", Kind: KindNumeric,
		Source: Source{Table: "analyst_estimates", Column: "price_target_low", KeyColumn: "ticker", OrderColumn: "estimate_date"},
		TimeSeries: true, AllowedOperators: numericOps})
	reg(Field{Name: "price_target_high", Kind: KindNumeric,
		Source: Source{Table: "analyst_estimates", Column: "price_target_high", KeyColumn: "ticker", OrderColumn: "estimate_date"},
		TimeSeries: true, AllowedOperators: numericOps})

	// event predicates, compiled via EXISTS.
	reg(Field{Name: "earnings_upcoming", Kind: KindBoolean,
		Source: Source{Table: "earnings_calendar", Column: "earnings_date", KeyColumn: "ticker", OrderColumn: "earnings_date"},
		AllowedOperators: boolOps})
	reg(Field{Name: "buyback_announced", Kind: KindBoolean,
		Source: Source{Table: "buybacks", Column: "announcement_date", KeyColumn: "ticker", OrderColumn: "announcement_date"},
		AllowedOperators: boolOps})

	// Derived metrics always carry a guarded SQLExpr.
	reg(Field{Name: "peg_ratio", Kind: KindNumeric, Derived: true,
		Requires: []string{"pe_ratio", "eps_growth"}, AllowedOperators: numericOps,
		ValueRange: &Range{0, 1000},
		SQLExpr:    "CASE WHEN ABS(fq.eps_growth_yoy) > 0.01 AND fq.pe_ratio > 0 THEN fq.pe_ratio / NULLIF(fq.eps_growth_yoy, 0) ELSE NULL END"})
	reg(Field{Name: "debt_to_fcf", Kind: KindNumeric, Derived: true,
		Requires: []string{"total_debt", "free_cash_flow"}, AllowedOperators: numericOps,
		ValueRange: &Range{0, 20},
		SQLExpr:    "CASE WHEN fq.free_cash_flow > 0 THEN fq.total_debt / NULLIF(fq.free_cash_flow, 0) ELSE NULL END"})
	reg(Field{Name: "fcf_margin", Kind: KindPercentage, Derived: true,
		Requires: []string{"free_cash_flow", "revenue"}, AllowedOperators: numericOps,
		ValueRange: &Range{0, 50},
		SQLExpr:    "CASE WHEN fq.revenue > 0 THEN (fq.free_cash_flow / NULLIF(fq.revenue, 0) * 100) ELSE NULL END"})

	return c
}
