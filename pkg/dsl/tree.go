// Package dsl defines the closed tagged-union query tree exchanged
// between the translator, validator, and compiler, and its JSON wire
// format.
package dsl

import (
	"encoding/json"
	"fmt"
)

// Period describes a time window and how multiple observations within
// it are folded into a single boolean.
type Period struct {
	Type        string `json:"type"` // last_n_quarters | last_n_years | trailing_12_months | quarter_over_quarter | year_over_year
	N           int    `json:"n"`
	Aggregation string `json:"aggregation"` // all | any | avg | sum | min | max | trend | latest
}

// TrendConfig parameterizes a "trend" aggregation.
type TrendConfig struct {
	Direction  string `json:"direction"` // increasing | decreasing | stable
	MinPeriods int    `json:"min_periods"`
}

// NullHandling names the strategy used when a field's underlying value
// is NULL for an instrument.
type NullHandling struct {
	Strategy     string      `json:"strategy"` // exclude | fail | use_default | use_latest | interpolate
	DefaultValue interface{} `json:"default_value,omitempty"`
}

// Condition is a single leaf predicate.
type Condition struct {
	Field        string       `json:"field"`
	Operator     string       `json:"operator"`
	Value        interface{}  `json:"value,omitempty"`
	Period       *Period      `json:"period,omitempty"`
	TrendConfig  *TrendConfig `json:"trend_config,omitempty"`
	NullHandling *NullHandling `json:"null_handling,omitempty"`
	// ValueIsField marks Value as itself a catalog field name rather
	// than a literal, selecting the compiler's cross-field comparison
	// path.
	ValueIsField bool `json:"value_is_field,omitempty"`
	// Timeframe is the legacy spelling of Period still seen in stored
	// queries; the validator rewrites it into Period during
	// normalization and clears it.
	Timeframe *Period `json:"timeframe,omitempty"`
}

// NodeKind discriminates the tagged union stored in Filter.
type NodeKind int

const (
	NodeCondition NodeKind = iota
	NodeAnd
	NodeOr
	NodeNot
)

// Filter is a single node of the DSL tree. Exactly one of Cond, And, Or,
// Not is populated, selected by Kind — this is Go's idiom for the
// closed variant the wire format expresses as a single-key object.
type Filter struct {
	Kind NodeKind
	Cond *Condition
	And  []*Filter
	Or   []*Filter
	Not  *Filter
}

// Meta carries the non-predicate narrowing of a query: sector, exchange
// and a market-cap category. Sort and limit live on Query.
type Meta struct {
	Sector             string `json:"sector,omitempty"`
	Exchange           string `json:"exchange,omitempty"`
	MarketCapCategory  string `json:"market_cap_category,omitempty"`
}

type Sort struct {
	Field string `json:"field"`
	Order string `json:"order"` // asc | desc
}

// Query is a complete DSL document as exchanged over the wire.
type Query struct {
	Filter *Filter `json:"filter"`
	Meta   Meta    `json:"meta,omitempty"`
	Sort   *Sort   `json:"sort,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

// --- JSON marshaling for the tagged union ---

type wireFilter struct {
	And []*Filter `json:"and,omitempty"`
	Or  []*Filter `json:"or,omitempty"`
	Not *Filter   `json:"not,omitempty"`
	*Condition
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	switch f.Kind {
	case NodeAnd:
		return json.Marshal(wireFilter{And: f.And})
	case NodeOr:
		return json.Marshal(wireFilter{Or: f.Or})
	case NodeNot:
		return json.Marshal(wireFilter{Not: f.Not})
	case NodeCondition:
		return json.Marshal(f.Cond)
	default:
		return nil, fmt.Errorf("dsl: filter has no populated variant")
	}
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var w wireFilter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.And != nil:
		f.Kind, f.And = NodeAnd, w.And
	case w.Or != nil:
		f.Kind, f.Or = NodeOr, w.Or
	case w.Not != nil:
		f.Kind, f.Not = NodeNot, w.Not
	case w.Condition != nil && w.Condition.Field != "":
		f.Kind, f.Cond = NodeCondition, w.Condition
	default:
		return fmt.Errorf("dsl: filter node matches no known variant (and/or/not/condition)")
	}
	return nil
}

// Walk calls visit on every condition reachable from f, depth first.
func (f *Filter) Walk(visit func(*Condition)) {
	if f == nil {
		return
	}
	switch f.Kind {
	case NodeCondition:
		if f.Cond != nil {
			visit(f.Cond)
		}
	case NodeAnd:
		for _, c := range f.And {
			c.Walk(visit)
		}
	case NodeOr:
		for _, c := range f.Or {
			c.Walk(visit)
		}
	case NodeNot:
		f.Not.Walk(visit)
	}
}

// Depth returns the filter tree's nesting depth, used by the validator's
// structural phase against max_nesting_depth.
func (f *Filter) Depth() int {
	if f == nil {
		return 0
	}
	switch f.Kind {
	case NodeAnd:
		return 1 + maxDepth(f.And)
	case NodeOr:
		return 1 + maxDepth(f.Or)
	case NodeNot:
		return 1 + f.Not.Depth()
	default:
		return 1
	}
}

func maxDepth(fs []*Filter) int {
	m := 0
	for _, f := range fs {
		if d := f.Depth(); d > m {
			m = d
		}
	}
	return m
}
