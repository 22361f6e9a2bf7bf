// Package validator runs the ten ordered checks a DSL query must pass
// before it reaches the compiler: structural shape, field validity,
// operator validity, value shape, range sanity, period legality,
// logical-conflict detection, derived-metric safety, meta/sort
// validity, and ambiguity warnings. All issues accumulate into one
// []Issue slice in a single pass.
package validator

import (
	"fmt"
	"strings"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/dsl"
)

const maxNestingDepth = 5

type Config struct {
	MaxNestingDepth int
	StrictMode      bool
}

func DefaultConfig() Config {
	return Config{MaxNestingDepth: maxNestingDepth, StrictMode: true}
}

type Validator struct {
	cat *catalog.Catalog
	cfg Config
}

func New(cat *catalog.Catalog, cfg Config) *Validator {
	if cfg.MaxNestingDepth == 0 {
		cfg.MaxNestingDepth = maxNestingDepth
	}
	return &Validator{cat: cat, cfg: cfg}
}

// Validate runs every phase in order and accumulates issues; after the
// structural phase, later phases still run even after an earlier phase
// reports errors, so a caller sees the full picture in one pass rather
// than fail-fast. A structural failure stops the pass there.
func (v *Validator) Validate(q *dsl.Query) Result {
	var r Result

	if !v.validateStructure(q, &r) {
		return r
	}

	v.normalize(q.Filter)
	v.validateFieldsAndOperators(q.Filter, "filter", &r)
	v.validateValues(q.Filter, "filter", &r)
	v.validateRangeSanity(q.Filter, "filter", &r)
	v.validatePeriods(q.Filter, "filter", &r)
	v.detectLogicalConflicts(q.Filter, &r)
	v.validateDerivedMetricSafety(q.Filter, "filter", &r)
	v.validateMeta(q, &r)
	v.detectAmbiguity(q, &r)

	return r
}

// --- phase 1: structural ---

func (v *Validator) validateStructure(q *dsl.Query, r *Result) bool {
	if q == nil {
		r.Issues = append(r.Issues, Issue{Path: "$", Kind: KindRuleValidity, Message: "query is nil"})
		return false
	}
	if q.Filter == nil {
		r.Issues = append(r.Issues, Issue{Path: "filter", Kind: KindRuleValidity, Message: "query has no filter"})
		return false
	}
	if d := q.Filter.Depth(); d > v.cfg.MaxNestingDepth {
		r.Issues = append(r.Issues, Issue{
			Path: "filter", Kind: KindRuleValidity,
			Message:    fmt.Sprintf("filter nesting depth %d exceeds maximum %d", d, v.cfg.MaxNestingDepth),
			Suggestion: "flatten nested and/or groups",
		})
		return false
	}
	if q.Limit < 0 {
		r.Issues = append(r.Issues, Issue{Path: "limit", Kind: KindRuleValidity, Message: "limit must not be negative"})
		return false
	}
	return v.checkNodeArity(q.Filter, "filter", true, r)
}

// checkNodeArity enforces the node-shape rules: and/or arrays must be
// non-empty and not takes exactly one child. The sole exception is a
// root and-node with a nil child slice — the translator's "no
// conditions recognized" sentinel for empty and sector/exchange-only
// queries. An explicit empty array in client JSON ({"or":[]})
// unmarshals to a non-nil empty slice and is rejected wherever it
// appears.
func (v *Validator) checkNodeArity(f *dsl.Filter, path string, root bool, r *Result) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case dsl.NodeAnd:
		if len(f.And) == 0 {
			if root && f.And == nil {
				return true
			}
			r.Issues = append(r.Issues, Issue{Path: path, Kind: KindRuleValidity,
				Message:    "and requires a non-empty array of conditions",
				Suggestion: "remove the empty and group or give it at least one condition"})
			return false
		}
		for i, sub := range f.And {
			if !v.checkNodeArity(sub, fmt.Sprintf("%s.and[%d]", path, i), false, r) {
				return false
			}
		}
	case dsl.NodeOr:
		if len(f.Or) == 0 {
			r.Issues = append(r.Issues, Issue{Path: path, Kind: KindRuleValidity,
				Message:    "or requires a non-empty array of conditions",
				Suggestion: "remove the empty or group or give it at least one condition"})
			return false
		}
		for i, sub := range f.Or {
			if !v.checkNodeArity(sub, fmt.Sprintf("%s.or[%d]", path, i), false, r) {
				return false
			}
		}
	case dsl.NodeNot:
		if f.Not == nil {
			r.Issues = append(r.Issues, Issue{Path: path, Kind: KindRuleValidity,
				Message: "not requires a single child condition"})
			return false
		}
		return v.checkNodeArity(f.Not, path+".not", false, r)
	}
	return true
}

// normalize is the validator's one mutation pass over the tree:
// aliases rewrite to canonical field names,
// the legacy `timeframe` spelling folds into `period`, a missing
// aggregation defaults to "all", and a >1 literal on a fraction-scaled
// field rescales from percent to fraction. Runs before the check
// phases so they all see canonical names.
func (v *Validator) normalize(f *dsl.Filter) {
	if f == nil {
		return
	}
	f.Walk(func(c *dsl.Condition) {
		if field, ok := v.cat.Lookup(c.Field); ok {
			c.Field = field.Name
			if field.Scale == catalog.ScaleFraction {
				rescaleFractionValue(c)
			}
		}
		if c.Period == nil && c.Timeframe != nil {
			c.Period = c.Timeframe
		}
		c.Timeframe = nil
		if c.Period != nil && c.Period.Aggregation == "" {
			c.Period.Aggregation = "all"
		}
	})
}

func rescaleFractionValue(c *dsl.Condition) {
	switch c.Operator {
	case "<", ">", "<=", ">=", "=", "!=":
		if n, ok := asFloat(c.Value); ok && n > 1 {
			c.Value = n / 100
		}
	case "between":
		if arr, ok := c.Value.([]interface{}); ok {
			for i, raw := range arr {
				if n, ok := asFloat(raw); ok && n > 1 {
					arr[i] = n / 100
				}
			}
		}
	}
}

// --- phase 2 & 3: field validity, operator validity ---

func (v *Validator) validateFieldsAndOperators(f *dsl.Filter, path string, r *Result) {
	if f == nil {
		return
	}
	switch f.Kind {
	case dsl.NodeCondition:
		c := f.Cond
		field, ok := v.cat.Lookup(c.Field)
		if !ok {
			r.Issues = append(r.Issues, Issue{
				Path: path + ".field", Kind: KindRuleValidity,
				Message:    fmt.Sprintf("unknown field %q", c.Field),
				Suggestion: "check the field catalog for the correct name",
			})
			return
		}
		if !field.AllowedOperators[c.Operator] {
			r.Issues = append(r.Issues, Issue{
				Path: path + ".operator", Kind: KindRuleValidity,
				Message:    fmt.Sprintf("operator %q is not valid for field %q", c.Operator, c.Field),
				Suggestion: suggestOperator(c.Operator),
			})
		}
	case dsl.NodeAnd:
		for i, sub := range f.And {
			v.validateFieldsAndOperators(sub, fmt.Sprintf("%s.and[%d]", path, i), r)
		}
	case dsl.NodeOr:
		for i, sub := range f.Or {
			v.validateFieldsAndOperators(sub, fmt.Sprintf("%s.or[%d]", path, i), r)
		}
	case dsl.NodeNot:
		v.validateFieldsAndOperators(f.Not, path+".not", r)
	}
}

// suggestOperator canonicalizes natural-language spellings to the DSL's
// symbolic operator set.
func suggestOperator(op string) string {
	switch strings.ToLower(op) {
	case "above", "greater", "greater_than":
		return `use ">" instead`
	case "below", "less", "less_than":
		return `use "<" instead`
	case "equals", "equal":
		return `use "=" instead`
	default:
		return ""
	}
}

// --- phase 4: value shape ---

func (v *Validator) validateValues(f *dsl.Filter, path string, r *Result) {
	if f == nil {
		return
	}
	switch f.Kind {
	case dsl.NodeCondition:
		c := f.Cond
		if c.ValueIsField {
			v.validateValueIsField(c, path, r)
			break
		}
		switch c.Operator {
		case "between":
			arr, ok := c.Value.([]interface{})
			if !ok || len(arr) != 2 {
				r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
					Message: "between requires an array of exactly 2 values"})
				break
			}
			lo, loOK := asFloat(arr[0])
			hi, hiOK := asFloat(arr[1])
			if loOK && hiOK && lo >= hi {
				r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
					Message:    fmt.Sprintf("between bounds [%v, %v] must satisfy min < max", arr[0], arr[1]),
					Suggestion: "swap the bounds or widen the range"})
			}
		case "in", "not_in":
			arr, ok := c.Value.([]interface{})
			if !ok {
				r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
					Message: c.Operator + " requires an array value"})
				break
			}
			if len(arr) == 0 {
				r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
					Message: c.Operator + " requires a non-empty array"})
			}
		case "exists":
			if _, ok := c.Value.(bool); !ok {
				r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
					Message: "exists requires a boolean value"})
			}
		case "increasing", "decreasing", "stable":
			// value is not used; trend_config governs these.
		default:
			if c.Value == nil {
				r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
					Message: "comparison operators require a value"})
				break
			}
			v.checkValueKind(c, path, r)
		}
	case dsl.NodeAnd:
		for i, sub := range f.And {
			v.validateValues(sub, fmt.Sprintf("%s.and[%d]", path, i), r)
		}
	case dsl.NodeOr:
		for i, sub := range f.Or {
			v.validateValues(sub, fmt.Sprintf("%s.or[%d]", path, i), r)
		}
	case dsl.NodeNot:
		v.validateValues(f.Not, path+".not", r)
	}
}

// validateValueIsField resolves a cross-field comparison's Value as a
// catalog field name and checks kind compatibility with the left-hand
// field.
func (v *Validator) validateValueIsField(c *dsl.Condition, path string, r *Result) {
	lhs, ok := v.cat.Lookup(c.Field)
	if !ok {
		return // already reported by the field-validity phase
	}
	name, ok := c.Value.(string)
	if !ok {
		r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
			Message: "value_is_field requires a string value naming another field"})
		return
	}
	rhs, ok := v.cat.Lookup(name)
	if !ok {
		r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
			Message: fmt.Sprintf("value_is_field references unknown field %q", name),
			Suggestion: "check the field catalog for the correct name"})
		return
	}
	if !compatibleKinds(lhs.Kind, rhs.Kind) {
		r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
			Message: fmt.Sprintf("cannot compare %q (%s) to %q (%s): incompatible kinds",
				c.Field, lhs.Kind, name, rhs.Kind)})
	}
}

// checkValueKind rejects a scalar comparison whose literal does not
// match the field's kind (a string against pe_ratio, a number against
// sector).
func (v *Validator) checkValueKind(c *dsl.Condition, path string, r *Result) {
	field, ok := v.cat.Lookup(c.Field)
	if !ok {
		return // already reported by the field-validity phase
	}
	switch field.Kind {
	case catalog.KindNumeric, catalog.KindPercentage, catalog.KindFraction:
		if _, ok := asFloat(c.Value); !ok {
			r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
				Message: fmt.Sprintf("field %q expects a numeric value, got %T", c.Field, c.Value)})
		}
	case catalog.KindString, catalog.KindDate:
		if _, ok := c.Value.(string); !ok {
			r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
				Message: fmt.Sprintf("field %q expects a string value, got %T", c.Field, c.Value)})
		}
	case catalog.KindBoolean:
		if _, ok := c.Value.(bool); !ok {
			r.Issues = append(r.Issues, Issue{Path: path + ".value", Kind: KindRuleValidity,
				Message: fmt.Sprintf("field %q expects a boolean value, got %T", c.Field, c.Value)})
		}
	}
}

func compatibleKinds(a, b catalog.Kind) bool {
	numeric := map[catalog.Kind]bool{catalog.KindNumeric: true, catalog.KindPercentage: true, catalog.KindFraction: true}
	if numeric[a] && numeric[b] {
		return true
	}
	return a == b
}

// --- phase 5: range sanity (warning only) ---

func (v *Validator) validateRangeSanity(f *dsl.Filter, path string, r *Result) {
	if f == nil {
		return
	}
	switch f.Kind {
	case dsl.NodeCondition:
		c := f.Cond
		field, ok := v.cat.Lookup(c.Field)
		if !ok || field.ValueRange == nil {
			return
		}
		if n, ok := asFloat(c.Value); ok {
			if n < field.ValueRange.Min || n > field.ValueRange.Max {
				r.Issues = append(r.Issues, Issue{
					Path: path + ".value", Kind: KindDataAvailability,
					Message: fmt.Sprintf("value %v for %q is outside the typical range [%v, %v]",
						c.Value, c.Field, field.ValueRange.Min, field.ValueRange.Max),
				})
			}
		}
	case dsl.NodeAnd:
		for i, sub := range f.And {
			v.validateRangeSanity(sub, fmt.Sprintf("%s.and[%d]", path, i), r)
		}
	case dsl.NodeOr:
		for i, sub := range f.Or {
			v.validateRangeSanity(sub, fmt.Sprintf("%s.or[%d]", path, i), r)
		}
	case dsl.NodeNot:
		v.validateRangeSanity(f.Not, path+".not", r)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// --- phase 6: period legality ---

func (v *Validator) validatePeriods(f *dsl.Filter, path string, r *Result) {
	if f == nil {
		return
	}
	switch f.Kind {
	case dsl.NodeCondition:
		c := f.Cond
		if c.Period == nil {
			return
		}
		p := c.Period
		switch p.Type {
		case "last_n_quarters", "last_n_years", "trailing_12_months", "quarter_over_quarter", "year_over_year":
		default:
			r.Issues = append(r.Issues, Issue{Path: path + ".period.type", Kind: KindRuleValidity,
				Message: fmt.Sprintf("unknown period type %q", p.Type)})
		}
		if p.N <= 0 {
			r.Issues = append(r.Issues, Issue{Path: path + ".period.n", Kind: KindRuleValidity,
				Message: "period.n must be positive"})
		}
		if p.N > 20 {
			r.Issues = append(r.Issues, Issue{Path: path + ".period.n", Kind: KindRuleValidity,
				Message:    fmt.Sprintf("period.n %d exceeds the maximum of 20", p.N),
				Suggestion: "reduce the window to 20 periods or fewer"})
		} else if (p.Type == "last_n_quarters" && p.N > 12) || (p.Type == "last_n_years" && p.N > 10) {
			r.Issues = append(r.Issues, Issue{Path: path + ".period.n", Kind: KindDataAvailability,
				Message: fmt.Sprintf("a %d-period window likely exceeds the available history for %q", p.N, c.Field)})
		}
		field, ok := v.cat.Lookup(c.Field)
		if ok && !field.TimeSeries {
			r.Issues = append(r.Issues, Issue{Path: path + ".period", Kind: KindRuleValidity,
				Message:    fmt.Sprintf("field %q does not support time-series periods", c.Field),
				Suggestion: "drop the period clause or pick a time-series field",
			})
		}
		switch p.Aggregation {
		case "all", "any", "avg", "sum", "min", "max", "trend", "latest":
		default:
			r.Issues = append(r.Issues, Issue{Path: path + ".period.aggregation", Kind: KindRuleValidity,
				Message: fmt.Sprintf("unknown aggregation %q", p.Aggregation)})
		}
		if p.Aggregation == "trend" && c.TrendConfig == nil {
			r.Issues = append(r.Issues, Issue{Path: path + ".trend_config", Kind: KindRuleValidity,
				Message: "trend aggregation requires trend_config"})
		}
		if c.NullHandling != nil && c.NullHandling.Strategy == "interpolate" {
			r.Issues = append(r.Issues, Issue{Path: path + ".null_handling", Kind: KindRuleValidity,
				Message:    "interpolate null handling is not implemented",
				Suggestion: "use use_latest or use_default instead",
			})
		}
	case dsl.NodeAnd:
		for i, sub := range f.And {
			v.validatePeriods(sub, fmt.Sprintf("%s.and[%d]", path, i), r)
		}
	case dsl.NodeOr:
		for i, sub := range f.Or {
			v.validatePeriods(sub, fmt.Sprintf("%s.or[%d]", path, i), r)
		}
	case dsl.NodeNot:
		v.validatePeriods(f.Not, path+".not", r)
	}
}

// --- phase 7: logical conflict (unsatisfiable interval) ---

type bound struct {
	hasMin, hasMax   bool
	min, max         float64
	minExcl, maxExcl bool
	minSrc, maxSrc   string

	eq    *float64
	eqSrc string
	neq   map[float64]string
}

func condString(c *dsl.Condition) string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// detectLogicalConflicts walks each AND group (the only place bounds on
// the same field compose conjunctively within a single satisfiable
// scope), tracking a running [min,max] interval plus equality pins per
// field, and flags an empty intersection naming both offending
// sub-conditions.
func (v *Validator) detectLogicalConflicts(f *dsl.Filter, r *Result) {
	if f == nil {
		return
	}
	switch f.Kind {
	case dsl.NodeAnd:
		bounds := map[string]*bound{}
		var order []string
		for _, sub := range f.And {
			if sub.Kind != dsl.NodeCondition || sub.Cond == nil {
				continue
			}
			c := sub.Cond
			n, ok := asFloat(c.Value)
			if !ok {
				continue
			}
			b := bounds[c.Field]
			if b == nil {
				b = &bound{neq: map[float64]string{}}
				bounds[c.Field] = b
				order = append(order, c.Field)
			}
			switch c.Operator {
			case ">", ">=":
				if !b.hasMin || n > b.min {
					b.min, b.hasMin, b.minExcl, b.minSrc = n, true, c.Operator == ">", condString(c)
				}
			case "<", "<=":
				if !b.hasMax || n < b.max {
					b.max, b.hasMax, b.maxExcl, b.maxSrc = n, true, c.Operator == "<", condString(c)
				}
			case "=":
				if b.eq != nil && *b.eq != n {
					r.Issues = append(r.Issues, Issue{
						Path: "filter.and", Kind: KindLogicalConflict,
						Message: fmt.Sprintf("conditions %q and %q cannot both hold", b.eqSrc, condString(c)),
					})
					continue
				}
				val := n
				b.eq, b.eqSrc = &val, condString(c)
			case "!=":
				b.neq[n] = condString(c)
			}
		}
		for _, field := range order {
			b := bounds[field]
			switch {
			case b.eq != nil && b.neq[*b.eq] != "":
				r.Issues = append(r.Issues, Issue{
					Path: "filter.and", Kind: KindLogicalConflict,
					Message: fmt.Sprintf("conditions %q and %q cannot both hold", b.eqSrc, b.neq[*b.eq]),
				})
			case b.eq != nil && b.hasMin && (*b.eq < b.min || (*b.eq == b.min && b.minExcl)):
				r.Issues = append(r.Issues, Issue{
					Path: "filter.and", Kind: KindLogicalConflict,
					Message: fmt.Sprintf("conditions %q and %q cannot both hold", b.eqSrc, b.minSrc),
				})
			case b.eq != nil && b.hasMax && (*b.eq > b.max || (*b.eq == b.max && b.maxExcl)):
				r.Issues = append(r.Issues, Issue{
					Path: "filter.and", Kind: KindLogicalConflict,
					Message: fmt.Sprintf("conditions %q and %q cannot both hold", b.eqSrc, b.maxSrc),
				})
			case b.hasMin && b.hasMax && (b.min > b.max || (b.min == b.max && (b.minExcl || b.maxExcl))):
				r.Issues = append(r.Issues, Issue{
					Path: "filter.and", Kind: KindLogicalConflict,
					Message: fmt.Sprintf("conditions %q and %q leave no satisfiable range for %q", b.minSrc, b.maxSrc, field),
				})
			}
		}
		for _, sub := range f.And {
			v.detectLogicalConflicts(sub, r)
		}
	case dsl.NodeOr:
		for _, sub := range f.Or {
			v.detectLogicalConflicts(sub, r)
		}
	case dsl.NodeNot:
		v.detectLogicalConflicts(f.Not, r)
	}
}

// --- phase 8: derived-metric safety ---

func (v *Validator) validateDerivedMetricSafety(f *dsl.Filter, path string, r *Result) {
	if f == nil {
		return
	}
	switch f.Kind {
	case dsl.NodeCondition:
		c := f.Cond
		field, ok := v.cat.Lookup(c.Field)
		if !ok || !field.Derived {
			return
		}
		if field.SQLExpr == "" {
			r.Issues = append(r.Issues, Issue{Path: path, Kind: KindMetricSafety,
				Message: fmt.Sprintf("derived metric %q has no safe SQL expression", c.Field)})
			return
		}
		for _, req := range field.Requires {
			if _, ok := v.cat.Lookup(req); !ok {
				r.Issues = append(r.Issues, Issue{Path: path, Kind: KindMetricSafety,
					Message: fmt.Sprintf("derived metric %q depends on unknown field %q", c.Field, req)})
			}
		}
	case dsl.NodeAnd:
		for i, sub := range f.And {
			v.validateDerivedMetricSafety(sub, fmt.Sprintf("%s.and[%d]", path, i), r)
		}
	case dsl.NodeOr:
		for i, sub := range f.Or {
			v.validateDerivedMetricSafety(sub, fmt.Sprintf("%s.or[%d]", path, i), r)
		}
	case dsl.NodeNot:
		v.validateDerivedMetricSafety(f.Not, path+".not", r)
	}
}

// --- phase 9: meta / sort / limit ---

func (v *Validator) validateMeta(q *dsl.Query, r *Result) {
	if q.Sort != nil {
		if field, ok := v.cat.Lookup(q.Sort.Field); !ok {
			r.Issues = append(r.Issues, Issue{Path: "sort.field", Kind: KindRuleValidity,
				Message: fmt.Sprintf("unknown sort field %q", q.Sort.Field)})
		} else if !field.Sortable {
			r.Issues = append(r.Issues, Issue{Path: "sort.field", Kind: KindRuleValidity,
				Message:    fmt.Sprintf("field %q cannot be sorted on", q.Sort.Field),
				Suggestion: "sort by market_cap, pe_ratio, roe, net_income, or revenue"})
		}
		if q.Sort.Order != "" && q.Sort.Order != "asc" && q.Sort.Order != "desc" {
			r.Issues = append(r.Issues, Issue{Path: "sort.order", Kind: KindRuleValidity,
				Message: "sort.order must be asc or desc"})
		}
	}
	if q.Limit > 1000 {
		r.Issues = append(r.Issues, Issue{Path: "limit", Kind: KindRuleValidity,
			Message: fmt.Sprintf("limit %d exceeds the maximum of 1000", q.Limit),
			Suggestion: "reduce limit to 1000 or fewer"})
	}
}

// --- phase 10: ambiguity (warnings) ---

func (v *Validator) detectAmbiguity(q *dsl.Query, r *Result) {
	q.Filter.Walk(func(c *dsl.Condition) {
		field, ok := v.cat.Lookup(c.Field)
		if ok && field.TimeSeries && c.Period == nil {
			r.Issues = append(r.Issues, Issue{
				Path: "filter", Kind: KindAmbiguity,
				Message:    fmt.Sprintf("field %q is time-series but no period was given; the latest value is used", c.Field),
				Suggestion: "add a period clause to be explicit about the time window",
			})
		}
	})
}
