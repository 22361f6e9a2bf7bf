// Package translator turns a natural-language screener query into a
// dsl.Query via a heuristic keyword/number/operator pipeline, with an
// optional LLM fallback when the heuristic pass can't find a single
// condition. The LLM is never trusted more than hand-typed JSON — its
// output runs back through pkg/validator exactly like any other input.
package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/dsl"
)

// LLMClient is the narrow capability the translator needs from
// pkg/llm — kept as a local interface so this package does not import
// the concrete HTTP client.
type LLMClient interface {
	Chat(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

type Translator struct {
	cat *catalog.Catalog
	llm LLMClient
}

func New(cat *catalog.Catalog, llm LLMClient) *Translator {
	return &Translator{cat: cat, llm: llm}
}

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

var operatorKeywords = []struct {
	phrase string
	op     string
}{
	{"greater than or equal to", ">="},
	{"less than or equal to", "<="},
	{"at least", ">="},
	{"at most", "<="},
	{"above", ">"},
	{"below", "<"},
	{"over", ">"},
	{"under", "<"},
	{"greater than", ">"},
	{"less than", "<"},
	{"more than", ">"},
	{"fewer than", "<"},
	{"equal to", "="},
	{"equals", "="},
	{">=", ">="},
	{"<=", "<="},
	{">", ">"},
	{"<", "<"},
	{"=", "="},
}

// crossFieldOperatorKeywords is the subset of operatorKeywords that can
// introduce a cross-field comparison ("<phrase> below <phrase>") — the
// pure numeric-comparison words only.
var crossFieldOperatorKeywords = []struct {
	phrase string
	op     string
}{
	{"below", "<"},
	{"above", ">"},
	{"under", "<"},
	{"over", ">"},
}

var periodKeywords = []struct {
	re          *regexp.Regexp
	periodType  string
	aggregation string
}{
	{regexp.MustCompile(`last (\d+) quarters?`), "last_n_quarters", "all"},
	{regexp.MustCompile(`last (\d+) years?`), "last_n_years", "all"},
	{regexp.MustCompile(`trailing (\d+) months?`), "trailing_12_months", "sum"},
	{regexp.MustCompile(`(?:year[- ]over[- ]year|yoy)`), "year_over_year", "latest"},
	{regexp.MustCompile(`(?:quarter[- ]over[- ]quarter|qoq)`), "quarter_over_quarter", "latest"},
}

var aggregationKeywords = []struct {
	phrase string
	value  string
}{
	{"on average", "avg"},
	{"average", "avg"},
	{"in total", "sum"},
	{"combined", "sum"},
	{"at any point", "any"},
	{"every quarter", "all"},
	{"each quarter", "all"},
	{"ever", "any"},
	{"consistently", "all"},
}

// unitMultipliers maps Indian/international magnitude suffixes onto
// multipliers.
var unitMultipliers = []struct {
	suffix string
	mult   float64
}{
	{"crore", 1e7},
	{"lakh", 1e5},
	{"trillion", 1e12},
	{"billion", 1e9},
	{"million", 1e6},
	{"thousand", 1e3},
}

// growthSiblings maps a base field to the catalog's growth-rate field
// for it, used by the "increasing <field>" / "growing <field>"
// phrasings.
var growthSiblings = map[string]string{
	"revenue":    "revenue_growth_yoy",
	"eps":        "eps_growth",
	"net_income": "earnings_growth_yoy",
}

// metadataAliases is a small static gazetteer of sector/exchange
// phrasings the translator recognizes directly, ahead of field
// matching. A production deployment would
// source this from the same tables the catalog's `sector`/`exchange`
// fields are bound to.
var metadataAliases = []struct {
	phrase string
	kind   string // "sector" | "exchange"
	value  string
}{
	{"technology sector", "sector", "Technology"},
	{"tech sector", "sector", "Technology"},
	{"healthcare sector", "sector", "Healthcare"},
	{"financial sector", "sector", "Financials"},
	{"financials sector", "sector", "Financials"},
	{"energy sector", "sector", "Energy"},
	{"consumer discretionary sector", "sector", "Consumer Discretionary"},
	{"industrials sector", "sector", "Industrials"},
	{"on nasdaq", "exchange", "NASDAQ"},
	{"on nyse", "exchange", "NYSE"},
	{"listed on nasdaq", "exchange", "NASDAQ"},
	{"listed on nyse", "exchange", "NYSE"},
}

// eventKeywords maps a bare keyword to the boolean catalog field it
// asserts exists.
var eventKeywords = []struct {
	keyword string
	field   string
}{
	{"buyback", "buyback_announced"},
	{"share repurchase", "buyback_announced"},
	{"upcoming earnings", "earnings_upcoming"},
	{"earnings coming up", "earnings_upcoming"},
}

// Translate runs the heuristic pipeline in order, stripping matched
// spans so later steps see a cleaner residue:
//  1. metadata extraction (sector/exchange phrases)
//  2. cross-field comparisons ("<field> below <field>")
//  3. event predicates ("buyback" -> exists)
//  4. logical split (top-level "or", "between X and Y" protected)
//  5. per-segment condition parsing (comparison, growth, units, period)
//  6. field resolution via the longest-alias match
//
// The heuristic pass never rejects; it returns whatever it understood,
// in the worst case a root and-node with a nil child slice. Only the
// LLM fallback returns an error: when an enabled client's call fails or
// its reply is not valid DSL JSON. pkg/validator makes the
// accept/reject decision downstream.
func (t *Translator) Translate(ctx context.Context, query string) (*dsl.Query, error) {
	lower := strings.ToLower(query)

	var meta dsl.Meta
	meta, lower = t.extractMetadata(lower)

	var conds []*dsl.Condition

	if c, rest, ok := t.matchCrossField(lower); ok {
		conds = append(conds, c)
		lower = rest
	}

	if c, rest, ok := t.matchEvent(lower); ok {
		conds = append(conds, c)
		lower = rest
	}

	orGroups := splitLogical(lower)
	var orNodes []*dsl.Filter
	for _, group := range orGroups {
		var andNodes []*dsl.Filter
		for _, segment := range group {
			if c := t.parseSegment(segment); c != nil {
				andNodes = append(andNodes, &dsl.Filter{Kind: dsl.NodeCondition, Cond: c})
			}
		}
		if len(andNodes) > 0 {
			orNodes = append(orNodes, andNode(andNodes))
		}
	}

	for _, c := range conds {
		orNodes = append(orNodes, &dsl.Filter{Kind: dsl.NodeCondition, Cond: c})
	}

	if len(orNodes) == 0 {
		if meta.Sector == "" && meta.Exchange == "" {
			return t.llmFallback(ctx, query)
		}
		// No conditions recognized, sector/exchange narrowing only: an
		// and-node with a nil child slice is the sentinel the
		// validator's structural phase permits at the root; an explicit
		// empty array from client JSON is rejected there.
		return &dsl.Query{Filter: &dsl.Filter{Kind: dsl.NodeAnd}, Meta: meta, Limit: 100}, nil
	}

	var top *dsl.Filter
	if len(orNodes) == 1 {
		top = orNodes[0]
	} else {
		top = &dsl.Filter{Kind: dsl.NodeOr, Or: orNodes}
	}
	if top.Kind != dsl.NodeAnd {
		top = andNode([]*dsl.Filter{top})
	}

	return &dsl.Query{Filter: top, Meta: meta, Limit: 100}, nil
}

func andNode(children []*dsl.Filter) *dsl.Filter {
	return &dsl.Filter{Kind: dsl.NodeAnd, And: children}
}

// --- step 1: metadata extraction ---

func (t *Translator) extractMetadata(lower string) (dsl.Meta, string) {
	var m dsl.Meta
	for _, a := range metadataAliases {
		if idx := strings.Index(lower, a.phrase); idx >= 0 {
			switch a.kind {
			case "sector":
				m.Sector = a.value
			case "exchange":
				m.Exchange = a.value
			}
			lower = lower[:idx] + lower[idx+len(a.phrase):]
		}
	}
	return m, lower
}

// --- step 2: cross-field comparisons ---

// matchCrossField looks for "<phrase> (below|above|under|over) <phrase>"
// where both phrases resolve to catalog fields, and the right-hand
// phrase is not immediately followed by a number (which would make it
// an ordinary threshold comparison instead).
func (t *Translator) matchCrossField(lower string) (*dsl.Condition, string, bool) {
	for _, ok := range crossFieldOperatorKeywords {
		idx := strings.Index(lower, " "+ok.phrase+" ")
		if idx < 0 {
			continue
		}
		left := lower[:idx]
		rightStart := idx + len(ok.phrase) + 2
		right := lower[rightStart:]

		lhsName, _ := t.matchField(left)
		if lhsName == "" {
			continue
		}
		rhsName, rhsSpan := t.matchField(right)
		if rhsName == "" || rhsName == lhsName {
			continue
		}
		// If a number immediately trails the right-hand field phrase,
		// this is a plain threshold comparison, not cross-field.
		trailing := strings.TrimSpace(right[rhsSpan[1]:])
		if numberRe.FindStringIndex(trailing) != nil && strings.Index(trailing, " ") > 3 {
			continue
		}
		cond := &dsl.Condition{Field: lhsName, Operator: ok.op, Value: rhsName, ValueIsField: true}
		residual := left + " " + right[:rhsSpan[0]] + " " + right[rhsSpan[1]:]
		return cond, residual, true
	}
	return nil, lower, false
}

// --- step 3: event predicates ---

func (t *Translator) matchEvent(lower string) (*dsl.Condition, string, bool) {
	for _, ek := range eventKeywords {
		if idx := strings.Index(lower, ek.keyword); idx >= 0 {
			residual := lower[:idx] + lower[idx+len(ek.keyword):]
			return &dsl.Condition{Field: ek.field, Operator: "exists", Value: true}, residual, true
		}
	}
	return nil, lower, false
}

// --- step 4: logical split ---

var betweenGuardRe = regexp.MustCompile(`between\s+-?\d+(\.\d+)?\s+and\s+-?\d+(\.\d+)?`)

// splitLogical splits the residual query into OR-groups of AND-segments.
// "between X and Y" spans are protected from the AND split by temporarily
// replacing their internal "and" with a placeholder token.
func splitLogical(s string) [][]string {
	protected := betweenGuardRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Replace(m, " and ", " \x00AND\x00 ", 1)
	})

	var groups [][]string
	for _, orPart := range strings.Split(protected, " or ") {
		var segs []string
		for _, part := range strings.Split(orPart, " and ") {
			for _, seg := range strings.Split(part, ",") {
				seg = strings.ReplaceAll(seg, "\x00AND\x00", "and")
				seg = strings.TrimSpace(seg)
				if seg != "" {
					segs = append(segs, seg)
				}
			}
		}
		if len(segs) > 0 {
			groups = append(groups, segs)
		}
	}
	return groups
}

// --- step 5: condition parsing per segment ---

var positiveRe = regexp.MustCompile(`^positive\s+(.+)$`)
var growingRe = regexp.MustCompile(`^(?:increasing|growing|rising)\s+(.+)$`)
var growthNounRe = regexp.MustCompile(`(.+?)\s+growth$`)

func (t *Translator) parseSegment(segment string) *dsl.Condition {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return nil
	}

	if m := positiveRe.FindStringSubmatch(segment); m != nil {
		if name, _ := t.matchField(m[1]); name != "" {
			return withPeriod(&dsl.Condition{Field: name, Operator: ">", Value: 0.0}, segment)
		}
	}

	if m := growingRe.FindStringSubmatch(segment); m != nil {
		if name := t.resolveGrowthField(m[1]); name != "" {
			return withPeriod(&dsl.Condition{Field: name, Operator: ">", Value: 0.0}, segment)
		}
	}

	if m := growthNounRe.FindStringSubmatch(segment); m != nil {
		if name := t.resolveGrowthField(m[1]); name != "" {
			return withPeriod(&dsl.Condition{Field: name, Operator: ">", Value: 0.0}, segment)
		}
	}

	field, span := t.matchField(segment)
	if field == "" {
		return nil
	}
	op := matchOperator(segment)
	if op == "" {
		op = ">"
	}
	value, ok := extractNumber(segment, span)
	if !ok {
		return nil
	}

	value = applyUnits(segment, value)
	if f, ok := t.cat.Lookup(field); ok {
		value = rescaleForField(f, segment, value)
	}

	cond := &dsl.Condition{Field: field, Operator: op, Value: value}
	return withPeriod(cond, segment)
}

// resolveGrowthField resolves a base-field phrase to its growth-rate
// sibling, falling back to a direct field match if the phrase already
// names the growth field itself (e.g. "increasing eps_growth").
func (t *Translator) resolveGrowthField(phrase string) string {
	name, _ := t.matchField(phrase)
	if name == "" {
		return ""
	}
	if sib, ok := growthSiblings[name]; ok {
		return sib
	}
	return name
}

func withPeriod(cond *dsl.Condition, segment string) *dsl.Condition {
	for _, pk := range periodKeywords {
		if m := pk.re.FindStringSubmatch(segment); m != nil {
			n := 4
			if len(m) > 1 && m[1] != "" {
				if parsed, err := strconv.Atoi(m[1]); err == nil {
					n = parsed
				}
			}
			agg := pk.aggregation
			for _, ak := range aggregationKeywords {
				if strings.Contains(segment, ak.phrase) {
					agg = ak.value
					break
				}
			}
			cond.Period = &dsl.Period{Type: pk.periodType, N: n, Aggregation: agg}
			break
		}
	}
	return cond
}

// applyUnits scales a parsed literal by a trailing magnitude word
// (crore/lakh/million/billion/thousand/trillion).
func applyUnits(segment string, value float64) float64 {
	for _, u := range unitMultipliers {
		if strings.Contains(segment, u.suffix) {
			return value * u.mult
		}
	}
	return value
}

// rescaleForField auto-normalizes a percent-phrased literal for a
// fraction-scaled field: "dividend yield above 3%" means 0.03, not 3,
// when the catalog stores the column as a 0..1 fraction.
func rescaleForField(field *catalog.Field, segment string, value float64) float64 {
	if field.Scale != catalog.ScaleFraction {
		return value
	}
	if strings.Contains(segment, "%") || value > 1 {
		return value / 100
	}
	return value
}

// matchField finds the longest catalog field name or alias present in
// the query and returns its canonical name and character span.
func (t *Translator) matchField(lower string) (name string, span [2]int) {
	best := -1
	for _, n := range t.cat.Names() {
		f, _ := t.cat.Lookup(n)
		candidates := append([]string{f.Name}, f.Aliases...)
		for _, cand := range candidates {
			needle := strings.ReplaceAll(cand, "_", " ")
			if idx := strings.Index(lower, needle); idx >= 0 && len(needle) > best {
				best = len(needle)
				name = f.Name
				span = [2]int{idx, idx + len(needle)}
			}
		}
	}
	return name, span
}

func matchOperator(lower string) string {
	for _, ok := range operatorKeywords {
		if strings.Contains(lower, ok.phrase) {
			return ok.op
		}
	}
	return ""
}

// extractNumber finds the number nearest to the matched field span —
// the usual "field ... operator ... number" word order means the first
// number after the field mention is almost always the intended
// threshold.
func extractNumber(lower string, fieldSpan [2]int) (float64, bool) {
	rest := lower[fieldSpan[1]:]
	m := numberRe.FindString(rest)
	if m == "" {
		m = numberRe.FindString(lower)
	}
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	return v, err == nil
}

const llmSystemPrompt = `You translate a natural-language stock screener query into JSON
matching this shape: {"filter": {"field": "...", "operator": "...", "value": ...}}
or a nested {"and": [...]}/{"or": [...]}/{"not": {...}} of such conditions.
Only use field names from this catalog: %s.
Only use operators: <, >, <=, >=, =, !=, between, in, not_in, exists.
Respond with JSON only, no prose.`

func (t *Translator) llmFallback(ctx context.Context, query string) (*dsl.Query, error) {
	disabled := false
	if e, ok := t.llm.(interface{ Enabled() bool }); ok {
		disabled = !e.Enabled()
	}
	if t.llm == nil || disabled {
		// Same nil-slice no-conditions sentinel as Translate's
		// sector/exchange-only path.
		return &dsl.Query{Filter: &dsl.Filter{Kind: dsl.NodeAnd}, Limit: 100}, nil
	}
	prompt := fmt.Sprintf(llmSystemPrompt, strings.Join(t.cat.Names(), ", "))
	raw, err := t.llm.Chat(ctx, prompt, query)
	if err != nil {
		return nil, fmt.Errorf("translator: llm fallback: %w", err)
	}
	var q dsl.Query
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("translator: llm returned unparseable DSL: %w", err)
	}
	if q.Limit == 0 {
		q.Limit = 100
	}
	return &q, nil
}
