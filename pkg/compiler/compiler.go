// Package compiler turns a validated DSL tree into parameterized SQL:
// positional placeholders only, never a string-interpolated literal.
// The compiler performs no I/O and assumes its input already passed
// pkg/validator — CompilationError is reserved for structural failures
// the validator cannot catch ahead of time (e.g. an unmappable sort
// field slipping through a caller that skipped validation).
//
// The base query LEFT JOIN LATERALs the latest row per instrument
// from each snapshot table; the predicate walks the tagged-union
// dsl.Filter and emits positional ($1, $2, ...) placeholders.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/dsl"
)

// CompilationError reports a failure to compile an (assumed-valid) query.
type CompilationError struct {
	Path    string
	Message string
}

func (e *CompilationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result is everything a caller needs to execute the compiled query.
type Result struct {
	SQL            string
	Params         []interface{}
	RequiredTables []string
	UsesTimeSeries bool
	UsesDerived    bool
	ComplexityScore int
}

type Config struct {
	DefaultLimit int
}

func DefaultConfig() Config { return Config{DefaultLimit: 100} }

type Compiler struct {
	cat *catalog.Catalog
	cfg Config
}

func New(cat *catalog.Catalog, cfg Config) *Compiler {
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 100
	}
	return &Compiler{cat: cat, cfg: cfg}
}

type state struct {
	params  []interface{}
	tables  map[string]bool
	usesTS  bool
	usesDer bool
	complexity int
}

func (s *state) nextPlaceholder(v interface{}) string {
	s.params = append(s.params, v)
	return fmt.Sprintf("$%d", len(s.params))
}

func (s *state) useTable(t string) { s.tables[t] = true }

// Compile produces the full SELECT statement for a screener query.
func (c *Compiler) Compile(q *dsl.Query) (*Result, error) {
	return c.compile(q, "")
}

// CompileForTicker compiles q the same way as Compile, but narrows the
// result to a single instrument by adding a `c.symbol = $N` clause
// into the WHERE list rather than appending raw text after LIMIT —
// used by the custom_dsl alert kind, which reuses a screener-shaped
// condition to test just one ticker.
func (c *Compiler) CompileForTicker(q *dsl.Query, ticker string) (*Result, error) {
	return c.compile(q, ticker)
}

func (c *Compiler) compile(q *dsl.Query, ticker string) (*Result, error) {
	st := &state{tables: map[string]bool{"companies": true}}

	where, err := c.compileFilter(q.Filter, st)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(baseSelect)
	b.WriteString(baseJoins)

	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}
	if m := c.compileMeta(q.Meta, st); m != "" {
		clauses = append(clauses, m)
	}
	if ticker != "" {
		clauses = append(clauses, fmt.Sprintf("c.symbol = %s", st.nextPlaceholder(ticker)))
	}
	b.WriteString("\nWHERE ")
	if len(clauses) > 0 {
		b.WriteString(strings.Join(clauses, "\nAND "))
	} else {
		// An empty filter is a full-universe screen.
		b.WriteString("1=1")
	}

	if q.Sort != nil {
		orderSQL, err := c.compileSort(q.Sort)
		if err != nil {
			return nil, err
		}
		b.WriteString("\n")
		b.WriteString(orderSQL)
	} else {
		b.WriteString("\nORDER BY c.market_cap DESC NULLS LAST")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = c.cfg.DefaultLimit
	}
	b.WriteString(fmt.Sprintf("\nLIMIT %s", st.nextPlaceholder(limit)))

	tables := make([]string, 0, len(st.tables))
	for t := range st.tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	return &Result{
		SQL:             b.String(),
		Params:          st.params,
		RequiredTables:  tables,
		UsesTimeSeries:  st.usesTS,
		UsesDerived:     st.usesDer,
		ComplexityScore: st.complexity,
	}, nil
}

// baseSelect projects instrument identity plus the display metrics.
// Fundamentals columns fall back to the latest non-null observation
// because the absolute-latest row is often sparsely populated; the
// fallback widens only the projection, never the predicate.
const baseSelect = `SELECT DISTINCT
    c.symbol,
    c.name,
    c.sector,
    c.market_cap,
    COALESCE(fq.pe_ratio, (SELECT pe_ratio FROM fundamentals_quarterly WHERE symbol = c.symbol AND pe_ratio IS NOT NULL ORDER BY quarter_end DESC LIMIT 1)) AS pe_ratio,
    COALESCE(fq.roe, (SELECT roe FROM fundamentals_quarterly WHERE symbol = c.symbol AND roe IS NOT NULL ORDER BY quarter_end DESC LIMIT 1)) AS roe,
    COALESCE(fq.net_income, (SELECT net_income FROM fundamentals_quarterly WHERE symbol = c.symbol AND net_income IS NOT NULL ORDER BY quarter_end DESC LIMIT 1)) AS net_income,
    COALESCE(fq.revenue, (SELECT revenue FROM fundamentals_quarterly WHERE symbol = c.symbol AND revenue IS NOT NULL ORDER BY quarter_end DESC LIMIT 1)) AS revenue`

// baseJoins attaches the latest snapshot row per instrument from each
// supporting table via LEFT JOIN LATERAL. The projection, cross-field
// comparisons and derived-metric expressions read these joined rows;
// standard predicates on time-series columns go through
// latestNonNullRef instead.
const baseJoins = `
FROM companies c
LEFT JOIN LATERAL (
    SELECT * FROM fundamentals_quarterly fq2
    WHERE fq2.symbol = c.symbol ORDER BY fq2.quarter_end DESC LIMIT 1
) fq ON TRUE
LEFT JOIN LATERAL (
    SELECT * FROM price_history ph2
    WHERE ph2.ticker = c.symbol ORDER BY ph2.date DESC LIMIT 1
) ph ON TRUE
LEFT JOIN LATERAL (
    SELECT * FROM analyst_estimates ae2
    WHERE ae2.ticker = c.symbol ORDER BY ae2.estimate_date DESC LIMIT 1
) ae ON TRUE`

// aliasForTable maps a catalog table name to the joined alias used in
// the base query (or "" if the table is only ever reached through a
// correlated subquery, e.g. period/event tables).
func aliasForTable(table string) string {
	switch table {
	case "companies":
		return "c"
	case "fundamentals_quarterly":
		return "fq"
	case "price_history":
		return "ph"
	case "analyst_estimates":
		return "ae"
	default:
		return ""
	}
}

func (c *Compiler) compileFilter(f *dsl.Filter, st *state) (string, error) {
	if f == nil {
		return "", nil
	}
	switch f.Kind {
	case dsl.NodeAnd:
		parts, err := c.compileChildren(f.And, st)
		if err != nil {
			return "", err
		}
		if len(parts) == 0 {
			return "", nil
		}
		st.complexity++
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case dsl.NodeOr:
		parts, err := c.compileChildren(f.Or, st)
		if err != nil {
			return "", err
		}
		if len(parts) == 0 {
			return "", nil
		}
		st.complexity++
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case dsl.NodeNot:
		inner, err := c.compileFilter(f.Not, st)
		if err != nil {
			return "", err
		}
		if inner == "" {
			return "", nil
		}
		st.complexity += 2
		return "NOT (" + inner + ")", nil
	default:
		return c.compileCondition(f.Cond, st)
	}
}

// compileChildren compiles a logical node's children, dropping empty
// fragments (a nested empty and/or group contributes nothing).
func (c *Compiler) compileChildren(subs []*dsl.Filter, st *state) ([]string, error) {
	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		s, err := c.compileFilter(sub, st)
		if err != nil {
			return nil, err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts, nil
}

func (c *Compiler) compileCondition(cond *dsl.Condition, st *state) (string, error) {
	field, ok := c.cat.Lookup(cond.Field)
	if !ok {
		return "", &CompilationError{Path: "field", Message: fmt.Sprintf("unknown field %q", cond.Field)}
	}

	if cond.ValueIsField {
		return c.compileCrossFieldCondition(field, cond, st)
	}
	if field.Derived {
		return c.compileDerivedCondition(field, cond, st)
	}
	if cond.Period != nil {
		return c.compileTemporalCondition(field, cond, st)
	}
	if cond.Operator == "increasing" || cond.Operator == "decreasing" || cond.Operator == "stable" {
		return "", &CompilationError{Path: "operator", Message: "trend operators require a period clause"}
	}
	return c.compileStandardCondition(field, cond, st)
}

// columnRef returns the SQL expression for reading a non-derived
// field's latest value: the joined alias's column when one exists,
// otherwise a correlated scalar subquery against the base table.
func (c *Compiler) columnRef(field *catalog.Field, st *state) string {
	st.useTable(field.Source.Table)
	if alias := aliasForTable(field.Source.Table); alias != "" {
		return alias + "." + field.Source.Column
	}
	return fmt.Sprintf("(SELECT %s FROM %s WHERE %s = c.symbol ORDER BY %s DESC LIMIT 1)",
		field.Source.Column, field.Source.Table, field.Source.KeyColumn, field.Source.OrderColumn)
}

// latestNonNullRef is the predicate-side reference for a time-series
// column: the most recent row where the column is defined. The
// LATERAL-projected row must never decide predicate truth for a sparse
// time-series column — its latest row may hold a null where an older
// row holds the real value.
func (c *Compiler) latestNonNullRef(field *catalog.Field, st *state) string {
	st.useTable(field.Source.Table)
	return fmt.Sprintf("(SELECT %s FROM %s WHERE %s = c.symbol AND %s IS NOT NULL ORDER BY %s DESC LIMIT 1)",
		field.Source.Column, field.Source.Table, field.Source.KeyColumn, field.Source.Column, field.Source.OrderColumn)
}

// predicateRef picks the right reading of a field for predicate
// position: latest-non-null for time-series columns, the joined alias
// (or latest-row subquery) otherwise.
func (c *Compiler) predicateRef(field *catalog.Field, st *state) string {
	if field.TimeSeries {
		return c.latestNonNullRef(field, st)
	}
	return c.columnRef(field, st)
}

func (c *Compiler) compileStandardCondition(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	column := c.predicateRef(field, st)

	if cond.NullHandling != nil {
		return c.compileWithNullHandling(field, column, cond, st)
	}

	switch cond.Operator {
	case "between":
		return c.compileBetween(column, cond.Value, st)
	case "in":
		return c.compileIn(column, cond.Value, false, st)
	case "not_in":
		return c.compileIn(column, cond.Value, true, st)
	case "exists":
		b, _ := cond.Value.(bool)
		if b {
			return column + " IS NOT NULL", nil
		}
		return column + " IS NULL", nil
	default:
		return c.compileComparison(column, cond.Operator, cond.Value, st)
	}
}

var symbolicOperators = map[string]string{
	"<": "<", ">": ">", "<=": "<=", ">=": ">=", "=": "=", "!=": "!=",
}

func (c *Compiler) compileComparison(column, operator string, value interface{}, st *state) (string, error) {
	sqlOp, ok := symbolicOperators[operator]
	if !ok {
		return "", &CompilationError{Path: "operator", Message: fmt.Sprintf("unknown comparison operator %q", operator)}
	}
	ph := st.nextPlaceholder(value)
	return fmt.Sprintf("%s %s %s", column, sqlOp, ph), nil
}

func (c *Compiler) compileBetween(column string, value interface{}, st *state) (string, error) {
	arr, ok := value.([]interface{})
	if !ok || len(arr) != 2 {
		return "", &CompilationError{Path: "value", Message: "between requires an array of 2 values"}
	}
	lo := st.nextPlaceholder(arr[0])
	hi := st.nextPlaceholder(arr[1])
	return fmt.Sprintf("%s BETWEEN %s AND %s", column, lo, hi), nil
}

func (c *Compiler) compileIn(column string, value interface{}, negate bool, st *state) (string, error) {
	arr, ok := value.([]interface{})
	if !ok {
		return "", &CompilationError{Path: "value", Message: "in/not_in requires an array value"}
	}
	placeholders := make([]string, len(arr))
	for i, v := range arr {
		placeholders[i] = st.nextPlaceholder(v)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ", ")), nil
}

func (c *Compiler) compileWithNullHandling(field *catalog.Field, column string, cond *dsl.Condition, st *state) (string, error) {
	nh := cond.NullHandling
	switch nh.Strategy {
	case "exclude", "fail":
		cmp, err := c.compileComparison(column, cond.Operator, cond.Value, st)
		if err != nil {
			return "", err
		}
		if nh.Strategy == "fail" {
			return cmp, nil
		}
		return fmt.Sprintf("(%s IS NOT NULL AND %s)", column, cmp), nil
	case "use_default":
		def := nh.DefaultValue
		if def == nil {
			def = 0
		}
		ph := st.nextPlaceholder(def)
		coalesced := fmt.Sprintf("COALESCE(%s, %s)", column, ph)
		return c.compileComparison(coalesced, cond.Operator, cond.Value, st)
	case "use_latest":
		// The latest non-null value across the field's full history,
		// not merely the latest row (which may itself be null).
		return c.compileComparison(c.latestNonNullRef(field, st), cond.Operator, cond.Value, st)
	case "interpolate":
		return "", &CompilationError{Path: "null_handling", Message: "interpolate strategy is not implemented"}
	default:
		return "", &CompilationError{Path: "null_handling", Message: fmt.Sprintf("unknown null handling strategy %q", nh.Strategy)}
	}
}

func (c *Compiler) compileTemporalCondition(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	st.usesTS = true
	p := cond.Period
	switch p.Aggregation {
	case "all":
		return c.compileAllPeriods(field, cond, st)
	case "any":
		return c.compileAnyPeriod(field, cond, st)
	case "avg", "sum", "min", "max":
		return c.compileAggregatedPeriod(field, cond, st)
	case "trend":
		return c.compileTrend(field, cond, st)
	case "latest":
		return c.compileStandardCondition(field, cond, st)
	default:
		return "", &CompilationError{Path: "period.aggregation", Message: fmt.Sprintf("unknown aggregation %q", p.Aggregation)}
	}
}

// rowsForPeriod maps a period type onto the number of most-recent rows
// the window subquery reads from the field's (quarterly or annual)
// snapshot table.
func rowsForPeriod(p *dsl.Period) int {
	switch p.Type {
	case "last_n_years":
		return p.N * 4
	case "trailing_12_months":
		return 4
	case "quarter_over_quarter":
		return 2
	case "year_over_year":
		return 5
	default: // last_n_quarters
		return p.N
	}
}

// windowSubquery selects the last N non-null observations of a
// time-series column for the current instrument; N arrives as a
// placeholder so the window depth is parameterized like every other
// user-supplied value.
func (c *Compiler) windowSubquery(field *catalog.Field, cond *dsl.Condition, st *state) string {
	st.useTable(field.Source.Table)
	limitPh := st.nextPlaceholder(rowsForPeriod(cond.Period))
	return fmt.Sprintf(
		"SELECT %s AS val FROM %s WHERE %s = c.symbol AND %s IS NOT NULL ORDER BY %s DESC LIMIT %s",
		field.Source.Column, field.Source.Table, field.Source.KeyColumn,
		field.Source.Column, field.Source.OrderColumn, limitPh,
	)
}

// compileAllPeriods implements the "all" aggregation as a NOT EXISTS
// over window rows that violate the condition — vacuously true when
// the window has fewer than N rows:
// partial data relaxes the condition rather than failing it.
func (c *Compiler) compileAllPeriods(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	inverted, err := invertOperator(cond.Operator)
	if err != nil {
		return "", err
	}
	window := c.windowSubquery(field, cond, st)
	violation, err := c.compileComparison("w.val", inverted, cond.Value, st)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM (%s) w WHERE %s)", window, violation), nil
}

func (c *Compiler) compileAnyPeriod(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	window := c.windowSubquery(field, cond, st)
	match, err := c.compileComparison("w.val", cond.Operator, cond.Value, st)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM (%s) w WHERE %s)", window, match), nil
}

func (c *Compiler) compileAggregatedPeriod(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	agg := strings.ToUpper(cond.Period.Aggregation)
	window := c.windowSubquery(field, cond, st)
	sub := fmt.Sprintf("(SELECT %s(val) FROM (%s) w)", agg, window)
	return c.compileComparison(sub, cond.Operator, cond.Value, st)
}

// compileTrend implements the "trend" aggregation in pure SQL with a
// LAG() window function over the ordering column:
// the compiler never hands a condition back to the caller for
// host-side evaluation.
func (c *Compiler) compileTrend(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	st.useTable(field.Source.Table)
	tc := cond.TrendConfig
	if tc == nil {
		return "", &CompilationError{Path: "trend_config", Message: "trend aggregation requires trend_config"}
	}
	minPeriods := tc.MinPeriods
	if minPeriods < 2 {
		minPeriods = 2
	}
	var cmp string
	switch tc.Direction {
	case "increasing":
		cmp = "v.val > v.prev_val"
	case "decreasing":
		cmp = "v.val < v.prev_val"
	case "stable":
		cmp = "v.val = v.prev_val"
	default:
		return "", &CompilationError{Path: "trend_config.direction", Message: fmt.Sprintf("unknown direction %q", tc.Direction)}
	}
	limitPh := st.nextPlaceholder(minPeriods)
	thresholdPh := st.nextPlaceholder(minPeriods - 1)
	sub := fmt.Sprintf(`(
        SELECT COUNT(*) FROM (
            SELECT fq2.%s AS val,
                   LAG(fq2.%s) OVER (ORDER BY fq2.%s) AS prev_val
            FROM %s fq2
            WHERE fq2.%s = c.symbol
            ORDER BY fq2.%s DESC
            LIMIT %s
        ) v WHERE v.prev_val IS NOT NULL AND %s
    ) >= %s`,
		field.Source.Column, field.Source.Column, field.Source.OrderColumn,
		field.Source.Table, field.Source.KeyColumn, field.Source.OrderColumn,
		limitPh, cmp, thresholdPh)
	return strings.TrimSpace(sub), nil
}

func invertOperator(op string) (string, error) {
	switch op {
	case ">":
		return "<=", nil
	case ">=":
		return "<", nil
	case "<":
		return ">=", nil
	case "<=":
		return ">", nil
	case "=":
		return "!=", nil
	case "!=":
		return "=", nil
	default:
		return "", &CompilationError{Path: "operator", Message: fmt.Sprintf("operator %q cannot be inverted for 'all' aggregation", op)}
	}
}

// compileDerivedCondition always expands to the catalog's guarded
// SQLExpr; a derived field never appears as a raw column reference.
func (c *Compiler) compileDerivedCondition(field *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	st.usesDer = true
	if field.SQLExpr == "" {
		return "", &CompilationError{Path: "field", Message: fmt.Sprintf("derived metric %q has no SQL expression", field.Name)}
	}
	st.useTable("fundamentals_quarterly")
	return c.compileComparison("("+field.SQLExpr+")", cond.Operator, cond.Value, st)
}

// compileCrossFieldCondition emits lhs.col OP rhs.col, adding both
// fields' tables to the required set ("current price below analyst
// target" and friends).
func (c *Compiler) compileCrossFieldCondition(lhs *catalog.Field, cond *dsl.Condition, st *state) (string, error) {
	name, ok := cond.Value.(string)
	if !ok {
		return "", &CompilationError{Path: "value", Message: "value_is_field requires a string field name"}
	}
	rhs, ok := c.cat.Lookup(name)
	if !ok {
		return "", &CompilationError{Path: "value", Message: fmt.Sprintf("unknown field %q", name)}
	}
	sqlOp, ok := symbolicOperators[cond.Operator]
	if !ok {
		return "", &CompilationError{Path: "operator", Message: fmt.Sprintf("unknown comparison operator %q", cond.Operator)}
	}
	lhsCol := c.fieldRef(lhs, st)
	rhsCol := c.fieldRef(rhs, st)
	return fmt.Sprintf("%s %s %s", lhsCol, sqlOp, rhsCol), nil
}

// fieldRef resolves a field (derived or plain) to its SQL expression,
// shared by the cross-field path so both sides go through the same
// derived-expansion and table-tracking rules as a standard condition.
func (c *Compiler) fieldRef(field *catalog.Field, st *state) string {
	if field.Derived {
		st.usesDer = true
		st.useTable("fundamentals_quarterly")
		return "(" + field.SQLExpr + ")"
	}
	return c.columnRef(field, st)
}

func (c *Compiler) compileMeta(m dsl.Meta, st *state) string {
	var clauses []string
	if m.Sector != "" {
		clauses = append(clauses, fmt.Sprintf("c.sector = %s", st.nextPlaceholder(m.Sector)))
	}
	if m.Exchange != "" {
		clauses = append(clauses, fmt.Sprintf("c.exchange = %s", st.nextPlaceholder(m.Exchange)))
	}
	return strings.Join(clauses, " AND ")
}

// compileSort orders by an output column of the projection — under
// SELECT DISTINCT, ORDER BY may only reference expressions in the
// select list, so only catalog fields marked Sortable qualify.
func (c *Compiler) compileSort(s *dsl.Sort) (string, error) {
	field, ok := c.cat.Lookup(s.Field)
	if !ok {
		return "", &CompilationError{Path: "sort.field", Message: fmt.Sprintf("unknown sort field %q", s.Field)}
	}
	if !field.Sortable {
		return "", &CompilationError{Path: "sort.field", Message: fmt.Sprintf("field %q is not sortable", s.Field)}
	}
	order := strings.ToUpper(s.Order)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	column := field.Source.Column
	if field.Source.Table == "companies" {
		column = "c." + column
	}
	return fmt.Sprintf("ORDER BY %s %s", column, order), nil
}
