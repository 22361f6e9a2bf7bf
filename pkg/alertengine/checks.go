package alertengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dewei/screenradar/pkg/dsl"
	"github.com/dewei/screenradar/pkg/model"
)

// checkPriceThreshold compares the latest close against a numeric
// threshold from the condition payload ({operator, value}). A payload
// without a "value" key selects the analyst-target form, whose optional
// "comparison" key picks the target band.
func (e *Engine) checkPriceThreshold(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	quote, err := e.qs.LatestQuote(ctx, sub.Ticker)
	if err != nil {
		return false, "", nil, nil
	}

	if _, hasValue := sub.Condition["value"]; hasValue {
		operator := conditionString(sub.Condition, "operator", "<")
		threshold := conditionFloat(sub.Condition, "value", 0)
		price, _ := quote.Price.Float64()
		if !evalComparison(price, operator, threshold) {
			return false, "", nil, nil
		}
		msg := fmt.Sprintf("%s is trading at %.2f, which is %s %.2f", sub.Ticker, price, operator, threshold)
		data := model.JSONMap{"current_price": price, "operator": operator, "threshold": threshold}
		return true, msg, data, nil
	}

	return e.checkPriceVsAnalystTarget(ctx, sub, quote)
}

// checkPriceVsAnalystTarget compares the latest close against an
// analyst price target band.
func (e *Engine) checkPriceVsAnalystTarget(ctx context.Context, sub *model.AlertSubscription, quote *model.StockQuote) (bool, string, model.JSONMap, error) {
	comparison := conditionString(sub.Condition, "comparison", "below_low_target")

	rows, err := e.qs.Run(ctx, `
		SELECT price_target_low, price_target_avg, price_target_high
		FROM analyst_estimates WHERE ticker = $1
		ORDER BY estimate_date DESC LIMIT 1
	`, []interface{}{sub.Ticker})
	if err != nil {
		return false, "", nil, fmt.Errorf("price_threshold: %w", err)
	}
	if len(rows) == 0 {
		return false, "", nil, nil
	}
	row := rows[0]

	var targetKey string
	switch comparison {
	case "below_avg_target":
		targetKey = "price_target_avg"
	case "below_high_target":
		targetKey = "price_target_high"
	default:
		targetKey = "price_target_low"
	}
	target, ok := row[targetKey]
	if !ok || target == nil {
		return false, "", nil, nil
	}

	price := quote.Price
	targetDec := toDecimal(target)
	if !price.LessThan(targetDec) {
		return false, "", nil, nil
	}

	upside := targetDec.Sub(price).Div(price).Mul(decimalHundred)
	msg := fmt.Sprintf("%s is trading below %s (%s). Current: %s, Target: %s (upside %s%%)",
		sub.Ticker, comparison, targetKey, price.StringFixed(2), targetDec.StringFixed(2), upside.StringFixed(2))
	data := model.JSONMap{
		"current_price": price.String(),
		"target_low":    row["price_target_low"],
		"target_avg":    row["price_target_avg"],
		"target_high":   row["price_target_high"],
	}
	return true, msg, data, nil
}

// changePeriodDays maps the price_change look-back spellings onto
// calendar days.
var changePeriodDays = map[string]int{"1d": 1, "1w": 7, "1m": 30}

// checkPriceChange computes the percent move from a baseline: either
// an explicit reference price or a look-back period ("1d", "1w", "1m")
// resolved against price history.
func (e *Engine) checkPriceChange(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	thresholdPercent := conditionFloat(sub.Condition, "threshold_percent", 10)
	direction := conditionString(sub.Condition, "direction", "down")
	baseline := conditionFloat(sub.Condition, "reference_price", 0)

	if baseline <= 0 {
		days := changePeriodDays[conditionString(sub.Condition, "period", "")]
		if days == 0 {
			return false, "", nil, nil
		}
		rows, err := e.qs.Run(ctx, fmt.Sprintf(`
			SELECT close FROM price_history
			WHERE ticker = $1 AND date <= CURRENT_DATE - INTERVAL '%d days'
			ORDER BY date DESC LIMIT 1
		`, days), []interface{}{sub.Ticker})
		if err != nil || len(rows) == 0 {
			return false, "", nil, err
		}
		baseline = toFloat(rows[0]["close"])
		if baseline <= 0 {
			return false, "", nil, nil
		}
	}

	quote, err := e.qs.LatestQuote(ctx, sub.Ticker)
	if err != nil {
		return false, "", nil, nil
	}

	current, _ := quote.Price.Float64()
	var changePercent float64
	if direction == "up" {
		changePercent = ((current - baseline) / baseline) * 100
	} else {
		changePercent = ((baseline - current) / baseline) * 100
	}

	if changePercent < thresholdPercent {
		return false, "", nil, nil
	}

	msg := fmt.Sprintf("%s moved %.2f%% %s from reference price. Current: %.2f, Reference: %.2f",
		sub.Ticker, changePercent, direction, current, baseline)
	data := model.JSONMap{
		"current_price":  current,
		"reference":      baseline,
		"change_percent": changePercent,
		"threshold":      thresholdPercent,
	}
	return true, msg, data, nil
}

// checkFundamental evaluates metric conditions against the latest
// fundamentals_quarterly row. Operators are read from the payload as
// stored and must use the symbolic spelling; a word such as "above" is
// not translated and makes the comparison false. The canonical payload is
// {metric, operator, value} with metric checked against the field
// catalog; the map-of-rules form ({pe_ratio: {operator, value}, ...})
// is accepted for multi-metric subscriptions.
func (e *Engine) checkFundamental(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	rows, err := e.qs.Run(ctx, `SELECT * FROM fundamentals_quarterly WHERE symbol = $1 ORDER BY quarter_end DESC LIMIT 1`,
		[]interface{}{sub.Ticker})
	if err != nil {
		return false, "", nil, fmt.Errorf("fundamental: %w", err)
	}
	if len(rows) == 0 {
		return false, "", nil, nil
	}
	row := rows[0]

	if metric := conditionString(sub.Condition, "metric", ""); metric != "" {
		field, ok := e.cat.Lookup(metric)
		if !ok {
			return false, "", nil, fmt.Errorf("fundamental: metric %q is not in the field catalog", metric)
		}
		value, present := row[field.Source.Column]
		if !present || value == nil {
			return false, "", nil, nil
		}
		operator := conditionString(sub.Condition, "operator", "<")
		threshold := conditionFloat(sub.Condition, "value", 0)
		actual := toFloat(value)
		if !evalComparison(actual, operator, threshold) {
			return false, "", nil, nil
		}
		msg := fmt.Sprintf("%s: %s is %.4f, which is %s %v", sub.Ticker, field.Name, actual, operator, threshold)
		data := model.JSONMap{"metric": field.Name, "actual": actual, "operator": operator, "threshold": threshold}
		return true, msg, data, nil
	}

	var met []string
	for field, raw := range sub.Condition {
		rule, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		value, present := row[field]
		if !present || value == nil {
			continue
		}
		operator, _ := rule["operator"].(string)
		threshold, ok := rule["value"].(float64)
		if !ok {
			continue
		}
		actual := toFloat(value)
		if evalComparison(actual, operator, threshold) {
			met = append(met, fmt.Sprintf("%s %s %v (actual %.4f)", field, operator, threshold, actual))
		} else {
			// Any failed condition fails the whole rule set.
			return false, "", nil, nil
		}
	}
	if len(met) == 0 {
		return false, "", nil, nil
	}

	msg := fmt.Sprintf("%s meets fundamental conditions: %v", sub.Ticker, met)
	data := model.JSONMap{"conditions_met": met, "quarter_end": row["quarter_end"]}
	return true, msg, data, nil
}

// checkEvent matches a date window: an upcoming scheduled earnings
// date within days_before, or a past buyback announcement within
// days_lookback.
func (e *Engine) checkEvent(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	eventType := conditionString(sub.Condition, "event_type", "earnings_upcoming")

	switch eventType {
	case "earnings_upcoming":
		daysBefore := conditionInt(sub.Condition, "days_before", 30)
		rows, err := e.qs.Run(ctx, fmt.Sprintf(`
			SELECT earnings_date, fiscal_quarter, fiscal_year FROM earnings_calendar
			WHERE ticker = $1 AND earnings_date >= CURRENT_DATE
			  AND earnings_date <= CURRENT_DATE + INTERVAL '%d days' AND status = 'scheduled'
			ORDER BY earnings_date ASC LIMIT 1
		`, daysBefore), []interface{}{sub.Ticker})
		if err != nil || len(rows) == 0 {
			return false, "", nil, err
		}
		row := rows[0]
		msg := fmt.Sprintf("%s has earnings scheduled on %v (%v %v)", sub.Ticker, row["earnings_date"], row["fiscal_quarter"], row["fiscal_year"])
		return true, msg, model.JSONMap(row), nil

	case "buyback_announced":
		daysLookback := conditionInt(sub.Condition, "days_lookback", 90)
		rows, err := e.qs.Run(ctx, fmt.Sprintf(`
			SELECT announcement_date, amount, buyback_percentage, status FROM buybacks
			WHERE ticker = $1 AND announcement_date >= CURRENT_DATE - INTERVAL '%d days'
			ORDER BY announcement_date DESC LIMIT 1
		`, daysLookback), []interface{}{sub.Ticker})
		if err != nil || len(rows) == 0 {
			return false, "", nil, err
		}
		row := rows[0]
		msg := fmt.Sprintf("%s announced a buyback on %v (%v%% of shares)", sub.Ticker, row["announcement_date"], row["buyback_percentage"])
		return true, msg, model.JSONMap(row), nil

	case "significant_news":
		return e.checkSignificantNews(ctx, sub)

	default:
		return false, "", nil, fmt.Errorf("event: unknown event_type %q", eventType)
	}
}

// checkSignificantNews: a news item counts as significant if its
// impact score clears the threshold or it carries negative sentiment.
// When an LLM client is configured and enabled, its explanation is
// attached to the alert data; otherwise the check still triggers on
// the impact/sentiment signal alone.
func (e *Engine) checkSignificantNews(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	minImpact := conditionFloat(sub.Condition, "min_impact", 0.7)

	items, err := e.db.News().GetByTicker(sub.Ticker, 5)
	if err != nil {
		return false, "", nil, fmt.Errorf("significant_news: %w", err)
	}

	for _, item := range items {
		if item.Impact < minImpact && item.Sentiment != model.NewsSentimentNegative {
			continue
		}
		msg := fmt.Sprintf("%s: significant news \"%s\" (impact %.2f, sentiment %s)",
			sub.Ticker, item.Title, item.Impact, item.Sentiment)
		data := model.JSONMap{
			"news_id":   item.ID,
			"title":     item.Title,
			"impact":    item.Impact,
			"sentiment": item.Sentiment,
		}
		if e.llm != nil && e.llm.Enabled() {
			if analysis, err := e.llm.GenerateNewsAnalysis(ctx, item); err == nil {
				data["ai_analysis"] = analysis
			}
		}
		return true, msg, data, nil
	}
	return false, "", nil, nil
}

// checkTechnical compares the simple moving average of the last
// sma_window closes (default 20) against the payload's threshold with
// the payload's operator; it does not detect crossings. It uses the same per-field operator
// machinery as checkFundamental, applied to price_history instead of
// fundamentals_quarterly.
func (e *Engine) checkTechnical(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	window := conditionInt(sub.Condition, "sma_window", 20)
	operator := conditionString(sub.Condition, "operator", ">")
	threshold := conditionFloat(sub.Condition, "value", 0)

	rows, err := e.qs.Run(ctx, fmt.Sprintf(`
		SELECT AVG(close) AS sma FROM (
			SELECT close FROM price_history WHERE ticker = $1 ORDER BY date DESC LIMIT %d
		) recent
	`, window), []interface{}{sub.Ticker})
	if err != nil {
		return false, "", nil, fmt.Errorf("technical: %w", err)
	}
	if len(rows) == 0 || rows[0]["sma"] == nil {
		return false, "", nil, nil
	}
	sma := toFloat(rows[0]["sma"])

	if !evalComparison(sma, operator, threshold) {
		return false, "", nil, nil
	}
	msg := fmt.Sprintf("%s's %d-day SMA is %.2f, which is %s %.2f", sub.Ticker, window, sma, operator, threshold)
	data := model.JSONMap{"sma": sma, "window": window, "operator": operator, "threshold": threshold}
	return true, msg, data, nil
}

// checkCustomDSL reads the condition payload as a DSL query and runs it
// through the validator and compiler (no translator step), narrowed to
// one ticker; triggered iff the compiled query
// returns any row for that ticker.
func (e *Engine) checkCustomDSL(ctx context.Context, sub *model.AlertSubscription) (bool, string, model.JSONMap, error) {
	raw, err := json.Marshal(sub.Condition)
	if err != nil {
		return false, "", nil, fmt.Errorf("custom_dsl: marshal condition: %w", err)
	}
	var q dsl.Query
	if err := json.Unmarshal(raw, &q); err != nil {
		return false, "", nil, fmt.Errorf("custom_dsl: condition is not a valid query: %w", err)
	}

	compiled, err := e.buildTickerQuery(&q, sub.Ticker)
	if err != nil {
		return false, "", nil, err
	}

	exists, err := e.qs.Exists(ctx, compiled.SQL, compiled.Params)
	if err != nil {
		return false, "", nil, fmt.Errorf("custom_dsl: %w", err)
	}
	if !exists {
		return false, "", nil, nil
	}
	msg := fmt.Sprintf("%s matches its custom screener condition", sub.Ticker)
	return true, msg, nil, nil
}
