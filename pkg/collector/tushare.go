package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dewei/screenradar/pkg/model"
)

// TushareAdapter adapts the Tushare Pro API to the QuoteFetcher
// interface, normalizing its float/string mixed JSON items into
// decimal.Decimal-backed model.StockQuote values.
type TushareAdapter struct {
	client *TushareClient
}

func NewTushareAdapter(apiKey, baseURL string) *TushareAdapter {
	return &TushareAdapter{client: NewTushareClient(apiKey, baseURL)}
}

func (t *TushareAdapter) FetchRealtime(ctx context.Context, tickers []string) ([]*model.StockQuote, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("collector: FetchRealtime: empty ticker list")
	}

	resp, err := t.client.GetRealtimeQuotes(ctx, map[string]interface{}{
		"ts_code": joinCodes(tickers),
	})
	if err != nil {
		return nil, fmt.Errorf("collector: fetch realtime quotes: %w", err)
	}
	return t.normalizeQuotes(resp)
}

func (t *TushareAdapter) FetchDaily(ctx context.Context, ticker string, days int) ([]*model.StockQuote, error) {
	if ticker == "" {
		return nil, fmt.Errorf("collector: FetchDaily: empty ticker")
	}
	if days <= 0 {
		days = 1
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	resp, err := t.client.GetDailyQuotes(ctx, map[string]interface{}{
		"ts_code":    ticker,
		"start_date": start.Format("20060102"),
		"end_date":   end.Format("20060102"),
	})
	if err != nil {
		return nil, fmt.Errorf("collector: fetch daily quotes for %s: %w", ticker, err)
	}
	return t.normalizeQuotes(resp)
}

func (t *TushareAdapter) normalizeQuotes(resp *TushareResponse) ([]*model.StockQuote, error) {
	fieldIndices := make(map[string]int, len(resp.Data.Fields))
	for i, field := range resp.Data.Fields {
		fieldIndices[field] = i
	}
	for _, required := range []string{"ts_code", "close"} {
		if _, ok := fieldIndices[required]; !ok {
			return nil, fmt.Errorf("collector: tushare response missing field %q", required)
		}
	}

	result := make([]*model.StockQuote, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		symbol, _ := item[fieldIndices["ts_code"]].(string)
		quote := &model.StockQuote{
			Symbol:    symbol,
			Price:     toDecimal(item[fieldIndices["close"]]),
			Timestamp: time.Now(),
		}

		if idx, ok := fieldIndices["open"]; ok {
			quote.Open = toDecimal(item[idx])
		}
		if idx, ok := fieldIndices["high"]; ok {
			quote.High = toDecimal(item[idx])
		}
		if idx, ok := fieldIndices["low"]; ok {
			quote.Low = toDecimal(item[idx])
		}
		if idx, ok := fieldIndices["vol"]; ok {
			quote.Volume = toDecimal(item[idx])
		}
		if idx, ok := fieldIndices["pct_chg"]; ok {
			quote.ChangePercent = toDecimal(item[idx])
		}
		if idx, ok := fieldIndices["name"]; ok {
			if name, ok := item[idx].(string); ok {
				quote.Name = name
			}
		}

		result = append(result, quote)
	}
	return result, nil
}

func joinCodes(codes []string) string {
	return strings.Join(codes, ",")
}

// toFloat64 converts a JSON-decoded value (float64, string, or an
// integer type) to float64. Tushare responses mix numeric-as-string
// fields with genuine JSON numbers depending on the endpoint.
func toFloat64(v interface{}) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case string:
		return strconv.ParseFloat(value, 64)
	default:
		return 0, fmt.Errorf("collector: cannot convert %v (%T) to float64", v, v)
	}
}

func toDecimal(v interface{}) decimal.Decimal {
	f, err := toFloat64(v)
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}
