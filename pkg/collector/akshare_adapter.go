package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dewei/screenradar/pkg/model"
)

// AKShareAdapter is a second QuoteFetcher backed by a self-hosted
// AKShare HTTP gateway, covering A-share (.SH/.SZ) and Hong Kong
// (.HK) tickers that Tushare's realtime endpoint doesn't serve. It
// caches the full per-market snapshot for the lifetime of one
// FetchRealtime call rather than issuing one request per ticker.
type AKShareAdapter struct {
	baseURL         string
	httpClient      *http.Client
	requestInterval time.Duration
	maxRetries      int
}

func NewAKShareAdapter(baseURL string) *AKShareAdapter {
	return &AKShareAdapter{
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		requestInterval: 2 * time.Second,
		maxRetries:      3,
	}
}

type akshareMarket struct {
	apiPath string
	label   string
}

func marketFor(ticker string) (akshareMarket, string, error) {
	switch {
	case strings.HasSuffix(ticker, ".SH"), strings.HasSuffix(ticker, ".SZ"):
		return akshareMarket{apiPath: "/api/public/stock_zh_a_spot_em", label: "A-share"}, strings.Split(ticker, ".")[0], nil
	case strings.HasSuffix(ticker, ".HK"):
		return akshareMarket{apiPath: "/api/public/stock_hk_spot_em", label: "HK"}, strings.Split(ticker, ".")[0], nil
	default:
		return akshareMarket{}, "", fmt.Errorf("collector: unsupported ticker format %q", ticker)
	}
}

func (a *AKShareAdapter) FetchRealtime(ctx context.Context, tickers []string) ([]*model.StockQuote, error) {
	snapshots := make(map[string][]map[string]interface{})
	var lastRequest time.Time

	result := make([]*model.StockQuote, 0, len(tickers))
	for _, ticker := range tickers {
		market, code, err := marketFor(ticker)
		if err != nil {
			return nil, err
		}

		if _, cached := snapshots[market.apiPath]; !cached {
			list, err := a.fetchSnapshot(ctx, market, &lastRequest)
			if err != nil {
				log.Warn().Err(err).Str("market", market.label).Msg("akshare snapshot fetch failed, skipping market")
				snapshots[market.apiPath] = nil
				continue
			}
			snapshots[market.apiPath] = list
		}

		quote, found := findQuote(snapshots[market.apiPath], ticker, code)
		if !found {
			log.Warn().Str("ticker", ticker).Msg("akshare: ticker not found in market snapshot")
			continue
		}
		result = append(result, quote)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("collector: akshare: none of the requested tickers were found")
	}
	return result, nil
}

// FetchDaily is not backed by a real AKShare history endpoint in this
// gateway deployment; the Tushare adapter is the daily-bar source of
// record (config.DataSources only names a tushare section).
func (a *AKShareAdapter) FetchDaily(ctx context.Context, ticker string, days int) ([]*model.StockQuote, error) {
	return nil, fmt.Errorf("collector: akshare: FetchDaily not supported, use TushareAdapter")
}

func (a *AKShareAdapter) fetchSnapshot(ctx context.Context, market akshareMarket, lastRequest *time.Time) ([]map[string]interface{}, error) {
	if elapsed := time.Since(*lastRequest); elapsed < a.requestInterval {
		select {
		case <-time.After(a.requestInterval - elapsed):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	apiURL := a.baseURL + market.apiPath
	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("collector: akshare: build request: %w", err)
		}

		*lastRequest = time.Now()
		resp, err := a.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("market", market.label).Int("attempt", attempt).Msg("akshare request failed, retrying")
			time.Sleep(time.Duration(3*attempt) * time.Second)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("collector: akshare: read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("collector: akshare: %s returned status %d", market.label, resp.StatusCode)
		}

		var list []map[string]interface{}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("collector: akshare: decode %s response: %w", market.label, err)
		}
		log.Debug().Str("market", market.label).Int("count", len(list)).Msg("akshare snapshot fetched")
		return list, nil
	}
	return nil, fmt.Errorf("collector: akshare: %s failed after %d attempts: %w", market.label, a.maxRetries, lastErr)
}

func findQuote(snapshot []map[string]interface{}, ticker, code string) (*model.StockQuote, bool) {
	trimmedCode := strings.TrimLeft(code, "0")
	for _, row := range snapshot {
		rowCode := strings.TrimLeft(fmt.Sprintf("%v", row["代码"]), "0")
		if rowCode != trimmedCode {
			continue
		}
		return &model.StockQuote{
			Symbol:        ticker,
			Name:          fmt.Sprintf("%v", row["名称"]),
			Price:         parseDecimal(row["最新价"]),
			Open:          parseDecimal(row["开盘价"]),
			High:          parseDecimal(row["最高价"]),
			Low:           parseDecimal(row["最低价"]),
			Volume:        parseDecimal(row["成交量"]),
			ChangePercent: parseDecimal(row["涨跌幅"]),
			Timestamp:     time.Now(),
		}, true
	}
	return nil, false
}

func parseDecimal(v interface{}) decimal.Decimal {
	switch value := v.(type) {
	case float64:
		return decimal.NewFromFloat(value)
	case string:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
