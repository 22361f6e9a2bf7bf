package collector

import (
	"context"

	"github.com/dewei/screenradar/pkg/model"
)

// QuoteFetcher fetches realtime and historical quotes for a batch of
// ticker symbols from an upstream market data provider.
type QuoteFetcher interface {
	FetchRealtime(ctx context.Context, tickers []string) ([]*model.StockQuote, error)
	FetchDaily(ctx context.Context, ticker string, days int) ([]*model.StockQuote, error)
}
