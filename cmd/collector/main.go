// Command collector runs the standalone data ingestion loop: polling
// quotes from Tushare and publishing/persisting them, and sweeping
// configured news feeds/pages into the news_events table. Each item
// persists before it publishes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/collector"
	"github.com/dewei/screenradar/pkg/config"
	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/messaging"
)

func main() {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	qs, err := database.NewQueryStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect query store")
	}
	defer qs.Close()

	natsClient, err := messaging.NewClient(cfg.NATS.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect nats")
	}
	defer natsClient.Close()

	tushare := collector.NewTushareAdapter(cfg.DataSources.Tushare.APIKey, cfg.DataSources.Tushare.BaseURL)
	feeds := collector.NewFeedCollector(cfg.DataSources.News.Feeds, cfg.DataSources.News.ScrapeURLs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tickers := cfg.Collector.Tickers
	if len(tickers) == 0 {
		tickers = []string{"000001.SZ", "600000.SH", "601318.SH"}
	}

	go runQuotePolling(ctx, tushare, qs, natsClient, tickers, cfg.Collector.PollInterval)
	go runNewsSweep(ctx, feeds, db, natsClient, cfg.Collector.NewsInterval)

	log.Info().Int("tickers", len(tickers)).Msg("collector started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("collector shutting down")
	cancel()
	time.Sleep(time.Second)
}

func runQuotePolling(ctx context.Context, fetcher collector.QuoteFetcher, qs *database.QueryStore, nc *messaging.Client, tickers []string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes, err := fetcher.FetchRealtime(ctx, tickers)
			if err != nil {
				log.Error().Err(err).Msg("quote fetch failed")
				continue
			}
			for _, quote := range quotes {
				if err := qs.InsertQuote(ctx, quote); err != nil {
					log.Error().Err(err).Str("ticker", quote.Symbol).Msg("persist quote failed")
					continue
				}
				if err := nc.Publish("quotes."+quote.Symbol, quote); err != nil {
					log.Warn().Err(err).Str("ticker", quote.Symbol).Msg("publish quote failed")
				}
			}
			log.Debug().Int("count", len(quotes)).Msg("quote cycle complete")
		}
	}
}

func runNewsSweep(ctx context.Context, newsCollector collector.NewsCollector, db *database.DB, nc *messaging.Client, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, err := newsCollector.Collect(ctx)
			if err != nil {
				log.Error().Err(err).Msg("news collection failed")
				continue
			}
			var saved int
			for _, item := range items {
				if item.URL != "" {
					exists, err := db.News().ExistsByURL(item.URL)
					if err != nil {
						log.Error().Err(err).Msg("news dedup check failed")
						continue
					}
					if exists {
						continue
					}
				}
				if err := db.News().Save(item); err != nil {
					log.Error().Err(err).Str("url", item.URL).Msg("persist news failed")
					continue
				}
				if err := nc.Publish("news.ingested", item); err != nil {
					log.Warn().Err(err).Msg("publish news failed")
				}
				saved++
			}
			log.Debug().Int("fetched", len(items)).Int("saved", saved).Msg("news sweep complete")
		}
	}
}
