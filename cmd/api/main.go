// Command api runs the HTTP screener/subscription surface alongside a
// background notification dispatcher.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/api"
	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/collector"
	"github.com/dewei/screenradar/pkg/config"
	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/llm"
	"github.com/dewei/screenradar/pkg/notification"
	"github.com/dewei/screenradar/pkg/translator"
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})

	quoteFetcher := collector.NewTushareAdapter(cfg.DataSources.Tushare.APIKey, cfg.DataSources.Tushare.BaseURL)
	llmClient := llm.New(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.ModelName, cfg.LLM.Enabled)
	trans := translator.New(catalog.Get(), llmClient)

	handlers := api.NewHandlers(quoteFetcher, db, qs, trans)
	server := api.NewServer(cfg.API.Port, cfg.API.ReadTimeout, cfg.API.WriteTimeout)
	server.SetupRoutes(handlers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := notification.New(db, rdb, cfg.Notification.WebhookURL, cfg.Notification.DedupeTTL)
	go dispatcher.Run(ctx, cfg.Notification.PollInterval)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("api server error")
	}
}
