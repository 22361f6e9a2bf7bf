// Command scheduler runs the alert evaluation cron loop standalone.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/alertengine"
	"github.com/dewei/screenradar/pkg/config"
	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/llm"
	"github.com/dewei/screenradar/pkg/scheduler"
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

	llmClient := llm.New(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.ModelName, cfg.LLM.Enabled)
	engine := alertengine.New(db, qs, llmClient, cfg.Scheduler.RateLimitWindow)
	sched := scheduler.New(cfg, engine, db)

	if err := sched.Start(cfg); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	log.Info().Int("cadence_seconds", cfg.Scheduler.CadenceSeconds).Msg("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("scheduler shutting down")
	sched.Stop()
}
