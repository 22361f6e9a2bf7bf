// Package scheduler runs the alert evaluation cycle on a cron cadence,
// grouping active subscriptions by ticker and fanning the groups out
// across a bounded pool of goroutines.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dewei/screenradar/pkg/alertengine"
	"github.com/dewei/screenradar/pkg/config"
	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/model"
)

// Scheduler drives one alertengine.Engine on a cron cadence. The
// fan-out is capped at MaxParallelGroups concurrent ticker groups.
type Scheduler struct {
	cron       *cron.Cron
	engine     *alertengine.Engine
	db         *database.DB
	rdb        *redis.Client
	maxPar     int
	deadline   time.Duration
	rateWindow time.Duration

	mu      sync.Mutex
	running bool
}

func New(cfg *config.Config, engine *alertengine.Engine, db *database.DB) *Scheduler {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})
	deadline := cfg.Scheduler.FetchDeadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	window := cfg.Scheduler.RateLimitWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Scheduler{
		cron:       cron.New(),
		engine:     engine,
		db:         db,
		rdb:        rdb,
		maxPar:     cfg.Scheduler.MaxParallelGroups,
		deadline:   deadline,
		rateWindow: window,
	}
}

// Start registers the evaluation cycle at the configured cadence and
// starts the cron loop. CadenceSeconds of 0 runs every minute.
func (s *Scheduler) Start(cfg *config.Config) error {
	cadence := cfg.Scheduler.CadenceSeconds
	if cadence <= 0 {
		cadence = 60
	}
	spec := fmt.Sprintf("@every %ds", cadence)
	if _, err := s.cron.AddFunc(spec, s.runCycle); err != nil {
		return fmt.Errorf("scheduler: register cycle: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for any in-flight cycle to drain
// its DB writes before returning.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runCycle is non-overlapping: if the previous cycle hasn't finished,
// this tick is skipped rather than stacking concurrent evaluations of
// the same subscriptions.
func (s *Scheduler) runCycle() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("alert cycle still running, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	summary, err := s.RunOnce(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("alert cycle failed")
		return
	}
	log.Info().
		Int("total", summary.Total).
		Int("evaluated", summary.Evaluated).
		Int("triggered", summary.Triggered).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Msg("alert cycle complete")
}

// RunOnce loads the due subscriptions (active and outside the
// rate-limit window, via GetDue), groups them by ticker, and
// evaluates the groups with at most maxPar running concurrently.
// Exported so cmd/scheduler can also drive a single cycle on demand
// (e.g. an admin "run now" endpoint).
func (s *Scheduler) RunOnce(ctx context.Context) (*alertengine.Summary, error) {
	subs, err := s.db.Subscription().GetDue(s.rateWindow)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load due subscriptions: %w", err)
	}

	groups := make(map[string][]*model.AlertSubscription)
	for _, sub := range subs {
		groups[sub.Ticker] = append(groups[sub.Ticker], sub)
	}

	var (
		mu      sync.Mutex
		summary = &alertengine.Summary{Total: len(subs)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxPar)

	for ticker, group := range groups {
		ticker, group := ticker, group
		g.Go(func() error {
			for _, sub := range group {
				mu.Lock()
				if s.alreadyNotifiedThisCycle(gctx, sub) {
					summary.Skipped++
					mu.Unlock()
					continue
				}
				mu.Unlock()

				// Per-fetch deadline: one slow data source cannot hold
				// the whole cycle past its cadence.
				evalCtx, cancel := context.WithTimeout(gctx, s.deadline)
				outcome := s.engine.EvaluateOne(evalCtx, sub)
				cancel()
				if outcome.Err != nil {
					log.Error().Err(outcome.Err).Str("ticker", ticker).Str("subscription", sub.ID).Msg("alert evaluation failed")
				}
				mu.Lock()
				s.engine.Finalize(sub, outcome, summary)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: cycle: %w", err)
	}
	return summary, nil
}

// alreadyNotifiedThisCycle closes the race window a bounded-parallel
// fan-out opens: two goroutines could both read a subscription's
// last_triggered_at as stale before either writes the new value. A
// short-TTL redis SETNX claims the subscription for this cycle before
// the (more expensive) DB-backed rate-limit check runs.
func (s *Scheduler) alreadyNotifiedThisCycle(ctx context.Context, sub *model.AlertSubscription) bool {
	key := "screenradar:cycle-claim:" + sub.ID
	ok, err := s.rdb.SetNX(ctx, key, 1, s.deadline).Result()
	if err != nil {
		log.Warn().Err(err).Str("subscription", sub.ID).Msg("redis cycle claim failed, evaluating anyway")
		return false
	}
	return !ok
}
