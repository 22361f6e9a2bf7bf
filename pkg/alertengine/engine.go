// Package alertengine evaluates AlertSubscription rows against live
// market/fundamental data, one subscription at a time: a struct
// holding its dependencies, one check method per alert kind, and a
// single Run entry point with evaluated/triggered/skipped/errors
// counters.
package alertengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/compiler"
	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/dsl"
	"github.com/dewei/screenradar/pkg/llm"
	"github.com/dewei/screenradar/pkg/model"
	"github.com/dewei/screenradar/pkg/validator"
)

type Engine struct {
	db              *database.DB
	qs              *database.QueryStore
	cat             *catalog.Catalog
	val             *validator.Validator
	comp            *compiler.Compiler
	llm             *llm.Client
	rateLimitWindow time.Duration
}

// New builds an Engine. llmClient may be nil or disabled (llm.Client's
// Enabled() false) — the significant_news event check degrades to a
// plain impact/sentiment message without an AI explanation in that
// case, it never fails the check.
func New(db *database.DB, qs *database.QueryStore, llmClient *llm.Client, rateLimitWindow time.Duration) *Engine {
	cat := catalog.Get()
	return &Engine{
		db:              db,
		qs:              qs,
		cat:             cat,
		val:             validator.New(cat, validator.DefaultConfig()),
		comp:            compiler.New(cat, compiler.DefaultConfig()),
		llm:             llmClient,
		rateLimitWindow: rateLimitWindow,
	}
}

// Summary counts evaluated/triggered/skipped/errored subscriptions
// in one cycle.
type Summary struct {
	Total     int
	Evaluated int
	Triggered int
	Skipped   int
	Errors    int
}

// Outcome is one subscription's evaluation result.
type Outcome struct {
	Subscription *model.AlertSubscription
	Skipped      bool
	Triggered    bool
	Title        string
	Message      string
	Data         model.JSONMap
	Err          error
}

// Run evaluates every active subscription sequentially. pkg/scheduler
// is the bounded-parallel equivalent: it groups subscriptions by
// ticker and calls EvaluateOne/Finalize per group across a capped
// goroutine pool instead of running this loop directly.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	subs, err := e.db.Subscription().GetDue(e.rateLimitWindow)
	if err != nil {
		return nil, fmt.Errorf("alertengine: load due subscriptions: %w", err)
	}

	summary := &Summary{Total: len(subs)}
	for _, sub := range subs {
		outcome := e.EvaluateOne(ctx, sub)
		e.Finalize(sub, outcome, summary)
	}
	return summary, nil
}

// Finalize persists the result of one EvaluateOne call and updates
// summary's counters accordingly. Split out from Run so pkg/scheduler
// can call EvaluateOne/Finalize directly from its own bounded-parallel
// fan-out without duplicating the persistence logic.
func (e *Engine) Finalize(sub *model.AlertSubscription, outcome Outcome, summary *Summary) {
	switch {
	case outcome.Skipped:
		summary.Skipped++
	case outcome.Err != nil:
		summary.Errors++
		log.Error().Err(outcome.Err).Str("subscription", sub.ID).Str("ticker", sub.Ticker).Msg("alert evaluation failed")
		_ = e.db.Alert().LogExecution(&model.AlertExecutionLog{
			SubscriptionID: sub.ID,
			ExecutedAt:     time.Now(),
			Triggered:      false,
			ErrorMessage:   outcome.Err.Error(),
		})
	case outcome.Triggered:
		summary.Triggered++
		summary.Evaluated++
		if err := e.notify(sub, outcome); err != nil {
			log.Error().Err(err).Str("subscription", sub.ID).Msg("failed to persist triggered alert")
		}
	default:
		summary.Evaluated++
		_ = e.db.Subscription().MarkEvaluated(sub.ID)
		_ = e.db.Alert().LogExecution(&model.AlertExecutionLog{
			SubscriptionID: sub.ID,
			ExecutedAt:     time.Now(),
			Triggered:      false,
		})
	}
}

// EvaluateOne evaluates a single subscription, applying the rate-limit
// gate first so a triggered-but-still-cooling-down subscription never
// re-runs its (possibly expensive) check.
func (e *Engine) EvaluateOne(ctx context.Context, sub *model.AlertSubscription) Outcome {
	if sub.IsRateLimited(time.Now(), e.rateLimitWindow) {
		return Outcome{Subscription: sub, Skipped: true}
	}

	var (
		triggered bool
		title     string
		message   string
		data      model.JSONMap
		err       error
	)

	switch sub.Kind {
	case model.AlertKindPriceThreshold:
		triggered, message, data, err = e.checkPriceThreshold(ctx, sub)
		title = "Price vs analyst target"
	case model.AlertKindPriceChange:
		triggered, message, data, err = e.checkPriceChange(ctx, sub)
		title = "Price change"
	case model.AlertKindFundamental:
		triggered, message, data, err = e.checkFundamental(ctx, sub)
		title = "Fundamental condition"
	case model.AlertKindEvent:
		triggered, message, data, err = e.checkEvent(ctx, sub)
		title = "Corporate event"
	case model.AlertKindTechnical:
		triggered, message, data, err = e.checkTechnical(ctx, sub)
		title = "Technical indicator"
	case model.AlertKindCustomDSL:
		triggered, message, data, err = e.checkCustomDSL(ctx, sub)
		title = "Custom screener condition"
	default:
		err = fmt.Errorf("alertengine: unknown alert kind %q", sub.Kind)
	}

	return Outcome{Subscription: sub, Triggered: triggered, Title: title, Message: message, Data: data, Err: err}
}

func (e *Engine) notify(sub *model.AlertSubscription, outcome Outcome) error {
	event := &model.AlertEvent{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Ticker:         sub.Ticker,
		Kind:           sub.Kind,
		Severity:       model.SeverityMedium,
		Title:          outcome.Title,
		Message:        outcome.Message,
		Data:           outcome.Data,
	}
	// Save's transaction also advances the subscription's
	// last_triggered_at/last_evaluated_at/trigger_count, so the rate
	// limit and the event row move together.
	if err := e.db.Alert().Save(event); err != nil {
		return err
	}
	return e.db.Alert().LogExecution(&model.AlertExecutionLog{
		SubscriptionID: sub.ID,
		ExecutedAt:     time.Now(),
		Triggered:      true,
	})
}

// conditionString/conditionFloat/conditionInt read typed values out of
// a subscription's free-form JSONMap condition payload, falling back
// to a default when the key is absent or mistyped.
func conditionString(c model.JSONMap, key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

func conditionFloat(c model.JSONMap, key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func conditionInt(c model.JSONMap, key string, def int) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// buildTickerQuery validates and compiles a DSL query narrowed to a
// single ticker — shared by checkCustomDSL and anything else that
// needs to reuse the validator/compiler pipeline for one instrument.
func (e *Engine) buildTickerQuery(q *dsl.Query, ticker string) (*compiler.Result, error) {
	res := e.val.Validate(q)
	if !res.OK() {
		return nil, fmt.Errorf("alertengine: custom_dsl condition invalid: %v", res.Errors())
	}
	compiled, err := e.comp.CompileForTicker(q, ticker)
	if err != nil {
		return nil, fmt.Errorf("alertengine: compile custom_dsl condition: %w", err)
	}
	return compiled, nil
}
