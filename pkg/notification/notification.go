// Package notification delivers triggered alert events to their
// owning user over a webhook channel, with a Redis dedupe gate (the
// same SETNX claim-key pattern pkg/scheduler uses) so a crashed
// dispatcher restart never double-sends an alert it already posted.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dewei/screenradar/pkg/database"
	"github.com/dewei/screenradar/pkg/model"
)

type Dispatcher struct {
	db         *database.DB
	rdb        *redis.Client
	webhookURL string
	dedupeTTL  time.Duration
	http       *http.Client
}

func New(db *database.DB, rdb *redis.Client, webhookURL string, dedupeTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		db:         db,
		rdb:        rdb,
		webhookURL: webhookURL,
		dedupeTTL:  dedupeTTL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Run polls for unnotified alert events and dispatches each one,
// stopping when ctx is cancelled. An hourly side-tick generates each
// user's daily digest; ExistsForUserDate keeps it to one per day.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	digestTicker := time.NewTicker(time.Hour)
	defer digestTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DispatchPending(ctx, 50); err != nil {
				log.Error().Err(err).Msg("notification dispatch cycle failed")
			}
		case <-digestTicker.C:
			if err := d.DispatchDailySummaries(ctx); err != nil {
				log.Error().Err(err).Msg("daily summary dispatch failed")
			}
		}
	}
}

// DispatchDailySummaries rolls each user's alerts from the last 24
// hours into one digest, persists it, and posts it over the webhook —
// at most one digest per user per calendar day.
func (d *Dispatcher) DispatchDailySummaries(ctx context.Context) error {
	since := time.Now().Add(-24 * time.Hour)
	events, err := d.db.Alert().GetTriggeredSince(since)
	if err != nil {
		return fmt.Errorf("notification: load alerts for digest: %w", err)
	}

	byUser := make(map[string][]*model.AlertEvent)
	for _, event := range events {
		byUser[event.UserID] = append(byUser[event.UserID], event)
	}

	today := time.Now().Truncate(24 * time.Hour)
	for userID, userEvents := range byUser {
		exists, err := d.db.Summary().ExistsForUserDate(userID, today)
		if err != nil {
			log.Error().Err(err).Str("user", userID).Msg("digest dedup check failed")
			continue
		}
		if exists {
			continue
		}

		summary := &model.DailySummary{
			UserID:      userID,
			Date:        today,
			AlertCount:  len(userEvents),
			TopTickers:  topTickers(userEvents, 5),
			Summary:     GenerateDailySummary(userEvents),
			IsGenerated: true,
		}
		if err := d.db.Summary().Create(summary); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("persist daily summary failed")
			continue
		}

		record := &model.NotificationRecord{
			UserID:  userID,
			AlertID: userEvents[0].ID,
			Type:    "webhook",
			Title:   "Daily alert summary",
			Content: summary.Summary,
			Status:  "pending",
		}
		if err := d.db.Notification().Create(record); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("persist digest notification failed")
			continue
		}
		if err := d.sendWebhook(ctx, record); err != nil {
			_ = d.db.Notification().MarkFailed(record.ID, err.Error())
			log.Error().Err(err).Str("user", userID).Msg("send digest failed")
			continue
		}
		_ = d.db.Notification().MarkSent(record.ID)
		_ = d.db.Summary().MarkSent(summary.ID)
	}
	return nil
}

// topTickers returns the most frequently alerting tickers in the set.
func topTickers(events []*model.AlertEvent, limit int) model.StringSlice {
	counts := make(map[string]int)
	for _, event := range events {
		if event.Ticker != "" {
			counts[event.Ticker]++
		}
	}
	tickers := make([]string, 0, len(counts))
	for t := range counts {
		tickers = append(tickers, t)
	}
	sort.Slice(tickers, func(i, j int) bool {
		if counts[tickers[i]] != counts[tickers[j]] {
			return counts[tickers[i]] > counts[tickers[j]]
		}
		return tickers[i] < tickers[j]
	})
	if len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return model.StringSlice(tickers)
}

func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) error {
	events, err := d.db.Alert().GetUnnotified(limit)
	if err != nil {
		return fmt.Errorf("notification: load unnotified alerts: %w", err)
	}
	for _, event := range events {
		if err := d.DispatchOne(ctx, event); err != nil {
			log.Error().Err(err).Str("alert", event.ID).Msg("dispatch failed")
		}
	}
	return nil
}

// DispatchOne sends one alert event's webhook notification and
// records the attempt. A Redis SETNX claim guards against sending the
// same alert twice if two dispatcher instances poll concurrently.
func (d *Dispatcher) DispatchOne(ctx context.Context, event *model.AlertEvent) error {
	claimKey := "screenradar:notified:" + event.ID
	claimed, err := d.rdb.SetNX(ctx, claimKey, 1, d.dedupeTTL).Result()
	if err != nil {
		log.Warn().Err(err).Str("alert", event.ID).Msg("dedupe check failed, proceeding anyway")
	} else if !claimed {
		return nil
	}

	record := &model.NotificationRecord{
		UserID:  event.UserID,
		AlertID: event.ID,
		Type:    "webhook",
		Title:   event.Title,
		Content: formatAlertMessage(event),
		Status:  "pending",
	}
	if err := d.db.Notification().Create(record); err != nil {
		return fmt.Errorf("notification: create record: %w", err)
	}

	if err := d.sendWebhook(ctx, record); err != nil {
		_ = d.db.Notification().MarkFailed(record.ID, err.Error())
		return fmt.Errorf("notification: send webhook for alert %s: %w", event.ID, err)
	}

	_ = d.db.Notification().MarkSent(record.ID)
	_ = d.db.Alert().MarkAsNotified(event.ID)
	return nil
}

func (d *Dispatcher) sendWebhook(ctx context.Context, record *model.NotificationRecord) error {
	if d.webhookURL == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"user_id": record.UserID,
		"alert_id": record.AlertID,
		"title":   record.Title,
		"content": record.Content,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// formatAlertMessage renders the plain-text notification body for
// one alert event.
func formatAlertMessage(event *model.AlertEvent) string {
	return fmt.Sprintf(
		"Alert: %s\n\nTicker: %s\nKind: %s\nSeverity: %s\n\n%s\n\nTime: %s",
		event.Title, event.Ticker, event.Kind, event.Severity, event.Message,
		event.CreatedAt.Format("2006-01-02 15:04:05"),
	)
}

// GenerateDailySummary builds a digest of the alert events passed in
// (DispatchDailySummaries passes a user's alerts from the last 24 hours).
func GenerateDailySummary(events []*model.AlertEvent) string {
	if len(events) == 0 {
		return "No significant alerts triggered for your watchlist today."
	}
	summary := fmt.Sprintf("Daily alert summary (%d alerts)\n\n", len(events))
	for _, event := range events {
		summary += fmt.Sprintf("- %s: %s\n", event.Ticker, event.Message)
	}
	summary += "\nReview these alongside your own judgment before acting."
	return summary
}
