package alertengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewei/screenradar/pkg/model"
)

func TestConditionString(t *testing.T) {
	c := model.JSONMap{"comparison": "below_avg_target"}
	assert.Equal(t, "below_avg_target", conditionString(c, "comparison", "below_low_target"))
	assert.Equal(t, "below_low_target", conditionString(c, "missing", "below_low_target"))
	assert.Equal(t, "below_low_target", conditionString(model.JSONMap{"comparison": 5.0}, "comparison", "below_low_target"))
}

func TestConditionFloat(t *testing.T) {
	c := model.JSONMap{"threshold_percent": 12.5, "as_int": 7}
	assert.Equal(t, 12.5, conditionFloat(c, "threshold_percent", 10))
	assert.Equal(t, 7.0, conditionFloat(c, "as_int", 10))
	assert.Equal(t, 10.0, conditionFloat(c, "missing", 10))
}

func TestConditionInt(t *testing.T) {
	c := model.JSONMap{"days_before": 45.0, "as_int": 9}
	assert.Equal(t, 45, conditionInt(c, "days_before", 30))
	assert.Equal(t, 9, conditionInt(c, "as_int", 30))
	assert.Equal(t, 30, conditionInt(c, "missing", 30))
}

// A subscription triggered within the window is skipped before any
// per-kind check runs, so EvaluateOne needs no database to exercise
// the gate.
func TestEvaluateOne_RateLimitGate(t *testing.T) {
	e := &Engine{rateLimitWindow: 24 * time.Hour}
	now := time.Now()

	recent := now.Add(-10 * time.Minute)
	sub := &model.AlertSubscription{
		ID:              "sub-1",
		Kind:            model.AlertKindFundamental,
		LastTriggeredAt: &recent,
	}

	outcome := e.EvaluateOne(context.Background(), sub)
	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Triggered)
}

func TestEvaluateOne_UnknownKind_ReturnsError(t *testing.T) {
	e := &Engine{rateLimitWindow: 24 * time.Hour}
	sub := &model.AlertSubscription{ID: "sub-2", Kind: model.AlertKind("not_a_kind")}

	outcome := e.EvaluateOne(context.Background(), sub)
	require.Error(t, outcome.Err)
	assert.False(t, outcome.Skipped)
	assert.False(t, outcome.Triggered)
}

func TestEvaluateOne_NotRateLimited_WhenNeverTriggered(t *testing.T) {
	e := &Engine{rateLimitWindow: 24 * time.Hour}
	sub := &model.AlertSubscription{ID: "sub-3", Kind: model.AlertKind("not_a_kind")}

	outcome := e.EvaluateOne(context.Background(), sub)
	assert.False(t, outcome.Skipped, "a never-triggered subscription must not be rate-limited")
}
