package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"executor/internal/metrics"
	"executor/internal/models"
	"executor/internal/repository"
)

// IntentClaimer drains the intents of one run addressed to this executor.
type IntentClaimer struct {
	Repo     repository.IntentRepository
	Executor string
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// ClaimNext returns the highest-priority, oldest pending intent of the run,
// or nil once the run is drained.
func (c *IntentClaimer) ClaimNext(ctx context.Context, runID string) (*models.StrategyIntent, error) {
	if c == nil || c.Repo == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	if c.Now != nil {
		now = c.Now().UTC()
	}
	intent, err := c.Repo.ClaimNextIntent(ctx, runID, c.Executor, now)
	if err != nil {
		c.Metrics.ClaimError("intent")
		if c.Logger != nil {
			c.Logger.Warn("claim intent failed", zap.String("run_id", runID), zap.String("executor", c.Executor), zap.Error(err))
		}
		return nil, err
	}
	return intent, nil
}

func (c *IntentClaimer) SetResult(ctx context.Context, intentID string, ok bool, detail string) error {
	if c == nil || c.Repo == nil {
		return nil
	}
	return c.Repo.SetIntentResult(ctx, intentID, ok, truncate(detail, maxDetailLen))
}
