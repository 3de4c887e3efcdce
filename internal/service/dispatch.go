package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"executor/internal/metrics"
	"executor/internal/models"
	"executor/internal/repository"
)

// DispatchClaimer hands out job_dispatch rows to this worker.
type DispatchClaimer struct {
	Repo     repository.DispatchRepository
	JobTypes []string
	Claimant string
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Claim takes the oldest queued job for the worker's job types. A nil job
// with a nil error means the queue is empty.
func (c *DispatchClaimer) Claim(ctx context.Context) (*models.DispatchJob, error) {
	if c == nil || c.Repo == nil {
		return nil, nil
	}
	now := c.now()
	c.Metrics.Polled(now)
	job, err := c.Repo.ClaimDispatchJob(ctx, c.JobTypes, map[string]any{
		"claimed_at": now.Format(time.RFC3339Nano),
		"claimed_by": c.Claimant,
	})
	if err != nil {
		c.Metrics.ClaimError("job")
		c.logger().Warn("claim dispatch job failed", zap.Strings("job_types", c.JobTypes), zap.Error(err))
		return nil, err
	}
	return job, nil
}

func (c *DispatchClaimer) MarkDone(ctx context.Context, dispatchID string, extra map[string]any) error {
	if c == nil || c.Repo == nil {
		return nil
	}
	if isPlaceholderID(dispatchID) {
		c.logger().Error("mark_done refused placeholder dispatch id", zap.String("dispatch_id", dispatchID))
		return nil
	}
	patch := copyMap(extra)
	patch["done_at"] = c.now().Format(time.RFC3339Nano)
	if err := c.Repo.FinishDispatchJob(ctx, dispatchID, models.DispatchDone, patch); err != nil {
		c.logger().Warn("mark_done failed", zap.String("dispatch_id", dispatchID), zap.Error(err))
		return err
	}
	return nil
}

func (c *DispatchClaimer) MarkError(ctx context.Context, dispatchID string, cause string, extra map[string]any) error {
	if c == nil || c.Repo == nil {
		return nil
	}
	if isPlaceholderID(dispatchID) {
		c.logger().Error("mark_error refused placeholder dispatch id", zap.String("dispatch_id", dispatchID))
		return nil
	}
	patch := copyMap(extra)
	patch["error_at"] = c.now().Format(time.RFC3339Nano)
	patch["error"] = truncate(cause, maxJobErrorLen)
	if err := c.Repo.FinishDispatchJob(ctx, dispatchID, models.DispatchError, patch); err != nil {
		c.logger().Warn("mark_error failed", zap.String("dispatch_id", dispatchID), zap.Error(err))
		return err
	}
	return nil
}

func (c *DispatchClaimer) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *DispatchClaimer) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// isPlaceholderID catches column names and null spellings passed where an
// id value was expected.
func isPlaceholderID(id string) bool {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "dispatch_id", "run_id", "none", "null", "nil", "undefined":
		return true
	}
	return false
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
