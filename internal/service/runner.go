package service

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"executor/internal/metrics"
	"executor/internal/models"
	"executor/internal/planning"
)

const finishTimeout = 10 * time.Second

// Runner is the worker's polling loop: claim a dispatch job, drain the
// intents of its run, then finish the job. One Runner per process.
type Runner struct {
	Dispatch *DispatchClaimer
	Intents  *IntentClaimer
	Handler  Executor
	Logger   *zap.Logger
	Metrics  *metrics.Metrics

	PollInterval          time.Duration
	IdleHeartbeatInterval time.Duration
	JobPause              time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	lastHeartbeat time.Time
}

// Run polls until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.Dispatch == nil || r.Intents == nil || r.Handler == nil {
		return fmt.Errorf("runner not configured")
	}
	poll := r.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	r.logger().Info("executor loop started",
		zap.Strings("job_types", r.Dispatch.JobTypes),
		zap.String("executor", r.Intents.Executor),
		zap.Duration("poll_interval", poll),
	)
	for {
		if ctx.Err() != nil {
			r.logger().Info("executor loop stopped")
			return nil
		}
		wait := r.JobPause
		if !r.RunOnce(ctx) {
			r.heartbeat()
			wait = poll
		}
		if err := r.sleep(ctx, wait); err != nil {
			r.logger().Info("executor loop stopped")
			return nil
		}
	}
}

// RunOnce claims and processes at most one dispatch job. It reports whether
// a job was claimed. Claim faults count as an empty queue.
func (r *Runner) RunOnce(ctx context.Context) bool {
	job, err := r.Dispatch.Claim(ctx)
	if err != nil || job == nil {
		return false
	}
	r.runJob(ctx, job)
	return true
}

// LastHeartbeat is when the idle heartbeat last fired.
func (r *Runner) LastHeartbeat() time.Time {
	return r.lastHeartbeat
}

func (r *Runner) heartbeat() {
	if r.IdleHeartbeatInterval <= 0 {
		return
	}
	now := r.now()
	if !r.lastHeartbeat.IsZero() && now.Sub(r.lastHeartbeat) < r.IdleHeartbeatInterval {
		return
	}
	r.lastHeartbeat = now
	r.logger().Info("idle, no dispatch jobs", zap.Strings("job_types", r.Dispatch.JobTypes))
}

func (r *Runner) runJob(ctx context.Context, job *models.DispatchJob) {
	payload := models.PayloadMap(job.Payload)
	log := r.logger().With(zap.String("dispatch_id", job.DispatchID), zap.String("job_type", job.JobType))

	runID, problem := resolveRunID(job, payload)
	if problem != "" {
		log.Warn("dispatch job skipped", zap.String("reason", problem), zap.String("run_id", runID))
		r.finish(ctx, func(fctx context.Context) error {
			return r.Dispatch.MarkDone(fctx, job.DispatchID, map[string]any{"skipped": problem})
		})
		r.Metrics.JobDone("skipped")
		return
	}
	log = log.With(zap.String("run_id", runID))
	override := payloadInt(payload["max_positions"])
	log.Info("dispatch job claimed", zap.Int("max_positions_override", override))

	executed, failed := 0, 0
	counts := func() map[string]any {
		return map[string]any{"run_id": runID, "executed": executed, "failed": failed}
	}

	for {
		if err := ctx.Err(); err != nil {
			r.jobError(ctx, log, job, fmt.Errorf("interrupted: %w", err), counts())
			return
		}
		intent, err := r.Intents.ClaimNext(ctx, runID)
		if err != nil {
			r.jobError(ctx, log, job, fmt.Errorf("claim intent: %w", err), counts())
			return
		}
		if intent == nil {
			break
		}

		res := r.execute(ctx, log, ExecRequest{RunID: runID, Intent: *intent, MaxPositionsOverride: override})
		if res.OK {
			executed++
		} else {
			failed++
		}
		err = r.finish(ctx, func(fctx context.Context) error {
			return r.Intents.SetResult(fctx, intent.IntentID, res.OK, res.Detail())
		})
		if err != nil {
			r.jobError(ctx, log, job, fmt.Errorf("set intent result %s: %w", intent.IntentID, err), counts())
			return
		}
	}

	log.Info("dispatch job done", zap.Int("executed", executed), zap.Int("failed", failed))
	r.finish(ctx, func(fctx context.Context) error {
		return r.Dispatch.MarkDone(fctx, job.DispatchID, counts())
	})
	r.Metrics.JobDone(models.DispatchDone)
}

// execute isolates the handler: a panic fails one intent, not the run.
func (r *Runner) execute(ctx context.Context, log *zap.Logger, req ExecRequest) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("execution handler crashed",
				zap.String("intent_id", req.Intent.IntentID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res = Result{Reason: ReasonHandlerCrash, Error: truncate(fmt.Sprint(p), maxErrorLen)}
		}
	}()
	return r.Handler.Execute(ctx, req)
}

func (r *Runner) jobError(ctx context.Context, log *zap.Logger, job *models.DispatchJob, cause error, extra map[string]any) {
	log.Error("dispatch job failed", zap.Error(cause))
	r.finish(ctx, func(fctx context.Context) error {
		return r.Dispatch.MarkError(fctx, job.DispatchID, cause.Error(), extra)
	})
	r.Metrics.JobDone(models.DispatchError)
}

// finish runs a terminal write even after shutdown began, so a claimed job
// does not stay running and an executed intent keeps its result.
func (r *Runner) finish(ctx context.Context, write func(context.Context) error) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	return write(fctx)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// resolveRunID prefers the job column and falls back to payload.run_id.
// problem is empty when the id is usable.
func resolveRunID(job *models.DispatchJob, payload map[string]any) (string, string) {
	runID := ""
	if job.RunID != nil {
		runID = strings.TrimSpace(*job.RunID)
	}
	if runID == "" {
		if s, ok := payload["run_id"].(string); ok {
			runID = strings.TrimSpace(s)
		}
	}
	if isPlaceholderID(runID) {
		return runID, "missing_run_id"
	}
	if _, err := uuid.Parse(runID); err != nil {
		return runID, "invalid_run_id"
	}
	return runID, ""
}

func payloadInt(v any) int {
	d := planning.Decimal(v)
	if d == nil || !d.IsInteger() {
		return 0
	}
	n, ok := planning.PositiveInt(*d)
	if !ok || n > math.MaxInt {
		return 0
	}
	return int(n)
}
