package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules background jobs alongside the executor loop. Jobs receive
// the process context and must return promptly once it is cancelled.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under a six-field or descriptor ("@every 5m") spec.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		if err := job(r.baseCtx); err != nil {
			r.logger.Warn("cron job failed", zap.String("job", name), zap.Error(err))
		}
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
