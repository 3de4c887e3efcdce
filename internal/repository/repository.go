package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"executor/internal/models"
)

// DispatchRepository claims and finishes job_dispatch rows.
type DispatchRepository interface {
	// ClaimDispatchJob moves the oldest queued, allowed job of one of jobTypes
	// to running, merging claim into its payload. It returns nil when no job
	// is available.
	ClaimDispatchJob(ctx context.Context, jobTypes []string, claim map[string]any) (*models.DispatchJob, error)
	// FinishDispatchJob sets a terminal status and merges patch into the payload.
	FinishDispatchJob(ctx context.Context, dispatchID string, status string, patch map[string]any) error
}

type IntentRepository interface {
	// ClaimNextIntent stamps dispatched_ts on the best pending intent of the
	// run for executor and returns it, or nil when the run is drained.
	ClaimNextIntent(ctx context.Context, runID string, executor string, now time.Time) (*models.StrategyIntent, error)
	SetIntentResult(ctx context.Context, intentID string, ok bool, detail string) error
}

type TradeRepository interface {
	// InsertOpenTrade returns the id of the existing OPEN trade for the
	// symbol or of the row already recorded for brokerOrderID, inserting
	// item only when neither exists. created reports whether a row was added.
	InsertOpenTrade(ctx context.Context, item *models.Trade, brokerOrderID string) (id uint64, created bool, err error)
	CountOpenTrades(ctx context.Context) (int64, error)
	HasOpenTrade(ctx context.Context, symbol string) (bool, error)
}

type EventRepository interface {
	InsertTradeEvent(ctx context.Context, item *models.TradeEvent) error
}

// Repository is everything the executor reads and writes.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	DispatchRepository
	IntentRepository
	TradeRepository
	EventRepository
}
