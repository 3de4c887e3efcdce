package gormrepository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"executor/internal/config"
	"executor/internal/db"
	"executor/internal/models"
)

// openTestStore connects to EXEC_TEST_DSN and skips when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("EXEC_TEST_DSN")
	if dsn == "" {
		t.Skip("EXEC_TEST_DSN not set")
	}
	conn, err := db.Open(config.DBConfig{DSN: dsn, MaxOpenConns: 8, MaxIdleConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	require.NoError(t, db.AutoMigrate(conn))
	return New(conn.Gorm)
}

func TestClaimDispatchJobExclusive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	jobType := "test-" + uuid.NewString()

	runID := uuid.NewString()
	job := models.DispatchJob{
		JobType: jobType,
		RunID:   &runID,
		Payload: models.JSONMap(map[string]any{"max_positions": 3}),
		Status:  models.DispatchQueued,
		Allowed: true,
	}
	require.NoError(t, store.db.Create(&job).Error)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []*models.DispatchJob
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := store.ClaimDispatchJob(ctx, []string{jobType}, map[string]any{"claimed_by": i})
			assert.NoError(t, err)
			if got != nil {
				mu.Lock()
				claimed = append(claimed, got)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, claimed, 1)
	assert.Equal(t, models.DispatchRunning, claimed[0].Status)
	payload := models.PayloadMap(claimed[0].Payload)
	assert.Contains(t, payload, "claimed_by")
	assert.Contains(t, payload, "max_positions")

	again, err := store.ClaimDispatchJob(ctx, []string{jobType}, nil)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, store.FinishDispatchJob(ctx, job.DispatchID, models.DispatchDone, map[string]any{"executed": 1}))
	var stored models.DispatchJob
	require.NoError(t, store.db.Where("dispatch_id = ?", job.DispatchID).First(&stored).Error)
	assert.Equal(t, models.DispatchDone, stored.Status)
	assert.Contains(t, models.PayloadMap(stored.Payload), "executed")

	assert.Error(t, store.FinishDispatchJob(ctx, job.DispatchID, models.DispatchQueued, nil))
}

func TestClaimNextIntentOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()
	base := time.Now().UTC().Add(-time.Hour)

	intents := []models.StrategyIntent{
		{RunID: runID, Executor: "stocks", Symbol: "LOW", Priority: 1, TS: base},
		{RunID: runID, Executor: "stocks", Symbol: "HIGH_LATE", Priority: 5, TS: base.Add(time.Minute)},
		{RunID: runID, Executor: "stocks", Symbol: "HIGH_EARLY", Priority: 5, TS: base},
		{RunID: runID, Executor: "penny", Symbol: "OTHER", Priority: 9, TS: base},
	}
	require.NoError(t, store.db.Create(&intents).Error)

	var order []string
	for {
		got, err := store.ClaimNextIntent(ctx, runID, "stocks", time.Now())
		require.NoError(t, err)
		if got == nil {
			break
		}
		require.NotNil(t, got.DispatchedTS)
		order = append(order, got.Symbol)
	}
	assert.Equal(t, []string{"HIGH_EARLY", "HIGH_LATE", "LOW"}, order)

	require.NoError(t, store.SetIntentResult(ctx, intents[0].IntentID, true, `{"ok":true}`))
	var stored models.StrategyIntent
	require.NoError(t, store.db.Where("intent_id = ?", intents[0].IntentID).First(&stored).Error)
	require.NotNil(t, stored.DispatchedOK)
	assert.True(t, *stored.DispatchedOK)
}

func TestInsertOpenTradeIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	symbol := "T" + uuid.NewString()[:8]
	orderID := uuid.NewString()

	newTrade := func() *models.Trade {
		return &models.Trade{
			RunID:    uuid.NewString(),
			Symbol:   symbol,
			Strategy: "breakout",
			Side:     "buy",
			Qty:      decimal.NewFromInt(5),
			OpenedBy: "executor_stocks",
			Metadata: models.JSONMap(map[string]any{"broker_order_id": orderID}),
		}
	}

	id1, created1, err := store.InsertOpenTrade(ctx, newTrade(), orderID)
	require.NoError(t, err)
	id2, created2, err := store.InsertOpenTrade(ctx, newTrade(), orderID)
	require.NoError(t, err)

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Equal(t, id1, id2)

	open, err := store.HasOpenTrade(ctx, symbol)
	require.NoError(t, err)
	assert.True(t, open)

	var rows int64
	require.NoError(t, store.db.Model(&models.Trade{}).Where("symbol = ?", symbol).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	// A closed trade still matches by broker order id.
	require.NoError(t, store.db.Model(&models.Trade{}).Where("id = ?", id1).Update("status", "CLOSED").Error)
	id3, created3, err := store.InsertOpenTrade(ctx, newTrade(), orderID)
	require.NoError(t, err)
	assert.False(t, created3)
	assert.Equal(t, id1, id3)
}

func TestInsertOpenTradeRunsInTx(t *testing.T) {
	store := openTestStore(t)
	symbol := "T" + uuid.NewString()[:8]
	trade := &models.Trade{
		RunID:    uuid.NewString(),
		Symbol:   symbol,
		Strategy: "breakout",
		Side:     "buy",
		Qty:      decimal.NewFromInt(1),
		OpenedBy: "executor_stocks",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, created, err := store.InsertOpenTrade(ctx, trade, "")
	require.Error(t, err)
	assert.False(t, created)

	// A failing callback rolls the whole InTx unit back.
	rollback := errors.New("rollback")
	err = store.InTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&models.Trade{
			RunID:    uuid.NewString(),
			Symbol:   symbol,
			Strategy: "breakout",
			Side:     "buy",
			Qty:      decimal.NewFromInt(1),
			OpenedBy: "executor_stocks",
			Status:   models.TradeStatusOpen,
		}).Error; err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	var rows int64
	require.NoError(t, store.db.Model(&models.Trade{}).Where("symbol = ?", symbol).Count(&rows).Error)
	assert.Zero(t, rows)
}
