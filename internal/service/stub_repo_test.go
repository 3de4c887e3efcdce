package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"executor/internal/models"
	"executor/internal/repository"
)

type finishCall struct {
	DispatchID string
	Status     string
	Patch      map[string]any
}

type intentResult struct {
	OK     bool
	Detail string
}

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Like the database it refuses work on a cancelled context.
type stubRepo struct {
	mu sync.Mutex

	jobs     []*models.DispatchJob
	finished []finishCall
	intents  []*models.StrategyIntent
	results  map[string]intentResult
	trades   []models.Trade
	events   []models.TradeEvent

	claimJobErr    error
	claimIntentErr error
	setResultErr   error
	tradeErr       error
	eventErr       error
}

var _ repository.Repository = (*stubRepo)(nil)

func newStubRepo() *stubRepo {
	return &stubRepo{results: map[string]intentResult{}}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}

func (s *stubRepo) addJob(jobType string, runID *string, payload map[string]any) *models.DispatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &models.DispatchJob{
		DispatchID: uuid.NewString(),
		JobType:    jobType,
		RunID:      runID,
		Payload:    models.JSONMap(payload),
		Status:     models.DispatchQueued,
		Allowed:    true,
		TS:         time.Now().UTC().Add(time.Duration(len(s.jobs)) * time.Millisecond),
	}
	s.jobs = append(s.jobs, job)
	return job
}

func (s *stubRepo) addIntent(runID, executor, symbol string, priority int, planningContext string) *models.StrategyIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent := &models.StrategyIntent{
		IntentID:    uuid.NewString(),
		RunID:       runID,
		Executor:    executor,
		Symbol:      symbol,
		Priority:    priority,
		TS:          time.Now().UTC().Add(time.Duration(len(s.intents)) * time.Millisecond),
		SourceFacts: []byte(`{"planning_context":` + planningContext + `}`),
	}
	s.intents = append(s.intents, intent)
	return intent
}

func (s *stubRepo) ClaimDispatchJob(ctx context.Context, jobTypes []string, claim map[string]any) (*models.DispatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.claimJobErr != nil {
		return nil, s.claimJobErr
	}
	types := map[string]struct{}{}
	for _, t := range jobTypes {
		types[t] = struct{}{}
	}
	var best *models.DispatchJob
	for _, j := range s.jobs {
		if j.Status != models.DispatchQueued || !j.Allowed {
			continue
		}
		if _, ok := types[j.JobType]; !ok {
			continue
		}
		if best == nil || j.TS.Before(best.TS) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Status = models.DispatchRunning
	best.Payload = mergePayload(best.Payload, claim)
	out := *best
	return &out, nil
}

func (s *stubRepo) FinishDispatchJob(ctx context.Context, dispatchID string, status string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	s.finished = append(s.finished, finishCall{DispatchID: dispatchID, Status: status, Patch: patch})
	for _, j := range s.jobs {
		if j.DispatchID == dispatchID {
			j.Status = status
			j.Payload = mergePayload(j.Payload, patch)
		}
	}
	return nil
}

func (s *stubRepo) ClaimNextIntent(ctx context.Context, runID string, executor string, now time.Time) (*models.StrategyIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.claimIntentErr != nil {
		return nil, s.claimIntentErr
	}
	var pending []*models.StrategyIntent
	for _, it := range s.intents {
		if it.RunID == runID && it.Executor == executor && it.DispatchedTS == nil {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].TS.Before(pending[j].TS)
	})
	next := pending[0]
	ts := now
	next.DispatchedTS = &ts
	out := *next
	return &out, nil
}

func (s *stubRepo) SetIntentResult(ctx context.Context, intentID string, ok bool, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.setResultErr != nil {
		return s.setResultErr
	}
	s.results[intentID] = intentResult{OK: ok, Detail: detail}
	return nil
}

func (s *stubRepo) InsertOpenTrade(ctx context.Context, item *models.Trade, brokerOrderID string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if s.tradeErr != nil {
		return 0, false, s.tradeErr
	}
	for _, t := range s.trades {
		if t.Symbol == item.Symbol && strings.EqualFold(t.Status, models.TradeStatusOpen) {
			return t.ID, false, nil
		}
	}
	for _, t := range s.trades {
		if brokerOrderID != "" && models.PayloadMap(t.Metadata)["broker_order_id"] == brokerOrderID {
			return t.ID, false, nil
		}
	}
	item.ID = uint64(len(s.trades) + 1)
	s.trades = append(s.trades, *item)
	return item.ID, true, nil
}

func (s *stubRepo) CountOpenTrades(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range s.trades {
		if strings.EqualFold(t.Status, models.TradeStatusOpen) {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) HasOpenTrade(ctx context.Context, symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	for _, t := range s.trades {
		if t.Symbol == symbol && strings.EqualFold(t.Status, models.TradeStatusOpen) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) InsertTradeEvent(ctx context.Context, item *models.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, *item)
	return nil
}

func mergePayload(raw []byte, patch map[string]any) []byte {
	m := models.PayloadMap(raw)
	for k, v := range patch {
		m[k] = v
	}
	out, _ := json.Marshal(m)
	return out
}
