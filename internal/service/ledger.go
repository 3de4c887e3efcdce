package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"executor/internal/models"
	"executor/internal/repository"
)

// OpenTrade describes the ledger row written after a successful entry.
type OpenTrade struct {
	RunID           string
	Symbol          string
	Strategy        string
	Side            string
	Qty             int64
	EntryPriceHint  *decimal.Decimal
	OpenedBy        string
	IntentID        string
	BrokerOrderID   string
	PlanningContext any
	Extra           map[string]any
}

// TradeLedger writes OPEN trades. Faults never fail the submission that
// preceded them; they are logged for reconciliation.
type TradeLedger struct {
	Repo   repository.TradeRepository
	Logger *zap.Logger
	Now    func() time.Time
}

// InsertOpen returns the id of the OPEN trade covering t and whether the call
// succeeded. Repeated calls for the same symbol or broker order id return the
// existing row.
func (l *TradeLedger) InsertOpen(ctx context.Context, t OpenTrade) (uint64, bool) {
	if l == nil || l.Repo == nil {
		return 0, false
	}
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}

	meta := copyMap(t.Extra)
	meta["intent_id"] = t.IntentID
	meta["broker_order_id"] = t.BrokerOrderID
	meta["planning_context"] = t.PlanningContext

	row := &models.Trade{
		RunID:      t.RunID,
		Symbol:     strings.ToUpper(strings.TrimSpace(t.Symbol)),
		Strategy:   t.Strategy,
		Side:       strings.ToLower(t.Side),
		Qty:        decimal.NewFromInt(t.Qty),
		EntryPrice: t.EntryPriceHint,
		EntryTime:  &now,
		Status:     models.TradeStatusOpen,
		OpenedBy:   t.OpenedBy,
		Metadata:   models.JSONMap(meta),
	}

	id, created, err := l.Repo.InsertOpenTrade(ctx, row, t.BrokerOrderID)
	if err != nil {
		if l.Logger != nil {
			l.Logger.Error("trade ledger insert failed",
				zap.String("symbol", row.Symbol),
				zap.String("run_id", t.RunID),
				zap.String("intent_id", t.IntentID),
				zap.String("broker_order_id", t.BrokerOrderID),
				zap.Error(err),
			)
		}
		return 0, false
	}
	if !created && l.Logger != nil {
		l.Logger.Info("trade ledger reused open trade",
			zap.Uint64("trade_id", id),
			zap.String("symbol", row.Symbol),
			zap.String("broker_order_id", t.BrokerOrderID),
		)
	}
	return id, true
}

// TradeEvent is one append-only audit entry.
type TradeEvent struct {
	TradeID *uint64
	RunID   string
	Symbol  string
	Type    string
	Source  string
	Reason  string
	Raw     map[string]any
}

const EventEntrySubmitted = "ENTRY_SUBMITTED"

// EventLog records trade events. Write failures are logged and dropped.
type EventLog struct {
	Repo   repository.EventRepository
	Logger *zap.Logger
}

func (e *EventLog) Record(ctx context.Context, ev TradeEvent) {
	if e == nil {
		return
	}
	if e.Logger != nil {
		e.Logger.Info("trade event",
			zap.String("event_type", ev.Type),
			zap.String("symbol", ev.Symbol),
			zap.String("run_id", ev.RunID),
			zap.String("source", ev.Source),
			zap.String("reason", ev.Reason),
			zap.Any("raw", ev.Raw),
		)
	}
	if e.Repo == nil {
		return
	}
	row := &models.TradeEvent{
		TradeID:   ev.TradeID,
		Symbol:    strings.ToUpper(ev.Symbol),
		EventType: ev.Type,
		Source:    ev.Source,
		Raw:       models.JSONMap(ev.Raw),
	}
	if ev.RunID != "" {
		runID := ev.RunID
		row.RunID = &runID
	}
	if ev.Reason != "" {
		reason := ev.Reason
		row.Reason = &reason
	}
	if err := e.Repo.InsertTradeEvent(ctx, row); err != nil && e.Logger != nil {
		e.Logger.Warn("trade event insert failed", zap.String("event_type", ev.Type), zap.String("symbol", ev.Symbol), zap.Error(err))
	}
}
