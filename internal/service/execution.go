package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"executor/internal/broker"
	"executor/internal/config"
	"executor/internal/metrics"
	"executor/internal/models"
	"executor/internal/orders"
	"executor/internal/planning"
	"executor/internal/risk"
)

const recordTimeout = 10 * time.Second

// ExecRequest is one claimed intent plus the run-level settings of its job.
type ExecRequest struct {
	RunID  string
	Intent models.StrategyIntent
	// MaxPositionsOverride tightens the asset-class cap when positive.
	MaxPositionsOverride int
}

// Executor executes one intent. It reports every outcome through Result.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) Result
}

// ExecutionHandler runs validate, guard, build, submit and record for one
// asset class. Class caps and sizing come from Class; policies from Policy.
type ExecutionHandler struct {
	Name   string
	Class  config.AssetClassConfig
	Policy config.ExecutorConfig

	Broker broker.Brokerage
	Guards *risk.Guards
	// LedgerGuards and Ledger are set when the trade ledger is the position
	// source; both stay nil in broker mode.
	LedgerGuards *risk.LedgerGuards
	Ledger       *TradeLedger
	Events       *EventLog

	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// OpenedBy is the handler identity stamped on ledger rows and events.
func (h *ExecutionHandler) OpenedBy() string {
	return "executor_" + h.Name
}

func (h *ExecutionHandler) Execute(ctx context.Context, req ExecRequest) Result {
	res := h.execute(ctx, req)
	h.Metrics.IntentDone(res.Reason)
	return res
}

func (h *ExecutionHandler) execute(ctx context.Context, req ExecRequest) Result {
	intent := req.Intent
	symbol := strings.ToUpper(strings.TrimSpace(intent.Symbol))
	if symbol == "" {
		return fail(ReasonMissingSymbol)
	}
	strategy := "unknown"
	if intent.Strategy != nil && strings.TrimSpace(*intent.Strategy) != "" {
		strategy = strings.TrimSpace(*intent.Strategy)
	}
	log := h.logger().With(
		zap.String("run_id", req.RunID),
		zap.String("intent_id", intent.IntentID),
		zap.String("symbol", symbol),
		zap.String("strategy", strategy),
	)

	raw := intent.PlanningContext()
	bracketPolicy := h.Policy.ExitPolicy == config.ExitPolicyBracket
	if ok, reason := planning.Validate(raw, planning.ValidateOptions{RequireBracketExits: bracketPolicy}); !ok {
		log.Info("intent rejected", zap.String("reason", reason))
		return fail(reason)
	}
	pc := planning.FromMap(raw.(map[string]any))

	if res, stop := h.checkGuards(ctx, log, symbol, req.MaxPositionsOverride); stop {
		log.Info("intent rejected", zap.String("reason", res.Reason))
		return res
	}

	qty, reason := h.resolveQty(pc)
	if reason != ReasonOK {
		log.Info("intent rejected", zap.String("reason", reason))
		return fail(reason)
	}

	order, status := orders.Build(symbol, qty, pc, orders.Options{
		AttachExits:        bracketPolicy,
		AllowMarketBracket: h.Policy.AllowMarketBracket,
		ClientOrderID:      intent.IntentID,
	})
	if status != orders.StatusOK {
		log.Info("order build rejected", zap.String("reason", status))
		return fail(status)
	}

	placed, err := h.Broker.SubmitOrder(ctx, *order)
	if err != nil {
		retryable := broker.IsTransient(err)
		h.Metrics.SubmitFailed(retryable)
		log.Warn("submit order failed", zap.Bool("retryable", retryable), zap.Error(err))
		return Result{Reason: ReasonSubmitError, Error: truncate(err.Error(), maxErrorLen), Retryable: retryable}
	}
	h.Metrics.OrderSubmitted(string(order.Side), string(order.Type))
	log.Info("order submitted",
		zap.String("broker_order_id", placed.ID),
		zap.String("status", placed.Status),
		zap.Int64("qty", qty),
		zap.String("type", string(order.Type)),
		zap.String("class", string(order.Class)),
	)

	res := Result{OK: true, Reason: ReasonOK, BrokerOrderID: placed.ID, Status: placed.Status, Qty: qty}

	// The order is live at the broker; shutdown must not drop its records.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	var tradeID *uint64
	if h.Ledger != nil {
		id, ok := h.Ledger.InsertOpen(rctx, OpenTrade{
			RunID:           req.RunID,
			Symbol:          symbol,
			Strategy:        strategy,
			Side:            pc.Side,
			Qty:             qty,
			EntryPriceHint:  pc.EntryPriceHint,
			OpenedBy:        h.OpenedBy(),
			IntentID:        intent.IntentID,
			BrokerOrderID:   placed.ID,
			PlanningContext: raw,
			Extra: map[string]any{
				"status":   placed.Status,
				"executor": h.Name,
			},
		})
		if ok {
			tradeID = &id
			res.TradeID = tradeID
		}
	}

	h.Events.Record(rctx, TradeEvent{
		TradeID: tradeID,
		RunID:   req.RunID,
		Symbol:  symbol,
		Type:    EventEntrySubmitted,
		Source:  h.OpenedBy(),
		Reason:  "broker_submit_order",
		Raw: map[string]any{
			"intent_id":        intent.IntentID,
			"strategy":         strategy,
			"broker_order_id":  placed.ID,
			"status":           placed.Status,
			"qty":              qty,
			"trade_id":         tradeID,
			"planning_context": raw,
		},
	})
	return res
}

// checkGuards applies the daily cap, the position cap and the duplicate
// checks in that order.
func (h *ExecutionHandler) checkGuards(ctx context.Context, log *zap.Logger, symbol string, override int) (Result, bool) {
	if h.Class.MaxTradesPerDay > 0 {
		buys, err := h.Guards.CountFilledBuysToday(ctx, h.now())
		if err != nil && h.guardFailed(log, "filled_buys_today", err) {
			return Result{Reason: ReasonGuardUnavailable, Error: truncate(err.Error(), maxErrorLen)}, true
		}
		if buys >= h.Class.MaxTradesPerDay {
			return Result{Reason: ReasonMaxTradesPerDay, BuysToday: intPtr(buys)}, true
		}
	}

	if limit := effectiveCap(h.Class.MaxPositions, override); limit > 0 {
		open, err := h.Guards.CountOpenPositions(ctx)
		if err != nil && h.guardFailed(log, "open_positions", err) {
			return Result{Reason: ReasonGuardUnavailable, Error: truncate(err.Error(), maxErrorLen)}, true
		}
		if h.LedgerGuards != nil {
			n, err := h.LedgerGuards.CountOpenPositions(ctx)
			if err != nil && h.guardFailed(log, "ledger_open_trades", err) {
				return Result{Reason: ReasonGuardUnavailable, Error: truncate(err.Error(), maxErrorLen)}, true
			}
			if n > open {
				open = n
			}
		}
		if open >= limit {
			return Result{Reason: ReasonMaxPositions, OpenPositions: intPtr(open)}, true
		}
	}

	inPosition, err := h.Guards.HasOpenPosition(ctx, symbol)
	if err != nil && h.guardFailed(log, "open_position", err) {
		return Result{Reason: ReasonGuardUnavailable, Error: truncate(err.Error(), maxErrorLen)}, true
	}
	if !inPosition && h.LedgerGuards != nil {
		inPosition, err = h.LedgerGuards.HasOpenPosition(ctx, symbol)
		if err != nil && h.guardFailed(log, "ledger_open_trade", err) {
			return Result{Reason: ReasonGuardUnavailable, Error: truncate(err.Error(), maxErrorLen)}, true
		}
	}
	if inPosition {
		return fail(ReasonAlreadyInPosition), true
	}

	pending, err := h.Guards.HasOpenBuyOrder(ctx, symbol)
	if err != nil && h.guardFailed(log, "open_buy_order", err) {
		return Result{Reason: ReasonGuardUnavailable, Error: truncate(err.Error(), maxErrorLen)}, true
	}
	if pending {
		return fail(ReasonOpenBuyOrder), true
	}
	return Result{}, false
}

// guardFailed logs a guard fault and reports whether it should stop the intent.
func (h *ExecutionHandler) guardFailed(log *zap.Logger, guard string, err error) bool {
	log.Warn("risk guard unavailable",
		zap.String("guard", guard),
		zap.Bool("retryable", broker.IsTransient(err)),
		zap.Bool("fail_closed", h.Policy.FailClosedOnGuardErr),
		zap.Error(err),
	)
	return h.Policy.FailClosedOnGuardErr
}

func (h *ExecutionHandler) resolveQty(pc planning.Context) (int64, string) {
	if pc.HasQty() {
		qty, ok := pc.ExplicitQty()
		if !ok {
			return 0, ReasonInvalidQty
		}
		return qty, ReasonOK
	}
	if !h.Class.NotionalSizing {
		return 0, ReasonMissingQty
	}
	if pc.MaxNotionalUSD == nil || pc.EntryPriceHint == nil || pc.EntryPriceHint.Sign() <= 0 {
		return 0, ReasonMissingQty
	}
	sized := pc.MaxNotionalUSD.Div(*pc.EntryPriceHint).Floor()
	if sized.Sign() <= 0 {
		return 0, ReasonQtyZero
	}
	qty, ok := planning.PositiveInt(sized)
	if !ok {
		return 0, ReasonInvalidQty
	}
	return qty, ReasonOK
}

// effectiveCap is the class cap, tightened by a positive run override.
func effectiveCap(classCap, override int) int {
	if override <= 0 {
		return classCap
	}
	if classCap <= 0 || override < classCap {
		return override
	}
	return classCap
}

func (h *ExecutionHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *ExecutionHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
