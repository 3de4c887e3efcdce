package service

import (
	"encoding/json"
	"unicode/utf8"
)

// Result reasons beyond the planning validator and order builder statuses,
// which pass through unchanged.
const (
	ReasonOK                = "ok"
	ReasonMissingSymbol     = "missing_symbol"
	ReasonMaxTradesPerDay   = "max_trades_per_day_reached"
	ReasonMaxPositions      = "max_positions_reached"
	ReasonAlreadyInPosition = "skip_already_in_position"
	ReasonOpenBuyOrder      = "skip_open_buy_order"
	ReasonInvalidQty        = "invalid_qty"
	ReasonMissingQty        = "missing_qty_and_sizing_inputs"
	ReasonQtyZero           = "qty_zero_after_sizing"
	ReasonSubmitError       = "submit_error"
	ReasonGuardUnavailable  = "guard_unavailable"
	ReasonHandlerCrash      = "handler_crash"
)

const (
	maxDetailLen   = 500
	maxErrorLen    = 300
	maxJobErrorLen = 500
)

// Result is the outcome of one intent, stored as its dispatched_detail.
type Result struct {
	OK            bool    `json:"ok"`
	Reason        string  `json:"reason"`
	Error         string  `json:"error,omitempty"`
	Retryable     bool    `json:"retryable,omitempty"`
	BrokerOrderID string  `json:"broker_order_id,omitempty"`
	Status        string  `json:"status,omitempty"`
	Qty           int64   `json:"qty,omitempty"`
	TradeID       *uint64 `json:"trade_id,omitempty"`
	BuysToday     *int    `json:"buys_today,omitempty"`
	OpenPositions *int    `json:"open_positions,omitempty"`
}

func fail(reason string) Result {
	return Result{Reason: reason}
}

// Detail serialises r, bounded to the dispatched_detail column budget.
func (r Result) Detail() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return truncate(`{"ok":false,"reason":"`+r.Reason+`"}`, maxDetailLen)
	}
	return truncate(string(raw), maxDetailLen)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func intPtr(v int) *int { return &v }
