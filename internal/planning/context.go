// Package planning parses and validates the order parameters a planner
// attaches to an intent.
package planning

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ExitNone    = "none"
	ExitOCO     = "oco"
	ExitBracket = "bracket"
)

// Context is the typed view of a validated planning context.
type Context struct {
	Side        string
	EntryType   string
	TimeInForce string
	ExitStyle   string

	LimitPrice *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal

	// Qty is the raw explicit share count; see ExplicitQty.
	Qty            any
	MaxNotionalUSD *decimal.Decimal
	EntryPriceHint *decimal.Decimal

	Raw map[string]any
}

// FromMap converts a decoded planning context. Call Validate first; FromMap
// does not reject anything.
func FromMap(m map[string]any) Context {
	c := Context{
		Side:           lowerString(m["side"]),
		EntryType:      lowerString(m["entry_type"]),
		TimeInForce:    lowerString(m["time_in_force"]),
		ExitStyle:      lowerString(m["exit_style"]),
		LimitPrice:     Decimal(m["limit_price"]),
		StopLoss:       Decimal(m["stop_loss"]),
		TakeProfit:     Decimal(m["take_profit"]),
		Qty:            m["qty"],
		MaxNotionalUSD: Decimal(m["max_notional_usd"]),
		EntryPriceHint: Decimal(m["entry_price_hint"]),
		Raw:            m,
	}
	if c.ExitStyle == "" {
		c.ExitStyle = ExitNone
	}
	if c.EntryPriceHint == nil {
		if meta, ok := m["meta"].(map[string]any); ok {
			c.EntryPriceHint = Decimal(meta["entry_price_hint"])
		}
	}
	return c
}

// HasQty reports whether an explicit qty was supplied.
func (c Context) HasQty() bool {
	return c.Qty != nil
}

// ExplicitQty returns the explicit whole-share quantity. ok is false when the
// value is not a positive integer.
func (c Context) ExplicitQty() (int64, bool) {
	d := Decimal(c.Qty)
	if d == nil || !d.IsInteger() {
		return 0, false
	}
	return PositiveInt(*d)
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// PositiveInt returns the integer part of d when it lies in [1, MaxInt64].
// Larger values are rejected rather than wrapped.
func PositiveInt(d decimal.Decimal) (int64, bool) {
	if d.Sign() <= 0 || d.GreaterThan(maxInt64) {
		return 0, false
	}
	n := d.IntPart()
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// Decimal converts a decoded JSON scalar into a decimal. nil, booleans,
// blank strings and unparsable values yield nil.
func Decimal(v any) *decimal.Decimal {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		d, err = decimal.NewFromString(s)
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case decimal.Decimal:
		d = x
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}

func lowerString(v any) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	case json.Number:
		return strings.ToLower(x.String())
	default:
		return ""
	}
}
