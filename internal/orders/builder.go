// Package orders turns validated planning contexts into broker order requests.
package orders

import (
	"github.com/shopspring/decimal"

	"executor/internal/broker"
	"executor/internal/planning"
)

const (
	StatusOK                       = "ok"
	StatusInvalid                  = "invalid"
	StatusMissingLimitPrice        = "missing_limit_price"
	StatusMissingBracketPrices     = "missing_bracket_prices"
	StatusUnsupportedMarketBracket = "unsupported_market_bracket"
)

var one = decimal.NewFromInt(1)

type Options struct {
	// AttachExits lets exit_style=bracket attach exit legs to the entry.
	// When false the builder is entry-only and the watcher owns exits.
	AttachExits bool
	// AllowMarketBracket permits market entries with bracket legs; many
	// brokers reject them.
	AllowMarketBracket bool
	ClientOrderID      string
}

// RoundPrice approximates the tick grid: 2 decimals at or above 1.0, 4 below.
func RoundPrice(px decimal.Decimal) decimal.Decimal {
	if px.GreaterThanOrEqual(one) {
		return px.Round(2)
	}
	return px.Round(4)
}

// Tick is the price increment RoundPrice rounds to at px.
func Tick(px decimal.Decimal) decimal.Decimal {
	if px.GreaterThanOrEqual(one) {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -4)
}

// Build returns the entry order for pc, or nil and a status explaining why
// not. qty must already be resolved.
func Build(symbol string, qty int64, pc planning.Context, opts Options) (*broker.OrderRequest, string) {
	var side broker.Side
	switch pc.Side {
	case "buy":
		side = broker.SideBuy
	case "sell":
		side = broker.SideSell
	default:
		return nil, StatusInvalid
	}

	tif := broker.TIFGTC
	if pc.TimeInForce == "day" {
		tif = broker.TIFDay
	}

	exit := planning.ExitNone
	if opts.AttachExits {
		switch pc.ExitStyle {
		case "", planning.ExitNone, planning.ExitOCO:
		case planning.ExitBracket:
			exit = planning.ExitBracket
		default:
			return nil, StatusInvalid
		}
	}

	req := &broker.OrderRequest{
		Symbol:        symbol,
		Qty:           decimal.NewFromInt(qty),
		Side:          side,
		TimeInForce:   tif,
		Class:         broker.ClassSimple,
		ClientOrderID: opts.ClientOrderID,
	}

	switch pc.EntryType {
	case "market":
		req.Type = broker.OrderMarket
		if exit != planning.ExitBracket {
			return req, StatusOK
		}
		if !opts.AllowMarketBracket {
			return nil, StatusUnsupportedMarketBracket
		}
		stop, tp, status := bracketPrices(pc.EntryPriceHint, pc.StopLoss, pc.TakeProfit)
		if status != StatusOK {
			return nil, status
		}
		req.Class = broker.ClassBracket
		req.StopLoss, req.TakeProfit = &stop, &tp
		return req, StatusOK

	case "limit":
		if pc.LimitPrice == nil {
			return nil, StatusMissingLimitPrice
		}
		lp := RoundPrice(*pc.LimitPrice)
		if lp.Sign() <= 0 {
			return nil, StatusInvalid
		}
		req.Type = broker.OrderLimit
		req.LimitPrice = &lp
		if exit != planning.ExitBracket {
			return req, StatusOK
		}
		stop, tp, status := bracketPrices(&lp, pc.StopLoss, pc.TakeProfit)
		if status != StatusOK {
			return nil, status
		}
		req.Class = broker.ClassBracket
		req.StopLoss, req.TakeProfit = &stop, &tp
		return req, StatusOK
	}

	return nil, StatusInvalid
}

// bracketPrices rounds the exit legs and nudges crossed values so that
// stop < entry < take-profit. entry may be nil for market entries without a
// price hint, in which case only stop < take-profit is enforced.
func bracketPrices(entry, stopLoss, takeProfit *decimal.Decimal) (decimal.Decimal, decimal.Decimal, string) {
	if stopLoss == nil || takeProfit == nil {
		return decimal.Zero, decimal.Zero, StatusMissingBracketPrices
	}
	stop := RoundPrice(*stopLoss)
	tp := RoundPrice(*takeProfit)

	if entry != nil {
		e := *entry
		if stop.GreaterThanOrEqual(e) {
			stop = RoundPrice(e.Sub(Tick(e)))
		}
		if tp.LessThanOrEqual(e) {
			tp = RoundPrice(e.Add(Tick(e)))
		}
	}
	if stop.GreaterThanOrEqual(tp) {
		tp = RoundPrice(stop.Add(Tick(stop)))
	}

	if stop.Sign() <= 0 || !stop.LessThan(tp) {
		return decimal.Zero, decimal.Zero, StatusInvalid
	}
	if entry != nil && !(stop.LessThan(*entry) && entry.LessThan(tp)) {
		return decimal.Zero, decimal.Zero, StatusInvalid
	}
	return stop, tp, StatusOK
}
