package risk

import (
	"context"
	"errors"
	"strings"
	"time"

	"executor/internal/broker"
)

const (
	openOrdersLimit   = 200
	closedOrdersLimit = 500
)

// Guards are read-only checks against live brokerage state. Every method
// returns its safe default (0 or false) alongside any error, so a caller that
// ignores the error fails soft. These are best-effort, not hard guarantees.
type Guards struct {
	Broker broker.Brokerage
}

// CountOpenPositions counts positions with a non-zero quantity.
func (g *Guards) CountOpenPositions(ctx context.Context) (int, error) {
	positions, err := g.Broker.GetAllPositions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range positions {
		if !p.Qty.IsZero() {
			n++
		}
	}
	return n, nil
}

func (g *Guards) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	p, err := g.Broker.GetOpenPosition(ctx, symbol)
	if err != nil {
		if errors.Is(err, broker.ErrPositionNotFound) {
			return false, nil
		}
		return false, err
	}
	return p != nil && !p.Qty.IsZero(), nil
}

func (g *Guards) HasOpenBuyOrder(ctx context.Context, symbol string) (bool, error) {
	orders, err := g.Broker.GetOrders(ctx, broker.OrderFilter{
		Status:  broker.StatusOpen,
		Symbols: []string{symbol},
		Limit:   openOrdersLimit,
	})
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if strings.EqualFold(strings.TrimSpace(o.Side), string(broker.SideBuy)) {
			return true, nil
		}
	}
	return false, nil
}

// CountFilledBuysToday counts buy orders whose fill time falls in the UTC
// calendar day containing now: [00:00, next 00:00).
func (g *Guards) CountFilledBuysToday(ctx context.Context, now time.Time) (int, error) {
	start, end := UTCDay(now)
	orders, err := g.Broker.GetOrders(ctx, broker.OrderFilter{
		Status: broker.StatusClosed,
		After:  start,
		Until:  end,
		Limit:  closedOrdersLimit,
	})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range orders {
		if !strings.EqualFold(o.Side, string(broker.SideBuy)) {
			continue
		}
		if !strings.EqualFold(o.Status, "filled") {
			continue
		}
		if o.FilledAt == nil {
			continue
		}
		fa := o.FilledAt.UTC()
		if !fa.Before(start) && fa.Before(end) {
			n++
		}
	}
	return n, nil
}

// UTCDay returns the UTC midnight at or before t and the following midnight.
func UTCDay(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
