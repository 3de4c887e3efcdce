package broker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sim is an in-memory brokerage. Submitted orders rest as "new" and never
// fill on their own; Fill moves them to filled and books the position.
type Sim struct {
	mu        sync.Mutex
	account   Account
	positions map[string]Position
	orders    []Order
	submitted []OrderRequest
	now       func() time.Time

	// SubmitErr, when set, is returned by the next SubmitOrder call.
	SubmitErr error
}

func NewSim(buyingPower decimal.Decimal) *Sim {
	return &Sim{
		account: Account{
			ID:          "sim",
			Status:      "ACTIVE",
			Currency:    "USD",
			BuyingPower: buyingPower,
			Equity:      buyingPower,
		},
		positions: map[string]Position{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sim) Close() error { return nil }

func (s *Sim) GetAccount(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account
	return &acct, nil
}

func (s *Sim) GetAllPositions(ctx context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out, nil
}

func (s *Sim) GetOpenPosition(ctx context.Context, symbol string) (*Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[strings.ToUpper(symbol)]
	if !ok || p.Qty.IsZero() {
		return nil, ErrPositionNotFound
	}
	return &p, nil
}

func (s *Sim) GetOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbols := map[string]struct{}{}
	for _, sym := range filter.Symbols {
		symbols[strings.ToUpper(sym)] = struct{}{}
	}
	var out []Order
	for _, o := range s.orders {
		if len(symbols) > 0 {
			if _, ok := symbols[o.Symbol]; !ok {
				continue
			}
		}
		open := isOpenStatus(o.Status)
		switch filter.Status {
		case StatusOpen:
			if !open {
				continue
			}
		case StatusClosed:
			if open {
				continue
			}
		}
		if !filter.After.IsZero() && !o.SubmittedAt.After(filter.After) {
			continue
		}
		if !filter.Until.IsZero() && !o.SubmittedAt.Before(filter.Until) {
			continue
		}
		out = append(out, o)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Sim) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SubmitErr != nil {
		err := s.SubmitErr
		s.SubmitErr = nil
		return nil, err
	}
	if req.Qty.LessThanOrEqual(decimal.Zero) {
		return nil, &Error{Op: "submit_order", Status: 422, Message: "qty must be > 0"}
	}
	if req.ClientOrderID != "" {
		for _, o := range s.orders {
			if o.ClientOrderID == req.ClientOrderID {
				return nil, &Error{Op: "submit_order", Status: 422, Message: "client_order_id must be unique"}
			}
		}
	}
	o := Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        strings.ToUpper(req.Symbol),
		Side:          string(req.Side),
		Type:          string(req.Type),
		Status:        "new",
		Qty:           req.Qty,
		SubmittedAt:   s.now(),
	}
	s.orders = append(s.orders, o)
	s.submitted = append(s.submitted, req)
	return &o, nil
}

// Fill marks an order filled at the given time and books the position.
func (s *Sim) Fill(orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		o := &s.orders[i]
		if o.ID != orderID {
			continue
		}
		if !isOpenStatus(o.Status) {
			return errors.New("order not open")
		}
		t := at.UTC()
		o.Status = "filled"
		o.FilledAt = &t
		p := s.positions[o.Symbol]
		p.Symbol = o.Symbol
		if o.Side == string(SideSell) {
			p.Qty = p.Qty.Sub(o.Qty)
		} else {
			p.Qty = p.Qty.Add(o.Qty)
		}
		s.positions[o.Symbol] = p
		return nil
	}
	return errors.New("order not found")
}

// SetPosition overwrites the booked quantity for symbol.
func (s *Sim) SetPosition(symbol string, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	s.positions[symbol] = Position{Symbol: symbol, Qty: qty}
}

// AddOrder records an order as-is, for seeding history.
func (s *Sim) AddOrder(o Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Symbol = strings.ToUpper(o.Symbol)
	if o.SubmittedAt.IsZero() {
		o.SubmittedAt = s.now()
	}
	s.orders = append(s.orders, o)
}

// Submitted returns the requests accepted so far.
func (s *Sim) Submitted() []OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OrderRequest(nil), s.submitted...)
}

func isOpenStatus(status string) bool {
	switch strings.ToLower(status) {
	case "new", "accepted", "pending_new", "partially_filled", "held", "accepted_for_bidding":
		return true
	}
	return false
}
