// Package broker defines the brokerage capability the executor consumes and
// its adapters: the Alpaca trading API and an in-memory simulator.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
)

type OrderClass string

const (
	ClassSimple  OrderClass = "simple"
	ClassBracket OrderClass = "bracket"
)

// Order status filters accepted by GetOrders.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
	StatusAll    = "all"
)

type Account struct {
	ID          string
	Status      string
	Currency    string
	BuyingPower decimal.Decimal
	Equity      decimal.Decimal
}

type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
}

type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Status        string
	Qty           decimal.Decimal
	FilledAt      *time.Time
	SubmittedAt   time.Time
}

type OrderFilter struct {
	Status  string
	Symbols []string
	After   time.Time
	Until   time.Time
	Limit   int
}

// OrderRequest is a broker-agnostic entry order, optionally with bracket exits.
type OrderRequest struct {
	Symbol        string
	Qty           decimal.Decimal
	Side          Side
	Type          OrderType
	TimeInForce   TimeInForce
	LimitPrice    *decimal.Decimal
	Class         OrderClass
	TakeProfit    *decimal.Decimal
	StopLoss      *decimal.Decimal
	ClientOrderID string
}

// Brokerage is the account/order surface the executor needs.
type Brokerage interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetAllPositions(ctx context.Context) ([]Position, error)
	// GetOpenPosition returns ErrPositionNotFound when the symbol is flat.
	GetOpenPosition(ctx context.Context, symbol string) (*Position, error)
	GetOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Close() error
}
