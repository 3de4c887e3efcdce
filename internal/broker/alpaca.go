package broker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
)

type AlpacaConfig struct {
	KeyID     string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// Alpaca adapts the Alpaca trading API. It owns its HTTP transport; Close
// releases idle connections.
type Alpaca struct {
	client     *alpaca.Client
	httpClient *http.Client
}

func NewAlpaca(cfg AlpacaConfig) (*Alpaca, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("alpaca credentials missing")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
	// The client retries 429 responses on its own (three attempts, one
	// second apart); other failures come back to the caller.
	c := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:     cfg.KeyID,
		APISecret:  cfg.SecretKey,
		BaseURL:    cfg.BaseURL,
		HTTPClient: hc,
	})
	return &Alpaca{client: c, httpClient: hc}, nil
}

func (a *Alpaca) Close() error {
	if a == nil || a.httpClient == nil {
		return nil
	}
	a.httpClient.CloseIdleConnections()
	return nil
}

func (a *Alpaca) GetAccount(ctx context.Context) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acct, err := a.client.GetAccount()
	if err != nil {
		return nil, wrapAlpaca("get_account", err)
	}
	return &Account{
		ID:          acct.ID,
		Status:      string(acct.Status),
		Currency:    acct.Currency,
		BuyingPower: acct.BuyingPower,
		Equity:      acct.Equity,
	}, nil
}

func (a *Alpaca) GetAllPositions(ctx context.Context) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := a.client.GetPositions()
	if err != nil {
		return nil, wrapAlpaca("get_positions", err)
	}
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, Position{Symbol: p.Symbol, Qty: p.Qty, AvgEntryPrice: p.AvgEntryPrice})
	}
	return out, nil
}

func (a *Alpaca) GetOpenPosition(ctx context.Context, symbol string) (*Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := a.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrPositionNotFound
		}
		return nil, wrapAlpaca("get_position", err)
	}
	return &Position{Symbol: p.Symbol, Qty: p.Qty, AvgEntryPrice: p.AvgEntryPrice}, nil
}

func (a *Alpaca) GetOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := alpaca.GetOrdersRequest{
		Status:  filter.Status,
		Limit:   filter.Limit,
		After:   filter.After,
		Until:   filter.Until,
		Nested:  true,
		Symbols: filter.Symbols,
	}
	orders, err := a.client.GetOrders(req)
	if err != nil {
		return nil, wrapAlpaca("get_orders", err)
	}
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		item := Order{
			ID:            o.ID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          string(o.Side),
			Type:          string(o.Type),
			Status:        o.Status,
			FilledAt:      o.FilledAt,
			SubmittedAt:   o.SubmittedAt,
		}
		if o.Qty != nil {
			item.Qty = *o.Qty
		}
		out = append(out, item)
	}
	return out, nil
}

func (a *Alpaca) SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qty := req.Qty
	por := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.OrderType(req.Type),
		TimeInForce:   alpaca.TimeInForce(req.TimeInForce),
		LimitPrice:    req.LimitPrice,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Class == ClassBracket {
		por.OrderClass = alpaca.Bracket
		por.TakeProfit = &alpaca.TakeProfit{LimitPrice: req.TakeProfit}
		por.StopLoss = &alpaca.StopLoss{StopPrice: req.StopLoss}
	}
	o, err := a.client.PlaceOrder(por)
	if err != nil {
		return nil, wrapAlpaca("submit_order", err)
	}
	out := &Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Status:        o.Status,
		FilledAt:      o.FilledAt,
		SubmittedAt:   o.SubmittedAt,
		Qty:           decimal.Zero,
	}
	if o.Qty != nil {
		out.Qty = *o.Qty
	}
	return out, nil
}

func wrapAlpaca(op string, err error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Op:        op,
			Status:    apiErr.StatusCode,
			Message:   apiErr.Message,
			Transient: statusTransient(apiErr.StatusCode),
			Err:       err,
		}
	}
	return &Error{Op: op, Message: err.Error(), Transient: IsTransient(err), Err: err}
}
