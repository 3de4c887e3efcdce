package risk

import (
	"context"
	"strings"
)

// OpenTradeCounter is the slice of the trade ledger the guards read.
type OpenTradeCounter interface {
	CountOpenTrades(ctx context.Context) (int64, error)
	HasOpenTrade(ctx context.Context, symbol string) (bool, error)
}

// LedgerGuards read OPEN rows from the trade ledger. With the ledger as the
// position source they back up the brokerage view: a position the broker has
// not reported yet still counts once its trade row exists.
type LedgerGuards struct {
	Trades OpenTradeCounter
}

func (g *LedgerGuards) CountOpenPositions(ctx context.Context) (int, error) {
	if g == nil || g.Trades == nil {
		return 0, nil
	}
	n, err := g.Trades.CountOpenTrades(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (g *LedgerGuards) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	if g == nil || g.Trades == nil {
		return false, nil
	}
	return g.Trades.HasOpenTrade(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}
