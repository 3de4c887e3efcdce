package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"executor/internal/broker"
	"executor/internal/metrics"
)

// AccountMonitor reports brokerage account health at startup and on the
// heartbeat schedule.
type AccountMonitor struct {
	Broker  broker.Brokerage
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func (m *AccountMonitor) Check(ctx context.Context) error {
	acct, err := m.Broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	bp, _ := acct.BuyingPower.Float64()
	m.Metrics.SetBuyingPower(bp)
	if m.Logger != nil {
		m.Logger.Info("brokerage account",
			zap.String("status", acct.Status),
			zap.String("currency", acct.Currency),
			zap.String("buying_power", acct.BuyingPower.StringFixed(2)),
			zap.String("equity", acct.Equity.StringFixed(2)),
		)
	}
	if acct.Status != "" && acct.Status != "ACTIVE" {
		return fmt.Errorf("account status %s", acct.Status)
	}
	return nil
}
