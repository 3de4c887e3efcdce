package gormrepository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"executor/internal/models"
)

func (s *Store) InsertOpenTrade(ctx context.Context, item *models.Trade, brokerOrderID string) (uint64, bool, error) {
	if s == nil || s.db == nil || item == nil {
		return 0, false, nil
	}
	symbol := strings.ToUpper(strings.TrimSpace(item.Symbol))
	item.Symbol = symbol
	if item.Status == "" {
		item.Status = models.TradeStatusOpen
	}

	var (
		id      uint64
		created bool
	)
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		// Serialises writers per symbol until commit.
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, "trades:"+symbol).Error; err != nil {
			return err
		}

		var ids []uint64
		if err := tx.Model(&models.Trade{}).
			Where("symbol = ?", symbol).
			Where("UPPER(status) = ?", models.TradeStatusOpen).
			Order("entry_time DESC NULLS LAST, id DESC").
			Limit(1).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			id = ids[0]
			return nil
		}

		if brokerOrderID = strings.TrimSpace(brokerOrderID); brokerOrderID != "" {
			if err := tx.Model(&models.Trade{}).
				Where("metadata->>'broker_order_id' = ?", brokerOrderID).
				Order("id DESC").
				Limit(1).
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) > 0 {
				id = ids[0]
				return nil
			}
		}

		if err := tx.Create(item).Error; err != nil {
			return err
		}
		id, created = item.ID, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

func (s *Store) CountOpenTrades(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("UPPER(status) = ?", models.TradeStatusOpen).
		Count(&count).Error
	return count, err
}

func (s *Store) HasOpenTrade(ctx context.Context, symbol string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("symbol = ?", strings.ToUpper(strings.TrimSpace(symbol))).
		Where("UPPER(status) = ?", models.TradeStatusOpen).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) InsertTradeEvent(ctx context.Context, item *models.TradeEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}
