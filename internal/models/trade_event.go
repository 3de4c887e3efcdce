package models

import (
	"time"

	"gorm.io/datatypes"
)

// TradeEvent is an append-only audit record.
type TradeEvent struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	TradeID   *uint64        `gorm:"index"`
	RunID     *string        `gorm:"column:run_id;type:uuid;index"`
	Symbol    string         `gorm:"type:varchar(32);not null;index"`
	EventType string         `gorm:"type:varchar(40);not null"`
	Source    string         `gorm:"type:varchar(64);not null"`
	Reason    *string        `gorm:"type:text"`
	Raw       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (TradeEvent) TableName() string {
	return "trade_events"
}
