package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const TradeStatusOpen = "OPEN"

// Trade is a ledger row for a position this system opened. The watcher closes it.
type Trade struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	RunID    string `gorm:"column:run_id;type:uuid;index"`
	Symbol   string `gorm:"type:varchar(32);not null;index"`
	Strategy string `gorm:"type:text"`
	Side     string `gorm:"type:varchar(8);not null"`

	Qty        decimal.Decimal  `gorm:"type:numeric(20,6);not null"`
	EntryPrice *decimal.Decimal `gorm:"type:numeric(20,6)"`
	EntryTime  *time.Time       `gorm:"type:timestamptz"`
	ExitPrice  *decimal.Decimal `gorm:"type:numeric(20,6)"`
	ExitTime   *time.Time       `gorm:"type:timestamptz"`

	Status   string         `gorm:"type:varchar(16);not null;default:'OPEN';index"`
	OpenedBy string         `gorm:"type:varchar(64)"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`
}

func (Trade) TableName() string {
	return "trades"
}
