package db

import (
	"executor/internal/models"
)

// AutoMigrate creates the executor tables for development databases. In
// production the planner owns the schema and migrations stay disabled.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return err
	}
	if err := db.Gorm.AutoMigrate(
		&models.DispatchJob{},
		&models.StrategyIntent{},
		&models.Trade{},
		&models.TradeEvent{},
	); err != nil {
		return err
	}

	// Claim queries scan these; the partial indexes keep them small.
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS job_dispatch_queued_idx ON job_dispatch (job_type, ts) WHERE status = 'queued' AND allowed`,
		`CREATE INDEX IF NOT EXISTS strategy_intents_pending_idx ON strategy_intents (run_id, executor, priority DESC, ts) WHERE dispatched_ts IS NULL`,
		`CREATE INDEX IF NOT EXISTS trades_broker_order_id_idx ON trades ((metadata->>'broker_order_id'))`,
		`CREATE INDEX IF NOT EXISTS trades_open_symbol_idx ON trades (symbol) WHERE UPPER(status) = 'OPEN'`,
	}
	for _, stmt := range stmts {
		if err := db.Gorm.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
