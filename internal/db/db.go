package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"executor/internal/config"
)

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Open connects to the shared trading store. Connections are short-lived per
// operation; the pool stays small because many worker processes share one server.
func Open(cfg config.DBConfig) (*DB, error) {
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(ctx context.Context, db *DB) error {
	if db == nil || db.SQL == nil {
		return fmt.Errorf("db not initialised")
	}
	return db.SQL.PingContext(ctx)
}

func SetTimezone(db *DB, tz string) error {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil
	}
	if strings.ContainsAny(tz, "';") {
		return fmt.Errorf("invalid timezone %q", tz)
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}
