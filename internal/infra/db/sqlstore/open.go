// Package sqlstore persists the settlement engine in a relational database through gorm.
// Postgres is the production target; sqlite backs local runs and tests.
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects with error translation on, so unique violations surface as
// gorm.ErrDuplicatedKey on every driver.
func Open(driver, dsn string, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "pg":
		dialector = postgres.Open(dsn)
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	cfg := &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("sql store connected", "driver", driver)
	}
	return db, nil
}

// Migrate creates or updates every table. The partial unique index enforces one open booking
// per renter and room.
func Migrate(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(
		&bookingRow{},
		&roomRow{},
		&slotHolderRow{},
		&commissionRow{},
		&refundRow{},
		&tierRow{},
		&outboxRow{},
	); err != nil {
		return err
	}
	return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_one_open ON bookings (renter_id, room_id) WHERE is_open`).Error
}

// Ping checks the underlying connection pool.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
