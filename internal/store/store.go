// Package store is the durable store: gorm tables for price and benchmark
// series, series coverage, capitalization snapshots, free float, dividend
// yields and custom indices. Every write is an insert that does nothing on
// conflict, so concurrent writers never duplicate or rewrite a row.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/seenimoa/moexidx/internal/config"
	"github.com/seenimoa/moexidx/internal/errs"
)

const batchSize = 500

// Store is a handle on the durable tables. It is safe for concurrent use.
type Store struct {
	db     *gorm.DB
	driver string
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.StoreConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(zerologWriter{}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	log.Debug().Str("driver", cfg.Driver).Msg("store: opened")
	return s, nil
}

func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&priceRow{}, &benchmarkRow{}, &coverageRow{},
		&capitalizationRow{}, &freeFloatRow{}, &dividendYieldRow{},
		&indexRow{}, &componentRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Driver returns the configured driver name.
func (s *Store) Driver() string { return s.driver }

// insertIgnore inserts rows, leaving any row whose key already exists untouched.
func insertIgnore[T any](ctx context.Context, db *gorm.DB, op string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, batchSize).Error
	return errs.Store(op, err)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.ErrNotFound
	}
	return err
}

// zerologWriter routes gorm's logger through the global zerolog logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}
