package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"heatmap/internal/events"
)

const insertBatchSize = 500

// SQLiteStore keeps events in a single relational table. It backs local
// development and tests; production deployments use MongoDB.
type SQLiteStore struct {
	manager *sqlite.Manager // nil when wrapping an existing connection
	db      *gorm.DB
	logger  *slog.Logger
}

var _ events.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database file at path through
// cartridge's sqlite manager: WAL journal, immediate transactions and a busy
// timeout.
func OpenSQLite(path string, maxOpenConns, maxIdleConns int, log *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	manager := sqlite.NewManager(sqlite.Config{
		Path:         path,
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
		Logger:       log,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	})

	db, err := manager.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{manager: manager, db: db, logger: log}, nil
}

// NewSQLiteStore wraps an open gorm connection.
func NewSQLiteStore(db *gorm.DB, log *slog.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, logger: log}
}

// DB exposes the underlying connection for tests and tooling.
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// InsertEvents writes the batch inside one transaction, so a failure leaves no
// partial batch behind.
func (s *SQLiteStore) InsertEvents(ctx context.Context, records []events.InteractionEvent) error {
	if len(records) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

// TopPaths groups matching events by path and returns the most frequent ones.
func (s *SQLiteStore) TopPaths(ctx context.Context, siteID, eventType string, limit int) ([]events.PathCount, error) {
	rows := []events.PathCount{}
	err := s.db.WithContext(ctx).
		Model(&events.InteractionEvent{}).
		Select("path, COUNT(*) AS count").
		Where("site_id = ? AND type = ?", siteID, eventType).
		Group("path").
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	return rows, nil
}

// Ping checks the database file is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates the events table, then folds the WAL back into
// the main database file.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(&events.InteractionEvent{})
	})
	if err != nil {
		return fmt.Errorf("failed to migrate events table: %w", err)
	}

	if s.manager != nil {
		if err := s.manager.CheckpointWAL("FULL"); err != nil {
			s.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLiteStore) Close(ctx context.Context) error {
	if s.manager != nil {
		return s.manager.Close()
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
