// Package database owns the lifecycle of the event store connection: it dials
// lazily, hands the same handle to every caller while it is healthy, and can be
// reset to force the next caller to reconnect.
package database

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/karloscodes/cartridge"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"heatmap/internal/config"
	"heatmap/internal/events"
)

// Dialer opens a new store connection.
type Dialer func(ctx context.Context) (events.Store, error)

// DBManager caches the store handle for the lifetime of the process. The
// handle is shared by all requests; the driver's own pool makes concurrent use
// safe.
type DBManager struct {
	dial   Dialer
	logger *slog.Logger

	mu    sync.RWMutex
	store events.Store
	gen   uint64 // bumped by Reset; a dial started under an older gen is discarded
	group singleflight.Group
}

var (
	_ events.StoreProvider = (*DBManager)(nil)
	_ cartridge.DBManager  = (*DBManager)(nil)
)

// ErrNotRelational is returned by Connect when the event store has no gorm
// connection behind it.
var ErrNotRelational = errors.New("event store is not relational")

// ErrResetDuringDial is returned to callers whose dial was overtaken by Reset.
var ErrResetDuringDial = errors.New("event store was reset while connecting")

// NewDBManager creates a manager for the backend selected in the configuration.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return NewDBManagerWithDialer(DialerFor(cfg, logger), logger)
}

// NewDBManagerWithDialer creates a manager around an arbitrary dial function.
func NewDBManagerWithDialer(dial Dialer, logger *slog.Logger) *DBManager {
	return &DBManager{
		dial:   dial,
		logger: logger,
	}
}

// DialerFor returns the dial function for the configured backend.
func DialerFor(cfg *config.Config, logger *slog.Logger) Dialer {
	switch cfg.DatabaseType {
	case config.SQLiteDatabase:
		return func(ctx context.Context) (events.Store, error) {
			store, err := OpenSQLite(cfg.GetDatabasePath(), cfg.GetMaxOpenConns(), cfg.GetMaxIdleConns(), logger)
			if err != nil {
				return nil, err
			}
			return store, nil
		}
	default:
		mongoCfg := MongoConfig{
			URI:              cfg.MongoURI,
			Database:         cfg.MongoDatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout(),
			SelectionTimeout: cfg.SelectionTimeout(),
			MaxPoolSize:      uint64(cfg.DatabaseMaxOpenConns),
		}
		return func(ctx context.Context) (events.Store, error) {
			return DialMongo(ctx, mongoCfg, logger)
		}
	}
}

// Acquire returns the cached store, dialing it on first use. Concurrent cold
// callers share a single dial. A failed dial is not cached.
func (dm *DBManager) Acquire(ctx context.Context) (events.Store, error) {
	if store := dm.current(); store != nil {
		return store, nil
	}

	v, err, _ := dm.group.Do("store", func() (interface{}, error) {
		dm.mu.RLock()
		store, gen := dm.store, dm.gen
		dm.mu.RUnlock()
		if store != nil {
			return store, nil
		}

		dm.logger.Info("Connecting to event store")
		// A caller that goes away must not abort a dial other callers wait on.
		store, err := dm.dial(context.WithoutCancel(ctx))
		if err != nil {
			dm.logger.Error("Failed to connect to event store", slog.Any("error", err))
			return nil, err
		}

		dm.mu.Lock()
		if dm.gen != gen {
			dm.mu.Unlock()
			dm.logger.Warn("Event store reset while connecting, discarding connection")
			if err := store.Close(context.WithoutCancel(ctx)); err != nil {
				dm.logger.Error("Failed to close discarded connection", slog.Any("error", err))
			}
			return nil, ErrResetDuringDial
		}
		dm.store = store
		dm.mu.Unlock()

		dm.logger.Info("Connected to event store")
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(events.Store), nil
}

func (dm *DBManager) current() events.Store {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.store
}

// Reset drops the cached handle and closes it. The next Acquire dials again.
func (dm *DBManager) Reset(ctx context.Context) error {
	dm.mu.Lock()
	store := dm.store
	dm.store = nil
	dm.gen++
	dm.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Close(ctx)
}

// Close releases the connection on shutdown.
func (dm *DBManager) Close(ctx context.Context) error {
	return dm.Reset(ctx)
}

// Ping acquires the store and checks it is reachable.
func (dm *DBManager) Ping(ctx context.Context) error {
	store, err := dm.Acquire(ctx)
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// MigrateDatabase ensures the schema (sqlite) or indexes (MongoDB) exist.
func (dm *DBManager) MigrateDatabase(ctx context.Context) error {
	store, err := dm.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		dm.logger.Error("Failed to migrate event store", slog.Any("error", err))
		return err
	}

	dm.logger.Info("Event store migration completed successfully")
	return nil
}

// Connect returns the gorm connection behind a SQLite event store, dialing it
// if needed. MongoDB stores return ErrNotRelational.
func (dm *DBManager) Connect() (*gorm.DB, error) {
	store, err := dm.Acquire(context.Background())
	if err != nil {
		return nil, err
	}

	relational, ok := store.(interface{ DB() *gorm.DB })
	if !ok {
		return nil, ErrNotRelational
	}
	return relational.DB(), nil
}

// GetConnection is Connect without the error; nil when there is no gorm
// connection.
func (dm *DBManager) GetConnection() *gorm.DB {
	db, err := dm.Connect()
	if err != nil {
		dm.logger.Debug("No relational connection", slog.Any("error", err))
		return nil
	}
	return db
}
