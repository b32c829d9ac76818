package testsupport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"heatmap/internal"
	"heatmap/internal/config"
	"heatmap/internal/database"
	"heatmap/internal/events"
	"heatmap/internal/insights"
)

// testDBCache caches test databases by root test name so that subtests share
// the database of their parent test.
var testDBCache = make(map[string]*database.SQLiteStore)
var testDBCacheMu sync.Mutex

// GetLogger returns a logger that only prints errors
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// TestConfig returns a configuration for the test environment that does not
// depend on the process environment.
func TestConfig() *config.Config {
	return &config.Config{
		AppName:                      "heatmap",
		AppPort:                      "0",
		Environment:                  config.Test,
		LogLevel:                     config.LogLevelError,
		PublicDirectory:              "public",
		PublicAssetsUrlPrefix:        "/",
		DatabaseType:                 config.SQLiteDatabase,
		MongoDatabaseName:            "heatmap_test",
		DatabaseConnectTimeoutSecs:   1,
		DatabaseSelectionTimeoutSecs: 1,
		DatabaseOpTimeoutSecs:        5,
		GoogleAPIKey:                 "test-key",
		GeminiModel:                  "gemini-test",
		GenerationTimeoutSeconds:     5,
	}
}

// SetupTestStore creates a migrated in-memory event store. Uses a named
// in-memory database with cache=shared so every pooled connection sees the
// same data.
func SetupTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if store, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return store
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	store := database.NewSQLiteStore(db, GetLogger())
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("testsupport: failed to migrate events table: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = store
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		store.Close(context.Background())
	})

	return store
}

// SetupTestDBManager returns a connection manager whose dialer hands out the
// test store, plus the store itself for assertions.
func SetupTestDBManager(t *testing.T) (*database.DBManager, *database.SQLiteStore) {
	t.Helper()

	store := SetupTestStore(t)
	dm := database.NewDBManagerWithDialer(func(ctx context.Context) (events.Store, error) {
		return nopCloseStore{store}, nil
	}, GetLogger())
	return dm, store
}

// nopCloseStore keeps the shared in-memory database alive across Reset calls.
type nopCloseStore struct {
	*database.SQLiteStore
}

func (nopCloseStore) Close(ctx context.Context) error { return nil }

// CountEvents returns the number of stored events for a site.
func CountEvents(t *testing.T, store *database.SQLiteStore, siteID string) int64 {
	t.Helper()

	var count int64
	err := store.DB().Model(&events.InteractionEvent{}).Where("site_id = ?", siteID).Count(&count).Error
	if err != nil {
		t.Fatalf("testsupport: failed to count events: %v", err)
	}
	return count
}

// CreateClicks stores n click events on path for a site.
func CreateClicks(t *testing.T, store events.Store, siteID, path string, n int) {
	t.Helper()

	records := make([]events.InteractionEvent, 0, n)
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		x, y := float64(i), float64(i)
		records = append(records, events.InteractionEvent{
			SiteID:     siteID,
			Type:       events.EventTypeClick,
			Path:       path,
			X:          &x,
			Y:          &y,
			Timestamp:  now.UnixMilli(),
			URL:        "https://example.com/",
			IngestedAt: now,
		})
	}
	if err := store.InsertEvents(context.Background(), records); err != nil {
		t.Fatalf("testsupport: failed to create clicks: %v", err)
	}
}

// ClickInput builds a valid click event for a batch.
func ClickInput(path string, x, y float64) events.EventInput {
	return events.EventInput{
		Type:      events.EventTypeClick,
		Path:      path,
		X:         &x,
		Y:         &y,
		Timestamp: 1700000000000,
	}
}

// ErrStoreUnavailable is returned by FailingStore and FailingProvider.
var ErrStoreUnavailable = errors.New("store unavailable")

// FailingStore fails every operation.
type FailingStore struct {
	Err error
}

func (s FailingStore) err() error {
	if s.Err != nil {
		return s.Err
	}
	return ErrStoreUnavailable
}

func (s FailingStore) InsertEvents(ctx context.Context, records []events.InteractionEvent) error {
	return s.err()
}

func (s FailingStore) TopPaths(ctx context.Context, siteID, eventType string, limit int) ([]events.PathCount, error) {
	return nil, s.err()
}

func (s FailingStore) Ping(ctx context.Context) error    { return s.err() }
func (s FailingStore) Migrate(ctx context.Context) error { return s.err() }
func (s FailingStore) Close(ctx context.Context) error   { return nil }

// StallingStore blocks every operation until its context is done.
type StallingStore struct{}

func (StallingStore) InsertEvents(ctx context.Context, records []events.InteractionEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func (StallingStore) TopPaths(ctx context.Context, siteID, eventType string, limit int) ([]events.PathCount, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (StallingStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (StallingStore) Migrate(ctx context.Context) error { return nil }
func (StallingStore) Close(ctx context.Context) error   { return nil }

// StaticProvider hands out a fixed store, or fails with Err when set.
type StaticProvider struct {
	Store events.Store
	Err   error
}

func (p StaticProvider) Acquire(ctx context.Context) (events.Store, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Store, nil
}

// FakeGenerator records prompts and returns a canned response.
type FakeGenerator struct {
	Response string
	Err      error

	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
}

func (g *FakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Err != nil {
		return "", g.Err
	}
	return g.Response, nil
}

// Calls returns how many times Generate was invoked.
func (g *FakeGenerator) Calls() int {
	return int(g.calls.Load())
}

// LastPrompt returns the most recent prompt, or "" if none.
func (g *FakeGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// CreateTestApp creates the full application around the given connection
// manager and generator and returns its fiber app.
func CreateTestApp(t *testing.T, dm *database.DBManager, generator insights.Generator) *fiber.App {
	t.Helper()
	return CreateTestAppWithConfig(t, TestConfig(), dm, generator)
}

// CreateTestAppWithConfig is CreateTestApp with a caller-supplied config.
func CreateTestAppWithConfig(t *testing.T, cfg *config.Config, dm *database.DBManager, generator insights.Generator) *fiber.App {
	t.Helper()

	app, err := internal.NewAppWithDependencies(cfg, GetLogger(), dm, generator)
	if err != nil {
		t.Fatalf("testsupport: failed to create app: %v", err)
	}
	return app.Server.App()
}

// FailingDBManager returns a connection manager whose store rejects every
// operation, and a counter of dial attempts.
func FailingDBManager(t *testing.T, dialErr error) (*database.DBManager, *atomic.Int32) {
	t.Helper()

	var dials atomic.Int32
	dm := database.NewDBManagerWithDialer(func(ctx context.Context) (events.Store, error) {
		dials.Add(1)
		if dialErr != nil {
			return nil, dialErr
		}
		return FailingStore{}, nil
	}, GetLogger())
	return dm, &dials
}
