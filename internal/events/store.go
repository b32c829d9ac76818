package events

import "context"

// Store is the persistence contract the ingestion and aggregation code needs:
// bulk insert and a grouped count. Implementations live in internal/database.
type Store interface {
	InsertEvents(ctx context.Context, events []InteractionEvent) error
	TopPaths(ctx context.Context, siteID, eventType string, limit int) ([]PathCount, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close(ctx context.Context) error
}

// StoreProvider hands out the shared store handle, connecting on first use.
type StoreProvider interface {
	Acquire(ctx context.Context) (Store, error)
}
