package events

import "context"

// DefaultTopLimit is the number of rows returned by TopInteractions when the
// caller does not ask for a specific limit.
const DefaultTopLimit = 10

// TopInteractions returns the most frequent paths for one site and interaction
// type, most frequent first. Rows with equal counts come back in whatever
// order the store yields them. An empty, non-nil slice means no matching
// events.
func TopInteractions(ctx context.Context, store Store, siteID, eventType string, limit int) ([]PathCount, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	rows, err := store.TopPaths(ctx, siteID, eventType, limit)
	if err != nil {
		return nil, NewStoreError("aggregate events", err)
	}

	if rows == nil {
		rows = []PathCount{}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
