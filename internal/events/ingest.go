package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Service validates batches and persists them as individual events.
type Service struct {
	stores  StoreProvider
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock overrides the receipt clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithTimeout bounds the store round-trip of a single Ingest call.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService creates an ingestion service backed by the given store provider.
func NewService(stores StoreProvider, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		stores: stores,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rawBatch mirrors the wire format; Events stays raw so that an absent field,
// null and a non-array value can be told apart.
type rawBatch struct {
	SiteID string          `json:"siteId"`
	URL    string          `json:"url"`
	Events json.RawMessage `json:"events"`
}

// DecodeBatch parses a /track request body.
func DecodeBatch(body []byte) (Batch, error) {
	var raw rawBatch
	if err := json.Unmarshal(body, &raw); err != nil {
		return Batch{}, NewValidationError("", fmt.Sprintf("invalid request body: %v", err))
	}

	if raw.SiteID == "" {
		return Batch{}, NewValidationError("siteId", "is required")
	}

	trimmed := bytes.TrimSpace(raw.Events)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Batch{}, NewValidationError("events", "is required")
	}
	if trimmed[0] != '[' {
		return Batch{}, NewValidationError("events", "must be an array")
	}

	inputs := []EventInput{}
	if err := json.Unmarshal(trimmed, &inputs); err != nil {
		return Batch{}, NewValidationError("events", fmt.Sprintf("contains a malformed event: %v", err))
	}

	return Batch{SiteID: raw.SiteID, URL: raw.URL, Events: inputs}, nil
}

// Validate checks the batch-level fields and every event's variant rules.
func (b Batch) Validate() error {
	if b.SiteID == "" {
		return NewValidationError("siteId", "is required")
	}
	if b.Events == nil {
		return NewValidationError("events", "is required")
	}
	for i, e := range b.Events {
		if err := e.Validate(); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return NewValidationError(fmt.Sprintf("events[%d].%s", i, verr.Field), verr.Reason)
			}
			return err
		}
	}
	return nil
}

// Ingest validates the batch and stores every event with one bulk insert. It
// returns the number of stored events. Either the whole batch is accepted or
// an error is returned.
func (s *Service) Ingest(ctx context.Context, batch Batch) (int, error) {
	if err := batch.Validate(); err != nil {
		return 0, err
	}

	if len(batch.Events) == 0 {
		s.logger.Debug("Empty batch, nothing to store", slog.String("siteId", batch.SiteID))
		return 0, nil
	}

	records := BuildRecords(batch, s.now())

	store, err := s.stores.Acquire(ctx)
	if err != nil {
		s.logger.Error("Failed to acquire store", slog.Any("error", err))
		return 0, NewStoreError("connect", err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := store.InsertEvents(ctx, records); err != nil {
		s.logger.Error("Failed to store events",
			slog.String("siteId", batch.SiteID),
			slog.Int("count", len(records)),
			slog.Any("error", err))
		return 0, NewStoreError("insert events", err)
	}

	s.logger.Debug("Stored events",
		slog.String("siteId", batch.SiteID),
		slog.Int("count", len(records)))
	return len(records), nil
}

// BuildRecords merges the batch-level fields into every event and stamps them
// all with the same receipt time.
func BuildRecords(batch Batch, ingestedAt time.Time) []InteractionEvent {
	records := make([]InteractionEvent, 0, len(batch.Events))
	for _, e := range batch.Events {
		records = append(records, InteractionEvent{
			SiteID:     batch.SiteID,
			Type:       e.Type,
			Path:       e.Path,
			X:          e.X,
			Y:          e.Y,
			Timestamp:  e.Timestamp,
			URL:        batch.URL,
			IngestedAt: ingestedAt,
		})
	}
	return records
}
