// Package insights turns stored click data into a natural-language usage
// report by way of an external text generation service.
package insights

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"heatmap/internal/events"
)

// Generator submits a prompt and returns the generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Analyzer produces insight reports on demand. Nothing is cached: every call
// aggregates again and, when there is data, calls the generator again.
type Analyzer struct {
	stores            events.StoreProvider
	generator         Generator
	logger            *slog.Logger
	operationTimeout  time.Duration
	generationTimeout time.Duration
}

// AnalyzerOption configures an Analyzer. A zero timeout leaves the caller's
// context alone in charge.
type AnalyzerOption func(*Analyzer)

// WithOperationTimeout bounds the aggregation round-trip.
func WithOperationTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		a.operationTimeout = d
	}
}

// WithGenerationTimeout bounds the generation call.
func WithGenerationTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		a.generationTimeout = d
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(stores events.StoreProvider, generator Generator, logger *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		stores:    stores,
		generator: generator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Generate builds the click report for a site.
func (a *Analyzer) Generate(ctx context.Context, siteID string) (string, error) {
	store, err := a.stores.Acquire(ctx)
	if err != nil {
		a.logger.Error("Failed to acquire store", slog.Any("error", err))
		return "", events.NewStoreError("connect", err)
	}

	aggCtx, cancelAgg := withTimeout(ctx, a.operationTimeout)
	rows, err := events.TopInteractions(aggCtx, store, siteID, events.EventTypeClick, events.DefaultTopLimit)
	cancelAgg()
	if err != nil {
		a.logger.Error("Failed to aggregate clicks", slog.String("siteId", siteID), slog.Any("error", err))
		return "", err
	}

	if len(rows) == 0 {
		a.logger.Debug("No click data for site", slog.String("siteId", siteID))
		return InsufficientDataMessage, nil
	}

	prompt := BuildPrompt(rows)

	genCtx, cancelGen := withTimeout(ctx, a.generationTimeout)
	defer cancelGen()

	text, err := a.generator.Generate(genCtx, prompt)
	if err != nil {
		a.logger.Error("Generation failed", slog.String("siteId", siteID), slog.Any("error", err))
		var upstreamErr *UpstreamError
		if !errors.As(err, &upstreamErr) {
			err = NewUpstreamError("request failed", err)
		}
		return "", err
	}

	a.logger.Info("Generated insight report",
		slog.String("siteId", siteID),
		slog.Int("elements", len(rows)))
	return text, nil
}
