// Package seeder generates synthetic click data from a real HTML page, for
// demos and for exercising the insight pipeline locally.
package seeder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/net/html"

	"heatmap/internal/events"
	"heatmap/internal/locator"
)

// Page dimensions used for synthetic coordinates.
const (
	pageWidth  = 1280
	pageHeight = 2400
)

// interactiveWeight is how much more often an interactive element is clicked
// than a structural one.
const interactiveWeight = 6

var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
	"label":    true,
	"summary":  true,
}

// Seeder ingests synthetic batches through the regular ingestion service.
type Seeder struct {
	Events *events.Service
	Logger *slog.Logger
	rng    *rand.Rand
}

// NewSeeder creates a seeder. The same seed yields the same clicks for the
// same page.
func NewSeeder(svc *events.Service, logger *slog.Logger, seed uint64) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		Events: svc,
		Logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// BuildBatch picks clicks elements of the page at random, interactive
// elements more often, and returns them as one batch.
func (s *Seeder) BuildBatch(doc *html.Node, siteID, pageURL string, clicks int) (events.Batch, error) {
	elements := locator.Elements(doc)
	if len(elements) == 0 {
		return events.Batch{}, fmt.Errorf("page has no clickable elements")
	}

	weights := make([]int, len(elements))
	total := 0
	for i, el := range elements {
		w := 1
		if interactiveTags[strings.ToLower(el.Data)] {
			w = interactiveWeight
		}
		weights[i] = w
		total += w
	}

	start := time.Now().UnixMilli()
	inputs := make([]events.EventInput, 0, clicks)
	for i := 0; i < clicks; i++ {
		el := elements[pick(s.rng, weights, total)]
		x := float64(s.rng.IntN(pageWidth))
		y := float64(s.rng.IntN(pageHeight))
		inputs = append(inputs, events.EventInput{
			Type:      events.EventTypeClick,
			Path:      locator.Path(el),
			X:         &x,
			Y:         &y,
			Timestamp: start + int64(i)*250,
		})
	}

	return events.Batch{SiteID: siteID, URL: pageURL, Events: inputs}, nil
}

// SeedPage parses an HTML page and ingests clicks synthetic clicks for it.
func (s *Seeder) SeedPage(ctx context.Context, page io.Reader, siteID, pageURL string, clicks int) (int, error) {
	doc, err := html.Parse(page)
	if err != nil {
		return 0, fmt.Errorf("failed to parse page: %w", err)
	}

	batch, err := s.BuildBatch(doc, siteID, pageURL, clicks)
	if err != nil {
		return 0, err
	}

	stored, err := s.Events.Ingest(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to ingest seed batch: %w", err)
	}

	s.Logger.Info("Seeded clicks",
		slog.String("siteId", siteID),
		slog.String("url", pageURL),
		slog.Int("count", stored))
	return stored, nil
}

func pick(rng *rand.Rand, weights []int, total int) int {
	n := rng.IntN(total)
	for i, w := range weights {
		if n < w {
			return i
		}
		n -= w
	}
	return len(weights) - 1
}
