package http

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"heatmap/internal/events"
	"heatmap/internal/insights"
)

const (
	msgAnalysisFailed   = "An error occurred during analysis."
	msgInvalidRequest   = "Invalid request"
	msgMethodNotAllowed = "Method Not Allowed"
)

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	SiteID string `json:"siteId"`
}

// AnalyzeAction generates an insight report for a site. Every call aggregates
// and generates again; nothing is cached.
func AnalyzeAction(analyzer *insights.Analyzer) cartridge.HandlerFunc {
	return func(ctx *cartridge.Context) error {
		c := ctx.Ctx
		if c.Method() != fiber.MethodPost {
			c.Set(fiber.HeaderAllow, fiber.MethodPost)
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"message": msgMethodNotAllowed,
			})
		}

		var req AnalyzeRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": msgInvalidRequest,
				"error":   "invalid request body",
			})
		}
		if req.SiteID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": msgInvalidRequest,
				"error":   "siteId is required",
			})
		}

		analysis, err := analyzer.Generate(c.UserContext(), req.SiteID)
		if err != nil {
			ctx.Logger.Error("Analysis failed",
				slog.String("siteId", req.SiteID),
				slog.String("kind", errorKind(err)),
				slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": msgAnalysisFailed,
				"error":   err.Error(),
			})
		}

		return c.JSON(fiber.Map{"analysis": analysis})
	}
}

func errorKind(err error) string {
	var storeErr *events.StoreError
	var upstreamErr *insights.UpstreamError
	switch {
	case errors.As(err, &storeErr):
		return "store"
	case errors.As(err, &upstreamErr):
		return "upstream"
	default:
		return "unknown"
	}
}
