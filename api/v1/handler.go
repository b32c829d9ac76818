package v1

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"heatmap/internal/events"
)

const (
	msgTrackingFailed   = "An error occurred during tracking."
	msgInvalidData      = "Invalid Data"
	msgMethodNotAllowed = "Method Not Allowed"
	allowedTrackMethods = "POST, OPTIONS"
)

// TrackAction handles the public ingestion endpoint. It is mounted for every
// method so that preflights and wrong verbs are answered here, before any
// body parsing.
func TrackAction(svc *events.Service) cartridge.HandlerFunc {
	return func(ctx *cartridge.Context) error {
		c := ctx.Ctx
		setTrackCORSHeaders(c)

		switch c.Method() {
		case fiber.MethodOptions:
			c.Status(fiber.StatusOK)
			return nil
		case fiber.MethodPost:
		default:
			c.Set(fiber.HeaderAllow, allowedTrackMethods)
			return c.Status(fiber.StatusMethodNotAllowed).JSON(fiber.Map{
				"message": msgMethodNotAllowed,
			})
		}

		// sendBeacon posts text/plain, so the body is decoded regardless of
		// the declared content type.
		batch, err := events.DecodeBatch(c.Body())
		if err != nil {
			ctx.Logger.Debug("Rejected tracking batch", slog.Any("error", err))
			return handleTrackError(c, err)
		}

		stored, err := svc.Ingest(c.UserContext(), batch)
		if err != nil {
			return handleTrackError(c, err)
		}

		ctx.Logger.Debug("Tracked events",
			slog.String("siteId", batch.SiteID),
			slog.Int("count", stored))
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	}
}

func handleTrackError(c *fiber.Ctx, err error) error {
	var validationErr *events.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": msgInvalidData,
			"error":   validationErr.Error(),
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": msgTrackingFailed,
		"error":   err.Error(),
	})
}

func setTrackCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowHeaders, fiber.HeaderContentType)
	c.Set(fiber.HeaderAccessControlAllowMethods, allowedTrackMethods)
}
