package v1

import (
	"bytes"
	_ "embed"
	"log/slog"
	"strings"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

//go:embed tracker.js
var trackerSource string

var trackerTemplate = template.Must(template.New("tracker.js").Parse(trackerSource))

// TrackerScriptAction serves the collector script with the track endpoint
// baked in. baseURL is the public origin of this server; when it is empty the
// request's own origin is used and the response varies on Host. Responses
// carry a strong ETag so browsers can revalidate cheaply.
func TrackerScriptAction(baseURL string) cartridge.HandlerFunc {
	return func(ctx *cartridge.Context) error {
		origin := baseURL
		if origin == "" {
			origin = ctx.BaseURL()
			ctx.Vary(fiber.HeaderHost)
		}

		var buf bytes.Buffer
		data := map[string]string{
			"BaseURL": strings.TrimSuffix(origin, "/"),
		}
		if err := trackerTemplate.Execute(&buf, data); err != nil {
			ctx.Logger.Error("Failed to render tracker script", slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		}

		content := buf.Bytes()
		etag := generateETag(content)

		if ctx.Get(fiber.HeaderIfNoneMatch) == etag {
			ctx.Logger.Debug("ETag match, returning 304",
				slog.String("etag", etag),
				slog.String("path", ctx.Path()))
			return ctx.Status(fiber.StatusNotModified).Send(nil)
		}

		ctx.Set(fiber.HeaderContentType, "application/javascript")
		ctx.Set(fiber.HeaderCacheControl, "public, max-age=3600")
		ctx.Set(fiber.HeaderETag, etag)
		ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
		return ctx.Send(content)
	}
}
