package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "heatmap/api/v1"
	"heatmap/internal/config"
	"heatmap/internal/http"
)

// publicCORSConfig is applied to the collector script. /track sets its own
// headers because its preflight must answer 200.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,HEAD,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept",
}

// anyMethod lists every verb cartridge can register. Routes that answer wrong
// verbs themselves are mounted on all of them.
var anyMethod = []func(*cartridge.Server, string, cartridge.HandlerFunc, ...*cartridge.RouteConfig){
	(*cartridge.Server).Get,
	(*cartridge.Server).Head,
	(*cartridge.Server).Post,
	(*cartridge.Server).Put,
	(*cartridge.Server).Patch,
	(*cartridge.Server).Delete,
	(*cartridge.Server).Options,
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server, app *Application) {
	// SQLite takes one writer at a time; queue collector writes in front of it.
	trackConfig := &cartridge.RouteConfig{
		WriteConcurrency: app.Config.DatabaseType == config.SQLiteDatabase,
	}

	scriptConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: publicCORSConfig,
	}

	// Every analysis is a paid generation call; production callers are
	// limited per IP.
	analyzeConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			cartridgemiddleware.RateLimiter(
				cartridgemiddleware.WithMax(10),
				cartridgemiddleware.WithDuration(time.Minute),
				cartridgemiddleware.WithEnv(app.Config),
			),
		},
	}

	// Public collector endpoints
	for _, mount := range anyMethod {
		mount(srv, "/track", v1.TrackAction(app.Events), trackConfig)
	}
	srv.Get("/tracker.js", v1.TrackerScriptAction(app.Config.PublicBaseURL), scriptConfig)

	// Insights
	for _, mount := range anyMethod {
		mount(srv, "/analyze", http.AnalyzeAction(app.Analyzer), analyzeConfig)
	}

	// Health
	srv.Get("/_health", http.HealthIndexAction(app.DBManager))
	srv.Head("/_health", http.HealthIndexAction(app.DBManager))
}
