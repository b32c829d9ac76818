package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

const healthPingTimeout = 3 * time.Second

// Pinger checks the event store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(db Pinger) cartridge.HandlerFunc {
	return func(ctx *cartridge.Context) error {
		dbStatus := "ok"

		pingCtx, cancel := context.WithTimeout(ctx.UserContext(), healthPingTimeout)
		defer cancel()

		if err := db.Ping(pingCtx); err != nil {
			dbStatus = "error"
			ctx.Logger.Error("Event store ping failed", slog.Any("error", err))
		}

		health := HealthStatus{
			Status:    "ok",
			Timestamp: time.Now(),
			DBStatus:  dbStatus,
		}

		if dbStatus != "ok" {
			health.Status = "degraded"
		}

		return ctx.JSON(health)
	}
}
