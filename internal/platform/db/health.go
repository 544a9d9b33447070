package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// HealthHandler reports liveness plus database connectivity and pool stats.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		status := "ok"
		dbStatus := "up"
		code := http.StatusOK

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			status = "degraded"
			dbStatus = "down"
			code = http.StatusServiceUnavailable
		}

		s := pool.Stat()
		return c.JSON(code, map[string]interface{}{
			"status":   status,
			"database": dbStatus,
			"pool": PoolStats{
				TotalConns:    s.TotalConns(),
				IdleConns:     s.IdleConns(),
				AcquiredConns: s.AcquiredConns(),
				MaxConns:      s.MaxConns(),
			},
			"time": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
