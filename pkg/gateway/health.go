package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"hive/internal/version"
)

// ServiceHealth reports one dependency's probe result. Latency is -1 when
// the dependency is unreachable.
type ServiceHealth struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms"`
}

// WebsocketHealth reports the live connection count.
type WebsocketHealth struct {
	Connections int `json:"connections"`
}

// HealthBody is the /api/health response.
type HealthBody struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Version       string    `json:"version"`
	Services      struct {
		Bus       ServiceHealth   `json:"bus"`
		LogStore  ServiceHealth   `json:"log_store"`
		Websocket WebsocketHealth `json:"websocket"`
	} `json:"services"`
	ResponseTimeMs float64 `json:"response_time_ms"`
}

// handleHealth probes every dependency and answers 200 only when all of
// them are connected.
func (s *Server) handleHealth(c echo.Context) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	body := HealthBody{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Version:       version.String(),
	}
	body.Services.Websocket.Connections = s.hub.Count()

	body.Services.Bus = probe(func() (time.Duration, error) { return s.bus.LatencyProbe(ctx) })
	body.Services.LogStore = probe(func() (time.Duration, error) { return s.store.Ping(ctx) })

	healthy := body.Services.Bus.Connected && body.Services.LogStore.Connected
	body.Status = "healthy"
	code := http.StatusOK
	if !healthy {
		body.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	body.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000

	return c.JSON(code, body)
}

func probe(f func() (time.Duration, error)) ServiceHealth {
	d, err := f()
	if err != nil {
		return ServiceHealth{Connected: false, LatencyMs: -1}
	}
	return ServiceHealth{Connected: true, LatencyMs: float64(d.Microseconds()) / 1000}
}
