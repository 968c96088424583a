package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mr-karan/searchwatch/internal/alerts"
)

// HealthResponse reports the service lifecycle state.
type HealthResponse struct {
	State       string `json:"state"`
	ActiveRules int    `json:"active_rules"`
	Uptime      string `json:"uptime"`
}

// MetaResponse represents the server metadata response.
type MetaResponse struct {
	Version        string `json:"version"`
	HistoryEnabled bool   `json:"history_enabled"`
	ReloadEnabled  bool   `json:"reload_enabled"`
}

// handleHealth returns 200 while the service runs and 503 otherwise.
// URL: GET /api/v1/health
func (s *Server) handleHealth(c *fiber.Ctx) error {
	state := s.rules.State()
	active := 0
	for _, r := range s.rules.Rules() {
		if r.Enabled {
			active++
		}
	}
	resp := HealthResponse{
		State:       state.String(),
		ActiveRules: active,
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
	status := fiber.StatusOK
	if state != alerts.StateRunning {
		status = fiber.StatusServiceUnavailable
	}
	return SendSuccess(c, status, resp)
}

// handleGetMeta returns server metadata.
// URL: GET /api/v1/meta
func (s *Server) handleGetMeta(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, MetaResponse{
		Version:        s.version,
		HistoryEnabled: s.history != nil,
		ReloadEnabled:  s.reload != nil,
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.metrics == nil {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
	s.metrics(c)
	return nil
}
