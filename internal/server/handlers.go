package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/internal/discovery"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
	"github.com/mohammad-safakhou/sourcer/internal/store"
	"github.com/mohammad-safakhou/sourcer/internal/toolagent"
)

// DiscoveryRunner runs the deterministic discovery workflow.
type DiscoveryRunner interface {
	RunDiscovery(ctx context.Context, sessionID string, input discovery.Requirements, preference string) discovery.Report
}

// RecommendationRunner runs the tool-driven mode.
type RecommendationRunner interface {
	Run(ctx context.Context, query string, history []toolagent.ChatMessage) (toolagent.Result, error)
}

// ReportReader returns the latest encoded report of a session.
type ReportReader interface {
	LatestReport(ctx context.Context, sessionID string) ([]byte, error)
}

type discoveryRequest struct {
	SessionID  string         `json:"session_id" validate:"omitempty,max=128"`
	Input      map[string]any `json:"input" validate:"required"`
	Preference string         `json:"preference" validate:"omitempty,max=64"`
}

type recommendationsRequest struct {
	Query       string                  `json:"query" validate:"required"`
	ChatHistory []toolagent.ChatMessage `json:"chat_history" validate:"omitempty,dive"`
}

type recommendationsResponse struct {
	Suppliers []discovery.Candidate `json:"suppliers"`
	Status    discovery.Status      `json:"status"`
	Warnings  []string              `json:"warnings,omitempty"`
}

// DiscoveryHandler serves both operating modes and persisted reports.
type DiscoveryHandler struct {
	Discovery       DiscoveryRunner
	Recommendations RecommendationRunner
	Reports         ReportReader
	Timeout         time.Duration
	Logger          *zap.Logger
}

func (h *DiscoveryHandler) Register(g *echo.Group) {
	g.POST("/discovery", h.discover)
	g.POST("/supply-chain/recommendations", h.recommend)
	g.GET("/sessions/:id/report", h.latestReport)
}

// discover runs one discovery session and returns its report.
func (h *DiscoveryHandler) discover(c echo.Context) error {
	if h.Discovery == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "discovery is not configured")
	}
	var req discoveryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	reqs, err := discovery.ParseRequirements(req.Input)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	report := h.Discovery.RunDiscovery(ctx, strings.TrimSpace(req.SessionID), reqs, strings.TrimSpace(req.Preference))
	h.log().Info("discovery request served", zap.String("session_id", report.SessionID), zap.String("status", string(report.Status)))
	return c.JSON(http.StatusOK, report)
}

// recommend runs the tool-driven mode for a free-text query.
func (h *DiscoveryHandler) recommend(c echo.Context) error {
	if h.Recommendations == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "recommendations are not configured")
	}
	var req recommendationsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.Recommendations.Run(ctx, req.Query, req.ChatHistory)
	if errors.Is(err, toolagent.ErrInvalidQuery) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.log().Info("recommendations served", zap.String("status", string(res.Status)), zap.Int("suppliers", len(res.Suppliers)), zap.Int("steps", res.Steps))
	return c.JSON(http.StatusOK, recommendationsResponse{Suppliers: res.Suppliers, Status: res.Status, Warnings: res.Warnings})
}

func (h *DiscoveryHandler) latestReport(c echo.Context) error {
	if h.Reports == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reports are not configured")
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id required")
	}
	b, err := h.Reports.LatestReport(c.Request().Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no report for session")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !json.Valid(b) {
		return echo.NewHTTPError(http.StatusInternalServerError, "stored report is corrupt")
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *DiscoveryHandler) log() *zap.Logger { return logging.OrNop(h.Logger) }

func (h *DiscoveryHandler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	if h.Timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}
