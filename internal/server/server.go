package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/sourcer/config"
	"github.com/mohammad-safakhou/sourcer/internal/logging"
)

// Routes holds what NewEcho mounts. Nil fields disable their routes.
type Routes struct {
	Handler *DiscoveryHandler
	Health  func(ctx context.Context) error
	Metrics http.Handler
}

func NewEcho(r Routes, logger *zap.Logger) *echo.Echo {
	log := logging.OrNop(logger).Named("http")
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", c.RealIP()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		}
		if code >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Info("request rejected", fields...)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error {
		if r.Health != nil {
			if err := r.Health(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.String(http.StatusOK, "ok")
	})
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}
	if r.Handler != nil {
		if r.Handler.Logger == nil {
			r.Handler.Logger = log
		}
		r.Handler.Register(e.Group("/api/v1"))
	}
	return e
}

// Run builds the application, serves HTTP until ctx is done and then shuts
// down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	log := logging.OrNop(logger)
	app, err := Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	e := NewEcho(app.Routes(cfg.Server.RequestTimeout), log)
	e.Server.ReadHeaderTimeout = 10 * time.Second

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("address", cfg.Server.Address))
		errCh <- e.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	}
}
