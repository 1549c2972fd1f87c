package introspect

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stellatune/engine/internal/devicesink"
	"github.com/stellatune/engine/internal/metrics"
	"github.com/stellatune/engine/internal/pluginrt"
)

// Server is the Echo application exposing the engine's health, device, and
// plugin state, the Prometheus scrape endpoint, and the event-feed
// websocket. Grounded on the teacher's httpapi.Server: an Echo instance
// plus a registerRoutes/Run pair with context-driven graceful shutdown.
type Server struct {
	echo     *echo.Echo
	hub      *Hub
	runtime  *pluginrt.Runtime
	registry *metrics.Registry

	queuedBlocks func() int
}

// New constructs the introspection Echo app. runtime and registry may be
// nil (no plugins root configured, no metrics wired) in which case the
// corresponding endpoints degrade to an empty/unavailable response instead
// of panicking.
func New(hub *Hub, runtime *pluginrt.Runtime, registry *metrics.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, hub: hub, runtime: runtime, registry: registry}
	s.registerRoutes()
	return s
}

// WithQueuedBlocksGauge wires a getter the /metrics handler polls on every
// scrape to refresh the sink worker's queue-depth gauge. Optional.
func (s *Server) WithQueuedBlocksGauge(f func() int) *Server {
	s.queuedBlocks = f
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := req.URL.Path
			if path == "/ws" || path == "/metrics" {
				slog.Debug("introspect http request",
					"method", req.Method, "path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			} else {
				slog.Info("introspect http request",
					"method", req.Method, "path", path,
					"status", c.Response().Status,
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", c.RealIP(),
				)
			}
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/devices", s.handleDevices)
	s.echo.GET("/plugins", s.handlePlugins)
	if s.registry != nil {
		s.echo.GET("/metrics", s.handleMetrics)
	}
	s.echo.GET("/ws", newWSHandler(s.hub).handle)
}

// Run starts Echo and blocks until ctx cancellation or startup failure,
// mirroring the teacher's httpapi.Server.Run shutdown sequencing exactly.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("introspect: shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("introspect: http server stopped")
		return nil
	}
}

type healthzResponse struct {
	Status      string `json:"status"`
	Subscribers int    `json:"ws_subscribers"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthzResponse{
		Status:      "ok",
		Subscribers: s.hub.SubscriberCount(),
	})
}

func (s *Server) handleDevices(c echo.Context) error {
	devices, err := devicesink.ListOutputDevices()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, devices)
}

type pluginStatusResponse struct {
	PluginID     string                `json:"plugin_id"`
	Name         string                `json:"name,omitempty"`
	Active       bool                  `json:"active"`
	Disabled     bool                  `json:"disabled"`
	Capabilities []pluginrt.Capability `json:"capabilities,omitempty"`
}

func (s *Server) handlePlugins(c echo.Context) error {
	if s.runtime == nil {
		return c.JSON(http.StatusOK, []pluginStatusResponse{})
	}
	statuses := s.runtime.Status()
	out := make([]pluginStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, pluginStatusResponse{
			PluginID:     st.PluginID,
			Name:         st.Manifest.Name,
			Active:       st.Active,
			Disabled:     st.Disabled,
			Capabilities: st.Manifest.Capabilities,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// handleMetrics refreshes the lease and queue-depth gauges from their
// current authoritative sources, then delegates to promhttp. Refreshing
// lazily on scrape (rather than on a background ticker) keeps every scrape
// consistent with the runtime's state at read time.
func (s *Server) handleMetrics(c echo.Context) error {
	if s.runtime != nil {
		active, retired := s.runtime.LeaseCounts()
		s.registry.SetLeaseGauges(active, retired)
	}
	if s.queuedBlocks != nil {
		s.registry.SetQueuedBlocks(s.queuedBlocks())
	}
	promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP(c.Response(), c.Request())
	return nil
}
