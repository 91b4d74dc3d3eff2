// Package httpapi exposes the relationship engine over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ersonp/relgraph/internal/application/handlers"
	"github.com/ersonp/relgraph/internal/infrastructure/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Request headers carrying the tenant and the acting principal.
const (
	HeaderOrganizationID = "X-Organization-ID"
	HeaderActor          = "X-Actor"
)

const shutdownTimeout = 10 * time.Second

// Handlers groups the application handlers the API routes to.
type Handlers struct {
	Relationships *handlers.RelationshipHandler
	Queries       *handlers.QueryHandler
	Graph         *handlers.GraphHandler
	Bulk          *handlers.BulkHandler
	Types         *handlers.TypeHandler
}

// Options configures the server.
type Options struct {
	Logger *zap.Logger
	// Gatherer backs /metrics. Nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
	// Health is checked by /healthz. Nil always reports healthy.
	Health func(ctx context.Context) error
	// SeedDefaults loads the default relationship types of each organization
	// on its first request.
	SeedDefaults bool
}

// New builds the echo instance with every route registered.
func New(h Handlers, opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/healthz" || path == "/metrics"
			},
			LogURI:       true,
			LogStatus:    true,
			LogLatency:   true,
			LogError:     true,
			LogMethod:    true,
			LogRequestID: true,
			HandleError:  true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
					zap.String("request_id", v.RequestID),
					zap.String("organization_id", c.Request().Header.Get(HeaderOrganizationID)),
				}
				if v.Error != nil {
					logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				} else {
					logger.Info("request", fields...)
				}
				return nil
			},
		}),
		middleware.RecoverWithConfig(middleware.RecoverConfig{
			LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
				logger.Error("panic recovered", zap.Error(err), zap.ByteString("stack", stack))
				return err
			},
		}),
	)

	e.GET("/healthz", healthz(opts.Health))
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	a := &api{h: h, seedDefaults: opts.SeedDefaults}
	registerRoutes(e.Group("/v1", a.tenant), a)

	return e
}

func healthz(check func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			if err := check(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Serve runs e on cfg.Addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, e *echo.Echo, cfg config.HTTPConfig, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Addr))
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
