package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"console-gateway/internal/client"
	"console-gateway/internal/config"
	"console-gateway/internal/events"
	"console-gateway/internal/handler"
	"console-gateway/internal/metrics"
	"console-gateway/internal/middleware"
	"console-gateway/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// streamPath is the long-lived event stream; it is kept out of latency
// metrics and quiet in the request log.
const streamPath = "/console/events"

type cli struct {
	config.CLI `embed:""`

	Version kong.VersionFlag `help:"Print version and exit."`

	Serve  serveCmd  `cmd:"" default:"withargs" help:"Run the gateway (default)."`
	Stages stagesCmd `cmd:"" help:"List the pipeline stages built from the config."`
	Verbs  verbsCmd  `cmd:"" help:"List HTTP verbs with their mask bits and whether the gateway forwards them."`
}

func main() {
	var root cli
	ctx := kong.Parse(&root,
		kong.Name("console-gateway"),
		kong.Description("Backend-for-frontend gateway for the admin console REST API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&root.CLI))
}

type serveCmd struct{}

func (serveCmd) Run(cli *config.CLI) error {
	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			events.NewHub,
			service.NewStore,
			fx.Annotate(client.NewBackendClient, fx.As(new(service.Backend))),
			service.NewConsoleService,
			newEcho,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			handler.NewEventsHandler,
			handler.NewSessionHandler,
		),
		fx.Invoke(
			handler.RegisterRoutes,
			registerMetrics,
			warnConfigPermissions,
			startServer,
			closeOnStop,
		),
	).Run()
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
			TimeFormat: "2006-01-02 15:04:05.000",
		})
	default:
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(h)
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout stays disabled: the event stream and large downloads are
	// long-lived. The backend client timeout bounds proxied calls.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger, "/healthz", streamPath))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.SecurityHeaders(cfg.Pipeline.APIKeyHeader, cfg.Pipeline.SessionTokenHeader))

	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, streamPath))
	}

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit.RequestsPerSecond, logger, "/healthz", streamPath))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func registerMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	logger.Info("metrics enabled", "path", cfg.Metrics.Path)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "addr", addr, "backend", cfg.Backend.BaseURL)
			go func() {
				if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			return e.Shutdown(ctx)
		},
	})
}

// closeOnStop is invoked after startServer so its hook runs first on stop:
// open event streams must end before the server can drain.
func closeOnStop(lc fx.Lifecycle, hub *events.Hub, svc *service.ConsoleService) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			hub.Close()
			svc.Close()
			return nil
		},
	})
}
