package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jo-hoe/gorotate/internal/backend"
	"github.com/jo-hoe/gorotate/internal/common"
	"github.com/jo-hoe/gorotate/internal/core"
	frontend "github.com/jo-hoe/gorotate/internal/frontend"
	"github.com/jo-hoe/gorotate/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// getConfigPath returns the config file and whether it may be absent
func getConfigPath() (string, bool) {
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath, false
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml"), true
}

func main() {
	configPath, allowMissing := getConfigPath()
	config, err := core.LoadConfigOrDefault(configPath, allowMissing)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.SlogLevel()})))

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(rootCtx, config.Tracing)
	if err != nil {
		slog.Error("failed to set up tracing", "exporter", config.Tracing.Exporter, "error", err)
		os.Exit(1)
	}

	coreService, err := core.NewCoreService(rootCtx, config)
	if err != nil {
		slog.Error("failed to create core service", "error", err)
		os.Exit(1)
	}
	coreService.StartJanitor(rootCtx)

	server := defineServer()
	backend.NewAPIService(config, coreService).SetRoutes(server)
	frontend.NewFrontendService(config, coreService).SetRoutes(server)

	// Start HTTP server in a goroutine to allow graceful shutdown
	go func() {
		slog.Info("http server starting", "address", config.Address())
		if err := server.Start(config.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := coreService.Close(); err != nil {
		slog.Error("core service close error", "error", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		slog.Error("tracing shutdown error", "error", err)
	}
}

func defineServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Configure request logger to skip the probe endpoint
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/probe"
		},
		LogStatus:    true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRoutePath: true,
		LogUserAgent: true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"route", v.RoutePath,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"user_agent", v.UserAgent,
			}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = common.NewGenericEchoValidator()

	return e
}
