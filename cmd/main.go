package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat(defaultConfigPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(defaultConfigPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	httpClient := &http.Client{Timeout: config.Client.Timeout()}
	api := services.NewAPIService(config.Server.BaseURL, httpClient,
		services.WithRateLimit(config.Client.RequestsPerSecond),
		services.WithToken(config.Server.Token),
		services.WithSessionCookie(config.Server.SessionCookie),
		services.WithUnauthorizedHandler(func(e *services.APIError) {
			logger.Error("the server rejected the session; check server.token or server.session_cookie", "status", e.Status)
		}),
	)

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: defaultConfigPath,
		API:        api,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "occ",
		Usage:    "Track course scans on an off-course library server",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		var apiErr *services.APIError
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case errors.As(err, &apiErr):
			logger.Error(services.UserMessage(err), "status", apiErr.Status)
			os.Exit(1)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
