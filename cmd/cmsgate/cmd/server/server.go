package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideamans/cmsgate/pkg/config"
	"github.com/ideamans/cmsgate/pkg/proxyserver"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
	"github.com/ideamans/cmsgate/pkg/upstream"
)

// Config represents the configuration for running the server
type Config struct {
	Load    config.Options
	Version string
	// Logger overrides the logger built from the logging section.
	Logger logging.Logger
}

// Run loads the configuration and serves until SIGINT/SIGTERM or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	appCfg, err := config.Load(cfg.Load)
	if err != nil {
		return formatConfigError(err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger, err = logging.NewLoggerWithFile("main", logging.ParseLevel(appCfg.Logging.Level), appCfg.Logging.Color, appCfg.Logging.Rotation())
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Starting cmsgate", "version", cfg.Version, "mode", appCfg.Mode())
	if cfg.Load.Path != "" {
		if _, statErr := os.Stat(cfg.Load.Path); statErr != nil {
			logger.Warn("Config file not found, using environment and defaults", "path", cfg.Load.Path)
		}
		for _, name := range config.MissingEnvVars(cfg.Load.Path) {
			logger.Warn("Environment variable referenced in config is not set", "name", name)
		}
	}

	srv, err := proxyserver.New(appCfg, proxyserver.Options{Version: cfg.Version, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("Failed to close rate limit store", "error", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(sigCtx)
}

// formatConfigError prefixes configuration problems so they read as such
// on the terminal; the process then exits with status 1.
func formatConfigError(err error) error {
	var cerr *upstream.ConfigurationError
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr) && len(verr.Errors) > 1:
		return fmt.Errorf("invalid configuration:\n%w", err)
	case errors.As(err, &cerr), errors.As(err, &verr):
		return fmt.Errorf("invalid configuration: %w", err)
	default:
		return fmt.Errorf("failed to load configuration: %w", err)
	}
}
