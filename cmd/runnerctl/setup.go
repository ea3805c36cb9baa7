package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/config"
	"github.com/tzervas/embeddenator/internal/logging"
	"github.com/tzervas/embeddenator/internal/manager"
	"github.com/tzervas/embeddenator/internal/platform"
)

// loadConfigAndLogger loads configuration from the environment and
// constructs the logger the manager and every command share.
func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(dotenvPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		msg := "configuration errors:\n"
		for _, e := range errs {
			msg += fmt.Sprintf("  - %s\n", e)
		}
		return nil, nil, fmt.Errorf("%s", msg)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// buildManager wires configuration, logger, and platform client into a
// Manager, ready for Bootstrap.
func buildManager(cfg *config.Config, log *zap.Logger) (*manager.Manager, error) {
	client, err := platform.New(string(cfg.Platform), platform.Config{
		Repository: cfg.Repository,
		Token:      cfg.Token,
		APIURL:     cfg.APIURL,
		Timeout:    cfg.APITimeout,
	})
	if err != nil {
		return nil, err
	}
	return manager.New(cfg, client, log), nil
}
