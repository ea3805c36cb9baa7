package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/installer"
	"github.com/tzervas/embeddenator/internal/platform"
	"github.com/tzervas/embeddenator/internal/runner"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Deregister the configured runner(s) from the platform",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	client, err := platform.New(string(cfg.Platform), platform.Config{
		Repository: cfg.Repository, Token: cfg.Token, APIURL: cfg.APIURL, Timeout: cfg.APITimeout,
	})
	if err != nil {
		return err
	}

	inst := installer.New(log, cfg.Version, cfg.FallbackVersion, cfg.VersionCheckTimeout)
	ctx := context.Background()

	failures := 0
	for _, spec := range buildSpecs(cfg, client, log) {
		r := runner.New(spec, client, inst, log)
		// Stop is a no-op here: this invocation never held the child
		// process handle started by a prior 'start' invocation.
		if err := r.Deregister(ctx); err != nil {
			log.Error("deregister failed", zap.String("runner", spec.Name()), zap.Error(err))
			failures++
			continue
		}
		if cfg.CleanOnDeregister {
			if err := r.Clean(); err != nil {
				log.Error("cleanup failed", zap.String("runner", spec.Name()), zap.Error(err))
			}
		}
		fmt.Printf("stopped %s\n", spec.Name())
	}

	if failures > 0 {
		return fmt.Errorf("stop: %d runner(s) failed", failures)
	}
	return nil
}
