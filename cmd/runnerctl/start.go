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

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the already-registered runner process(es)",
	Long: `Starts run.sh for each configured runner and returns. The child
processes keep running after this command exits; use 'monitor' or 'run'
for a supervised long-lived pool instead.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
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
		if err := r.Start(ctx); err != nil {
			log.Error("start failed", zap.String("runner", spec.Name()), zap.Error(err))
			failures++
			continue
		}
		fmt.Printf("started %s\n", spec.Name())
	}

	if failures > 0 {
		return fmt.Errorf("start: %d runner(s) failed", failures)
	}
	return nil
}
