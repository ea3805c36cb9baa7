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

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Install and register the configured runner(s) with the platform",
	RunE:  runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
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
		if err := r.Install(ctx); err != nil {
			log.Error("install failed", zap.String("runner", spec.Name()), zap.Error(err))
			failures++
			continue
		}
		if err := r.Register(ctx); err != nil {
			log.Error("register failed", zap.String("runner", spec.Name()), zap.Error(err))
			failures++
			continue
		}
		fmt.Printf("registered %s\n", spec.Name())
	}

	if failures > 0 {
		return fmt.Errorf("register: %d runner(s) failed", failures)
	}
	return nil
}
