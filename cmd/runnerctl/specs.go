package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/config"
	"github.com/tzervas/embeddenator/internal/hardware"
	"github.com/tzervas/embeddenator/internal/platform"
	"github.com/tzervas/embeddenator/internal/runner"
)

// buildSpecs constructs the deterministic per-invocation runner specs for
// a manual register/start/stop command (ids 1..RunnerCount),
// mirroring the way each CLI invocation builds its own ephemeral runner
// set rather than sharing state with a previous invocation's process.
func buildSpecs(cfg *config.Config, client platform.Client, log *zap.Logger) []runner.Spec {
	archs := cfg.TargetArchitectures
	if len(archs) == 0 {
		archs = []string{cfg.HostArch}
	}

	var gpus []hardware.GPUDescriptor
	if cfg.EnableGPU {
		gpus = hardware.NewGPUInspector(log).Inspect(context.Background())
	}

	labels := append([]string{}, client.DefaultLabels()...)
	labels = append(labels, cfg.Labels...)

	specs := make([]runner.Spec, 0, cfg.RunnerCount)
	for id := 1; id <= cfg.RunnerCount; id++ {
		arch := archs[(id-1)%len(archs)]
		runnerLabels := append([]string{}, labels...)
		runnerLabels = append(runnerLabels, arch)
		if cfg.EnableGPU && len(gpus) > 0 {
			runnerLabels = append(runnerLabels, hardware.Labels(gpus[(id-1)%len(gpus)])...)
		}

		specs = append(specs, runner.Spec{
			ID:          id,
			NamePrefix:  cfg.NamePrefix,
			Arch:        arch,
			Labels:      runnerLabels,
			WorkDir:     cfg.WorkDir,
			InstallDir:  filepath.Join(cfg.InstallRoot, fmt.Sprintf("%s-%d", arch, id)),
			Replace:     cfg.ReplaceExisting,
			Ephemeral:   cfg.Ephemeral,
			DisableAuto: cfg.DisableAutoUpdate,
			ExtraArgs:   cfg.AdditionalFlags,
			Repository:  cfg.Repository,
		})
	}
	return specs
}
