// Package resources implements the Resource Planner (C6): computes
// per-runner CPU core counts, CPU affinity sets, memory ceilings and GPU
// assignments while reserving a host budget, and validates feasibility.
package resources

import (
	"fmt"
	"strings"

	"github.com/tzervas/embeddenator/internal/hardware"
)

const (
	minHostCores  = 2
	hostCPUPct    = 0.20
	minHostMemGiB = 2
	hostMemPct    = 0.15
	giB           = 1 << 30

	// dualSocketMaxCoresPerRunner caps per-runner cores on the dual-socket
	// server family to keep whole-socket affinity clean (§4.6).
	dualSocketMaxCoresPerRunner = 4
)

// Plan is the immutable output of one planning pass (ResourcePlan, §3).
type Plan struct {
	HostReservedCores      int
	HostReservedMemoryBytes uint64
	PerRunnerCores         int
	PerRunnerMemoryBytes   uint64
	PerRunnerGPUFraction   float64
	Warnings               []string

	physicalCores int
}

// Affinity returns the set of logical CPU IDs runner id (1-indexed) owns,
// given this plan's per-runner core count (§4.6).
func (p Plan) Affinity(runnerID int, threadsPerCore int) []int {
	start := p.HostReservedCores + (runnerID-1)*p.PerRunnerCores
	end := start + p.PerRunnerCores

	var ids []int
	for c := start; c < end && c < p.physicalCores; c++ {
		ids = append(ids, c)
		if threadsPerCore == 2 {
			ids = append(ids, c+p.physicalCores)
		}
	}
	return ids
}

// Planner computes ResourcePlans from host inventory.
type Planner struct {
	strict bool
}

// New constructs a Planner. When strict is true, an infeasible plan is
// treated as ResourceInfeasible by the caller rather than a warning-only
// advisory.
func New(strict bool) *Planner {
	return &Planner{strict: strict}
}

// Plan computes a ResourcePlan for poolSize runners given the host's CPU
// inventory, total memory, and optional GPU count.
func (pl *Planner) Plan(cpu hardware.CPUInventory, totalMemoryBytes uint64, poolSize int, gpuCount int) Plan {
	if poolSize < 1 {
		poolSize = 1
	}

	physicalCores := cpu.PhysicalCores
	if isHybridCPU(cpu.Model) {
		physicalCores = performanceCoreEstimate(physicalCores)
	}

	hostReservedCores := maxInt(minHostCores, int(float64(physicalCores)*hostCPUPct))
	if hostReservedCores > physicalCores {
		hostReservedCores = physicalCores
	}
	availableCores := maxInt(1, physicalCores-hostReservedCores)

	perRunnerCores := maxInt(1, availableCores/poolSize)
	if isDualSocketServer(cpu.Model) && perRunnerCores > dualSocketMaxCoresPerRunner {
		perRunnerCores = dualSocketMaxCoresPerRunner
	}

	hostReservedMemory := maxU64(minHostMemGiB*giB, uint64(float64(totalMemoryBytes)*hostMemPct))
	if hostReservedMemory > totalMemoryBytes {
		hostReservedMemory = totalMemoryBytes
	}
	availableMemory := totalMemoryBytes - hostReservedMemory
	perRunnerMemory := maxU64(1*giB, availableMemory/uint64(poolSize))

	var gpuFraction float64
	if gpuCount > 0 {
		gpuFraction = float64(gpuCount) / float64(poolSize)
	}

	plan := Plan{
		HostReservedCores:       hostReservedCores,
		HostReservedMemoryBytes: hostReservedMemory,
		PerRunnerCores:          perRunnerCores,
		PerRunnerMemoryBytes:    perRunnerMemory,
		PerRunnerGPUFraction:    gpuFraction,
		physicalCores:           cpu.PhysicalCores,
	}

	if perRunnerCores*poolSize+hostReservedCores > cpu.PhysicalCores {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"cpu oversubscribed: %d per-runner cores * %d runners + %d reserved > %d physical cores",
			perRunnerCores, poolSize, hostReservedCores, cpu.PhysicalCores))
	}
	if perRunnerMemory*uint64(poolSize)+hostReservedMemory > totalMemoryBytes {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"memory oversubscribed: %d per-runner bytes * %d runners + %d reserved > %d total bytes",
			perRunnerMemory, poolSize, hostReservedMemory, totalMemoryBytes))
	}

	return plan
}

// Feasible reports whether the plan has no outstanding warnings, or — when
// strict validation is disabled — always true (warnings are advisory).
func (pl *Planner) Feasible(p Plan) bool {
	if pl.strict {
		return len(p.Warnings) == 0
	}
	return true
}

func isDualSocketServer(model string) bool {
	return strings.Contains(model, "Xeon E5-2660")
}

func isHybridCPU(model string) bool {
	return strings.Contains(model, "Core i") && (strings.Contains(model, "12th Gen") || strings.Contains(model, "13th Gen") || strings.Contains(model, "14th Gen"))
}

// performanceCoreEstimate approximates the performance-core count on a
// Big.LITTLE-style hybrid part; absent per-core topology data, half the
// reported physical core count is treated as performance cores.
func performanceCoreEstimate(physicalCores int) int {
	if physicalCores <= 1 {
		return physicalCores
	}
	return maxInt(1, physicalCores/2)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
