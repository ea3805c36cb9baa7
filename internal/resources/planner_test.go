package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tzervas/embeddenator/internal/hardware"
)

func TestPlanReservesMinimumHostBudget(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 4}
	p := pl.Plan(cpu, 8*giB, 2, 0)

	assert.Equal(t, minHostCores, p.HostReservedCores, "small host falls back to the floor, not the percentage")
	assert.Equal(t, uint64(minHostMemGiB*giB), p.HostReservedMemoryBytes)
}

func TestPlanSplitsRemainingCoresEvenly(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 20}
	p := pl.Plan(cpu, 64*giB, 4, 0)

	require.Equal(t, 4, p.HostReservedCores)
	assert.Equal(t, 4, p.PerRunnerCores, "(20-4)/4 == 4")
}

func TestDualSocketCapsPerRunnerCores(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Intel Xeon E5-2660 v3", PhysicalCores: 40}
	p := pl.Plan(cpu, 128*giB, 2, 0)

	assert.LessOrEqual(t, p.PerRunnerCores, dualSocketMaxCoresPerRunner)
}

func TestOversubscriptionProducesWarningNotError(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 4}
	p := pl.Plan(cpu, 2*giB, 10, 0)

	assert.True(t, pl.Feasible(p), "non-strict planner treats oversubscription as advisory")
	assert.NotEmpty(t, p.Warnings)
}

func TestStrictPlannerRejectsInfeasiblePlan(t *testing.T) {
	pl := New(true)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 4}
	p := pl.Plan(cpu, 2*giB, 10, 0)

	assert.False(t, pl.Feasible(p))
}

func TestAffinityIncludesHyperthreadSiblings(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 20}
	p := pl.Plan(cpu, 64*giB, 4, 0)

	ids := p.Affinity(1, 2)
	require.Len(t, ids, p.PerRunnerCores*2)
	assert.Contains(t, ids, p.HostReservedCores)
	assert.Contains(t, ids, p.HostReservedCores+cpu.PhysicalCores)
}

func TestAffinityOffsetsByRunnerIndex(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 20}
	p := pl.Plan(cpu, 64*giB, 4, 0)

	first := p.Affinity(1, 1)
	second := p.Affinity(2, 1)
	assert.NotEqual(t, first, second)
	assert.Equal(t, first[len(first)-1]+1, second[0])
}

func TestGPUFractionDistributesAcrossPool(t *testing.T) {
	pl := New(false)
	cpu := hardware.CPUInventory{Model: "Generic CPU", PhysicalCores: 20}
	p := pl.Plan(cpu, 64*giB, 4, 2)

	assert.InDelta(t, 0.5, p.PerRunnerGPUFraction, 0.001)
}
