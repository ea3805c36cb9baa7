// Package hardware implements the CPU Inspector (C4) and GPU Inspector
// (C5): one-pass startup hardware inventory used by the Resource Planner
// and runner label composition.
package hardware

import (
	"github.com/klauspost/cpuid/v2"
)

// CPUInventory is the immutable result of one CPU inspection pass.
type CPUInventory struct {
	Model               string
	PhysicalCores       int
	LogicalCores        int
	ThreadsPerCore      int
	Flags               map[string]bool
	MicroarchGeneration string

	AVX512Capable bool
	AMXCapable    bool

	InferenceFit bool
	TrainingFit  bool
}

// microarchRequirement gates workload fitness on microarchitecture release
// year and required feature flags (§4.4).
type microarchRequirement struct {
	minYear          int
	requiredFeatures []string
}

var inferenceRequirements = microarchRequirement{minYear: 2017, requiredFeatures: []string{"avx2"}}
var trainingRequirements = microarchRequirement{minYear: 2019, requiredFeatures: []string{"avx512f"}}

// microarchYears maps a handful of well-known microarchitecture code names
// to their release year, used to evaluate the fitness table above.
var microarchYears = map[string]int{
	"Skylake":       2015,
	"Cascade Lake":  2019,
	"Ice Lake":      2021,
	"Sapphire Rapids": 2023,
	"Zen":           2017,
	"Zen 2":         2019,
	"Zen 3":         2020,
	"Zen 4":         2022,
	"Apple Silicon": 2020,
}

// InspectCPU gathers CPU topology and feature flags in one pass using the
// OS-native inventory (via klauspost/cpuid's /proc/cpuinfo and CPUID
// reads) and derives workload-fitness booleans.
func InspectCPU() CPUInventory {
	c := cpuid.CPU

	physical := c.PhysicalCores
	logical := c.LogicalCores
	threadsPerCore := c.ThreadsPerCore
	if physical == 0 {
		physical = logical
	}
	if threadsPerCore == 0 {
		threadsPerCore = 1
	}

	flags := map[string]bool{
		"avx2":    c.Supports(cpuid.AVX2),
		"avx512f": c.Supports(cpuid.AVX512F),
		"amx_tile": c.Supports(cpuid.AMXTILE),
		"sse4.2":  c.Supports(cpuid.SSE42),
		"fma3":    c.Supports(cpuid.FMA3),
	}

	inv := CPUInventory{
		Model:          c.BrandName,
		PhysicalCores:  physical,
		LogicalCores:   logical,
		ThreadsPerCore: threadsPerCore,
		Flags:          flags,
		AVX512Capable:  flags["avx512f"],
		AMXCapable:     flags["amx_tile"],
	}

	inv.MicroarchGeneration = microarchName(c)
	year, known := microarchYears[inv.MicroarchGeneration]
	if !known {
		year = 0
	}

	inv.InferenceFit = year >= inferenceRequirements.minYear && hasAll(flags, inferenceRequirements.requiredFeatures)
	inv.TrainingFit = year >= trainingRequirements.minYear && hasAll(flags, trainingRequirements.requiredFeatures)

	return inv
}

func microarchName(c cpuid.CPUInfo) string {
	if name := c.Microarchitecture(); name != "" {
		return name
	}
	return "unknown"
}

func hasAll(flags map[string]bool, required []string) bool {
	for _, f := range required {
		if !flags[f] {
			return false
		}
	}
	return true
}
