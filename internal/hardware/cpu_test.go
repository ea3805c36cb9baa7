package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspectCPUReturnsSaneTopology(t *testing.T) {
	inv := InspectCPU()

	assert.GreaterOrEqual(t, inv.PhysicalCores, 1)
	assert.GreaterOrEqual(t, inv.LogicalCores, inv.PhysicalCores)
	assert.GreaterOrEqual(t, inv.ThreadsPerCore, 1)
	assert.NotNil(t, inv.Flags)
}

func TestHasAll(t *testing.T) {
	flags := map[string]bool{"avx2": true, "avx512f": false}
	assert.True(t, hasAll(flags, []string{"avx2"}))
	assert.False(t, hasAll(flags, []string{"avx2", "avx512f"}))
	assert.False(t, hasAll(flags, []string{"sse4.2"}))
}
