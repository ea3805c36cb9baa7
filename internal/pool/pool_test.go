package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddStartsIdle(t *testing.T) {
	p := New()
	p.Add(1, nil, []string{"self-hosted", "x64"})

	total, idle, busy := p.Counts()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, idle)
	assert.Equal(t, 0, busy)
}

func TestMarkBusyThenIdle(t *testing.T) {
	p := New()
	p.Add(1, nil, nil)

	p.MarkBusy(1)
	_, idle, busy := p.Counts()
	assert.Equal(t, 0, idle)
	assert.Equal(t, 1, busy)

	p.MarkIdle(1)
	_, idle, busy = p.Counts()
	assert.Equal(t, 1, idle)
	assert.Equal(t, 0, busy)
}

func TestPickIdleRequiresAllCapabilities(t *testing.T) {
	p := New()
	p.Add(1, nil, []string{"self-hosted", "x64"})
	p.Add(2, nil, []string{"self-hosted", "arm64", "gpu"})

	id, ok := p.PickIdle([]string{"gpu"})
	require.True(t, ok)
	assert.Equal(t, 2, id)

	_, ok = p.PickIdle([]string{"inference"})
	assert.False(t, ok)
}

func TestPickIdleIgnoresBusyRunners(t *testing.T) {
	p := New()
	p.Add(1, nil, []string{"self-hosted"})
	p.MarkBusy(1)

	_, ok := p.PickIdle(nil)
	assert.False(t, ok)
}

func TestRemoveDropsFromAllIndexes(t *testing.T) {
	p := New()
	p.Add(1, nil, []string{"self-hosted"})
	p.Remove(1)

	total, idle, busy := p.Counts()
	assert.Equal(t, 0, total)
	assert.Equal(t, 0, idle)
	assert.Equal(t, 0, busy)
	assert.Nil(t, p.Get(1))
}

func TestPickIdleEmptyRequirementMatchesAny(t *testing.T) {
	p := New()
	p.Add(5, nil, nil)
	id, ok := p.PickIdle(nil)
	require.True(t, ok)
	assert.Equal(t, 5, id)
}

func TestPickIdlePrefersOldestID(t *testing.T) {
	p := New()
	p.Add(7, nil, nil)
	p.Add(2, nil, nil)
	p.Add(9, nil, nil)

	id, ok := p.PickIdle(nil)
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestIdleIDsAreSorted(t *testing.T) {
	p := New()
	p.Add(7, nil, nil)
	p.Add(2, nil, nil)
	p.Add(9, nil, nil)

	assert.Equal(t, []int{2, 7, 9}, p.IdleIDs())
}
