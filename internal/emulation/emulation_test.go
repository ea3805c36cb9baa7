package emulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/taxonomy"
)

type stubRunner struct {
	calls   []string
	results map[string]string
	errs    map[string]error
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	key := name
	for _, a := range args {
		key += " " + a
	}
	s.calls = append(s.calls, key)
	if err, ok := s.errs[name]; ok {
		return "", err
	}
	return s.results[name], nil
}

func TestNeedsEmulationEquivalences(t *testing.T) {
	assert.False(t, needsEmulation("x64", "amd64"))
	assert.False(t, needsEmulation("arm64", "aarch64"))
	assert.True(t, needsEmulation("arm64", "x64"))
}

func TestEnsureEmulationNoOpWhenHostMatches(t *testing.T) {
	p := New(zap.NewNop(), false)
	err := p.EnsureEmulation(context.Background(), "x64", "amd64")
	require.NoError(t, err)
}

func TestEnsureEmulationUnsupportedArch(t *testing.T) {
	p := New(zap.NewNop(), false)
	err := p.EnsureEmulation(context.Background(), "sparc64", "x64")
	require.Error(t, err)
	assert.Equal(t, taxonomy.EmulationUnavailable, taxonomy.KindOf(err))
}

func TestBinfmtAlreadyEnabledShortCircuits(t *testing.T) {
	stub := &stubRunner{results: map[string]string{"update-binfmts": "qemu-aarch64 (enabled)"}}
	p := New(zap.NewNop(), false)
	p.run = stub

	err := p.EnsureEmulation(context.Background(), "arm64", "x64")
	require.NoError(t, err)
}
