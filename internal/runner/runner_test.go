package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/installer"
	"github.com/tzervas/embeddenator/internal/platform"
)

type stubClient struct {
	regToken     string
	removeToken  string
	regErr       error
	removeErr    error
}

func (s *stubClient) Name() string { return "stub" }
func (s *stubClient) ObtainRegistrationToken(ctx context.Context) (string, time.Time, error) {
	return s.regToken, time.Now().Add(time.Hour), s.regErr
}
func (s *stubClient) ObtainRemovalToken(ctx context.Context) (string, error) {
	return s.removeToken, s.removeErr
}
func (s *stubClient) ListRunners(ctx context.Context) ([]platform.RunnerStatus, error) { return nil, nil }
func (s *stubClient) CountPendingWork(ctx context.Context) (int, error)                { return 0, nil }
func (s *stubClient) DefaultLabels() []string                                          { return []string{"self-hosted"} }

func writeFakeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newTestRunner(t *testing.T, client platform.Client) (*Runner, Spec) {
	t.Helper()
	dir := t.TempDir()
	spec := Spec{
		ID:         1,
		NamePrefix: "test",
		Arch:       "x64",
		Labels:     []string{"self-hosted", "x64"},
		WorkDir:    "_work",
		InstallDir: dir,
		Repository: "acme/widgets",
	}
	inst := installer.New(zap.NewNop(), "latest", "2.317.0", 2*time.Second)
	return New(spec, client, inst, zap.NewNop()), spec
}

func TestRegisterFailsWithoutConfigScript(t *testing.T) {
	r, _ := newTestRunner(t, &stubClient{regToken: "tok"})
	err := r.Register(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, r.State())
}

func TestRegisterRunsConfigScriptAndRedactsToken(t *testing.T) {
	client := &stubClient{regToken: "super-secret"}
	r, spec := newTestRunner(t, client)
	writeFakeScript(t, spec.InstallDir, "config.sh", "exit 0")

	err := r.Register(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, r.State())
}

func TestRegisterPropagatesTokenError(t *testing.T) {
	client := &stubClient{regErr: assertErr("boom")}
	r, _ := newTestRunner(t, client)
	err := r.Register(context.Background())
	require.Error(t, err)
}

func TestStartFailsWithoutRunScript(t *testing.T) {
	r, _ := newTestRunner(t, &stubClient{})
	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, r.State())
}

func TestStartAndStopLifecycle(t *testing.T) {
	r, spec := newTestRunner(t, &stubClient{})
	writeFakeScript(t, spec.InstallDir, "run.sh", "sleep 5")

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, StateRunning, r.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

func TestStartAppliesResourceLimitsWithoutFailingOnRestrictedHost(t *testing.T) {
	_, spec := newTestRunner(t, &stubClient{})
	spec.AffinityIDs = []int{0}
	spec.MemoryLimitBytes = 64 * 1024 * 1024
	inst := installer.New(zap.NewNop(), "latest", "2.317.0", 2*time.Second)
	r := New(spec, &stubClient{}, inst, zap.NewNop())
	writeFakeScript(t, spec.InstallDir, "run.sh", "sleep 5")

	// setCPUAffinity/setMemoryLimit may fail under test sandboxing (no
	// privilege to bind cpusets or write cgroupfs); Start must still
	// succeed and only log a warning.
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, StateRunning, r.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

func TestDeregisterSkipsWhenConfigScriptMissing(t *testing.T) {
	r, _ := newTestRunner(t, &stubClient{})
	err := r.Deregister(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDeregistered, r.State())
}

func TestCleanRemovesInstallDir(t *testing.T) {
	r, spec := newTestRunner(t, &stubClient{})
	require.NoError(t, r.Clean())
	_, err := os.Stat(spec.InstallDir)
	assert.True(t, os.IsNotExist(err))
}

func TestNameFormat(t *testing.T) {
	spec := Spec{NamePrefix: "pool", Arch: "arm64", ID: 3}
	assert.Equal(t, "pool-arm64-3", spec.Name())
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
