package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearRunnerEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if key == "GITHUB_REPOSITORY" || key == "GITHUB_TOKEN" || key == "RUNNER_MODE" ||
					key == "RUNNER_TARGET_ARCHITECTURES" || key == "RUNNER_PLATFORM" {
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearRunnerEnv(t)
	t.Setenv("GITHUB_REPOSITORY", "octo/widgets")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := Load("/nonexistent/.env")
	require.NoError(t, err)

	assert.Equal(t, PlatformGitHub, cfg.Platform)
	assert.Equal(t, ModeAuto, cfg.Mode)
	assert.Equal(t, 1, cfg.RunnerCount)
	assert.Contains(t, cfg.Labels, "self-hosted")
	assert.Empty(t, cfg.Validate())
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	cfg := &Config{
		Mode:               "bogus",
		Platform:           "bogus",
		DeploymentStrategy: "bogus",
		RunnerCount:        0,
	}
	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 5)
}

func TestDetectArchitecture(t *testing.T) {
	assert.Equal(t, "x64", DetectArchitecture("amd64"))
	assert.Equal(t, "x64", DetectArchitecture("x86_64"))
	assert.Equal(t, "arm64", DetectArchitecture("aarch64"))
	assert.Equal(t, "riscv64", DetectArchitecture("riscv64"))
	assert.Equal(t, "x64", DetectArchitecture("sparc64"))
}

func TestEnvironmentTakesPrecedenceOverDotenv(t *testing.T) {
	dir := t.TempDir()
	envPath := dir + "/.env"
	require.NoError(t, os.WriteFile(envPath, []byte("GITHUB_REPOSITORY=fromfile/repo\nGITHUB_TOKEN=filetoken\n"), 0o644))

	clearRunnerEnv(t)
	t.Setenv("GITHUB_REPOSITORY", "fromenv/repo")

	cfg, err := Load(envPath)
	require.NoError(t, err)

	assert.Equal(t, "fromenv/repo", cfg.Repository)
	assert.Equal(t, "filetoken", cfg.Token)
}

func TestMinExceedsMaxIsInvalidInAutoMode(t *testing.T) {
	cfg := &Config{
		Repository: "a/b", Token: "t", Mode: ModeAuto, Platform: PlatformGitHub,
		DeploymentStrategy: "sequential", RunnerCount: 1,
		MinRunners: 5, MaxRunners: 2,
	}
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
}
