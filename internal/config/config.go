// Package config loads and validates orchestrator configuration from the
// process environment, merged with an optional dotenv file.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode selects between autoscaling and a fixed-size pool.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Platform identifies the remote CI platform implementation to use.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformGitLab Platform = "gitlab"
	PlatformGitea  Platform = "gitea"
)

// Config holds every recognized orchestrator option. Fields are filled by
// Load from the environment variables it reads, merged with process
// environment taking precedence over a `.env` file.
type Config struct {
	// Platform
	Platform   Platform
	APIURL     string
	Repository string // owner/repo for GitHub/Gitea, numeric project ID for GitLab
	Token      string

	// Runner identity
	NamePrefix string
	Labels     []string
	Group      string
	WorkDir    string

	// Lifecycle
	Mode         Mode
	IdleTimeout  time.Duration
	CheckInterval time.Duration
	MaxLifetime  time.Duration

	// Pool sizing
	RunnerCount         int
	MinRunners          int
	MaxRunners          int
	DeploymentStrategy  string
	DeploymentStagger   time.Duration

	// Resources
	CPUCores          int
	MemoryGB          int
	DiskThresholdGB   int
	EnableResourceOpt bool
	UseCPUAffinity    bool
	StrictValidation  bool

	// Architecture / emulation
	HostArch             string
	TargetArchitectures  []string
	EnableEmulation      bool
	EmulationAutoInstall bool
	EmulationMethod      string

	// GPU
	EnableGPU     bool
	InferenceOnly bool

	// Installer
	InstallRoot     string
	Version         string
	FallbackVersion string

	// Logging / telemetry
	LogLevel     string
	LogFile      string
	EnableMetrics bool
	MetricsAddr  string

	// Timeouts
	APITimeout             time.Duration
	VersionCheckTimeout    time.Duration

	// Advanced runner flags
	Ephemeral          bool
	ReplaceExisting    bool
	DisableAutoUpdate  bool
	AdditionalFlags    []string

	// Cleanup
	CleanOnDeregister bool
}

// Load reads configuration from the environment plus an optional dotenv
// file at dotenvPath ("" means ".env" in the working directory). Values
// already present in the process environment are never overwritten by the
// file — this matches the precedence the orchestrator has always had.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	if err := loadDotenvWithoutOverride(dotenvPath); err != nil {
		return nil, fmt.Errorf("config: load dotenv: %w", err)
	}

	c := &Config{
		Platform:   Platform(getenv("RUNNER_PLATFORM", "github")),
		APIURL:     getenv("GITHUB_API_URL", "https://api.github.com"),
		Repository: getenv("GITHUB_REPOSITORY", ""),
		Token:      getenv("GITHUB_TOKEN", ""),

		NamePrefix: getenv("RUNNER_NAME_PREFIX", "embeddenator-runner"),
		Labels:     splitCSV(getenv("RUNNER_LABELS", "self-hosted,linux")),
		Group:      getenv("RUNNER_GROUP", "Default"),
		WorkDir:    getenv("RUNNER_WORK_DIR", "_work"),

		Mode:          Mode(getenv("RUNNER_MODE", "auto")),
		IdleTimeout:   getenvDuration("RUNNER_IDLE_TIMEOUT", 300*time.Second),
		CheckInterval: getenvDuration("RUNNER_CHECK_INTERVAL", 30*time.Second),
		MaxLifetime:   getenvDuration("RUNNER_MAX_LIFETIME", 0),

		RunnerCount:        getenvInt("RUNNER_COUNT", 1),
		MinRunners:         getenvInt("RUNNER_MIN_COUNT", 1),
		MaxRunners:         getenvInt("RUNNER_MAX_COUNT", 5),
		DeploymentStrategy: getenv("RUNNER_DEPLOYMENT_STRATEGY", "sequential"),
		DeploymentStagger:  getenvDuration("RUNNER_DEPLOYMENT_STAGGER", 5*time.Second),

		CPUCores:          getenvInt("RUNNER_CPU_CORES", 0),
		MemoryGB:          getenvInt("RUNNER_MEMORY_GB", 0),
		DiskThresholdGB:   getenvInt("RUNNER_DISK_THRESHOLD_GB", 20),
		EnableResourceOpt: getenvBool("RUNNER_ENABLE_RESOURCE_OPTIMIZATION", true),
		UseCPUAffinity:    getenvBool("RUNNER_USE_CPU_AFFINITY", false),
		StrictValidation:  getenvBool("RUNNER_STRICT_RESOURCE_VALIDATION", false),

		TargetArchitectures:  parseTargetArchitectures(),
		EnableEmulation:      getenvBool("RUNNER_ENABLE_EMULATION", true),
		EmulationAutoInstall: getenvBool("RUNNER_EMULATION_AUTO_INSTALL", false),
		EmulationMethod:      getenv("RUNNER_EMULATION_METHOD", "auto"),

		EnableGPU:     getenvBool("RUNNER_ENABLE_GPU", false),
		InferenceOnly: getenvBool("RUNNER_GPU_INFERENCE_ONLY", false),

		InstallRoot:     getenv("RUNNER_INSTALL_DIR", "./actions-runner"),
		Version:         getenv("RUNNER_VERSION", "latest"),
		FallbackVersion: getenv("RUNNER_FALLBACK_VERSION", "2.319.0"),

		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFile:       getenv("LOG_FILE", "./runner_manager.log"),
		EnableMetrics: getenvBool("ENABLE_METRICS", false),
		MetricsAddr:   getenv("METRICS_ADDR", ":9090"),

		APITimeout:          getenvDuration("GITHUB_API_TIMEOUT", 30*time.Second),
		VersionCheckTimeout: getenvDuration("GITHUB_VERSION_CHECK_TIMEOUT", 10*time.Second),

		Ephemeral:         getenvBool("RUNNER_EPHEMERAL", false),
		ReplaceExisting:   getenvBool("RUNNER_REPLACE_EXISTING", false),
		DisableAutoUpdate: getenvBool("RUNNER_DISABLE_AUTO_UPDATE", false),
		AdditionalFlags:   splitFields(getenv("RUNNER_ADDITIONAL_FLAGS", "")),

		CleanOnDeregister: getenvBool("RUNNER_CLEAN_ON_DEREGISTER", true),
	}

	c.HostArch = getenv("RUNNER_ARCH", "")
	if c.HostArch == "" {
		c.HostArch = DetectArchitecture(runtime.GOARCH)
	}
	if len(c.TargetArchitectures) == 0 {
		c.TargetArchitectures = []string{c.HostArch}
	}

	switch c.Platform {
	case PlatformGitLab:
		if c.Repository == "" {
			c.Repository = getenv("GITLAB_PROJECT_ID", "")
		}
		if v := getenv("GITLAB_API_URL", ""); v != "" {
			c.APIURL = v
		} else if getenv("GITHUB_API_URL", "") == "https://api.github.com" {
			c.APIURL = "https://gitlab.com"
		}
		if v := getenv("GITLAB_TOKEN", ""); v != "" {
			c.Token = v
		}
	case PlatformGitea:
		if v := getenv("GITEA_API_URL", ""); v != "" {
			c.APIURL = v
		}
		if v := getenv("GITEA_TOKEN", ""); v != "" {
			c.Token = v
		}
	}

	return c, nil
}

// DetectArchitecture maps a Go GOARCH (or uname -m style string) to one of
// the orchestrator's three canonical architecture tags.
func DetectArchitecture(machine string) string {
	switch strings.ToLower(machine) {
	case "amd64", "x86_64", "x64":
		return "x64"
	case "arm64", "aarch64":
		return "arm64"
	case "riscv64":
		return "riscv64"
	default:
		return "x64"
	}
}

func parseTargetArchitectures() []string {
	raw := strings.TrimSpace(getenv("RUNNER_TARGET_ARCHITECTURES", ""))
	if raw == "" {
		return nil
	}
	return splitCSV(raw)
}

// Validate returns every configuration problem found, rather than the
// first one encountered.
func (c *Config) Validate() []error {
	var errs []error

	if c.Repository == "" {
		errs = append(errs, fmt.Errorf("repository/project identifier is required"))
	}
	if c.Token == "" {
		errs = append(errs, fmt.Errorf("platform auth token is required"))
	}
	if c.Mode != ModeAuto && c.Mode != ModeManual {
		errs = append(errs, fmt.Errorf("invalid mode %q (must be %q or %q)", c.Mode, ModeAuto, ModeManual))
	}
	if c.Platform != PlatformGitHub && c.Platform != PlatformGitLab && c.Platform != PlatformGitea {
		errs = append(errs, fmt.Errorf("invalid platform %q (must be github, gitlab, or gitea)", c.Platform))
	}
	if c.DeploymentStrategy != "sequential" && c.DeploymentStrategy != "parallel" {
		errs = append(errs, fmt.Errorf("invalid deployment strategy %q", c.DeploymentStrategy))
	}
	if c.RunnerCount < 1 {
		errs = append(errs, fmt.Errorf("runner count must be >= 1, got %d", c.RunnerCount))
	}
	if c.Mode == ModeAuto && c.MinRunners > c.MaxRunners {
		errs = append(errs, fmt.Errorf("min_runners (%d) exceeds max_runners (%d)", c.MinRunners, c.MaxRunners))
	}
	for _, arch := range c.TargetArchitectures {
		switch arch {
		case "x64", "arm64", "riscv64":
		default:
			errs = append(errs, fmt.Errorf("unsupported target architecture %q", arch))
		}
	}

	return errs
}

// loadDotenvWithoutOverride merges path into the process environment,
// never overwriting a variable the environment already defines.
func loadDotenvWithoutOverride(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for k, v := range values {
		if _, present := os.LookupEnv(k); !present {
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getenvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func splitFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
