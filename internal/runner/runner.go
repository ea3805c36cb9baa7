// Package runner implements the Runner (C7): the lifecycle state machine
// for a single vendor runner process — install, register, start, drain,
// deregister, clean.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/tzervas/embeddenator/internal/installer"
	"github.com/tzervas/embeddenator/internal/platform"
	"github.com/tzervas/embeddenator/internal/taxonomy"
)

// State is one point in the runner lifecycle (§3).
type State string

const (
	StateUninstalled State = "uninstalled"
	StateInstalled    State = "installed"
	StateRegistered   State = "registered"
	StateRunning      State = "running"
	StateDraining     State = "draining"
	StateDeregistered State = "deregistered"
	StateCleaned      State = "cleaned"
	StateFailed       State = "failed"
)

// drainTimeout is how long Stop waits for SIGTERM to take effect before
// escalating to SIGKILL (§4.7).
const drainTimeout = 30 * time.Second

// Spec is the immutable identity of one runner within a pool.
type Spec struct {
	ID          int
	NamePrefix  string
	Arch        string
	Labels      []string
	WorkDir     string
	InstallDir  string
	Replace     bool
	Ephemeral   bool
	DisableAuto bool
	ExtraArgs   []string
	Repository  string

	// AffinityIDs, when non-empty, pins the runner process to these
	// logical CPUs (§4.6). MemoryLimitBytes, when non-zero, caps the
	// process's cgroup memory (§3 resource_limits).
	AffinityIDs      []int
	MemoryLimitBytes uint64
}

// Name returns the runner's registered name, "<prefix>-<arch>-<id>".
func (s Spec) Name() string {
	return fmt.Sprintf("%s-%s-%d", s.NamePrefix, s.Arch, s.ID)
}

// Runner manages one vendor runner process end to end.
type Runner struct {
	spec      Spec
	log       *zap.Logger
	installer *installer.Installer
	client    platform.Client

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	started time.Time
	lastErr error
}

// New constructs a Runner bound to one platform client and installer.
func New(spec Spec, client platform.Client, inst *installer.Installer, log *zap.Logger) *Runner {
	return &Runner{
		spec:      spec,
		log:       log.Named("runner").With(zap.String("name", spec.Name())),
		installer: inst,
		client:    client,
		state:     StateUninstalled,
	}
}

// Name returns the runner's registered name.
func (r *Runner) Name() string {
	return r.spec.Name()
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastError returns the most recent fatal error recorded against this
// runner, or nil.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Runner) fail(err error) error {
	r.mu.Lock()
	r.state = StateFailed
	r.lastErr = err
	r.mu.Unlock()
	return err
}

// Install downloads and unpacks the vendor archive for this runner.
func (r *Runner) Install(ctx context.Context) error {
	if err := r.installer.Install(ctx, r.spec.Arch, r.spec.InstallDir); err != nil {
		return r.fail(err)
	}
	r.setState(StateInstalled)
	return nil
}

// Register obtains a registration token from the platform and runs the
// vendor config script. Install must have already completed.
func (r *Runner) Register(ctx context.Context) error {
	token, _, err := r.client.ObtainRegistrationToken(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("obtain registration token: %w", err))
	}

	configScript := filepath.Join(r.spec.InstallDir, "config.sh")
	if _, err := os.Stat(configScript); err != nil {
		return r.fail(taxonomy.New(taxonomy.Fatal, "runner.register", fmt.Errorf("config.sh not found at %s", configScript)))
	}

	labels := append([]string{}, r.spec.Labels...)
	args := []string{
		"--url", fmt.Sprintf("https://github.com/%s", r.spec.Repository),
		"--token", token,
		"--name", r.spec.Name(),
		"--labels", strings.Join(labels, ","),
		"--work", r.spec.WorkDir,
		"--unattended",
	}
	if r.spec.Replace {
		args = append(args, "--replace")
	}
	if r.spec.Ephemeral {
		args = append(args, "--ephemeral")
	}
	if r.spec.DisableAuto {
		args = append(args, "--disableupdate")
	}
	args = append(args, r.spec.ExtraArgs...)

	r.log.Debug("running config.sh", zap.Strings("args_redacted", redactToken(args)))

	cmd := exec.CommandContext(ctx, configScript, args...)
	cmd.Dir = r.spec.InstallDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return r.fail(taxonomy.New(taxonomy.Permanent, "runner.register", fmt.Errorf("config.sh failed: %w: %s", err, truncate(out))))
	}

	r.log.Info("runner registered")
	r.setState(StateRegistered)
	return nil
}

// Start launches run.sh as a child process, binding it to the spec's CPU
// affinity set and memory ceiling when provided (§4.6, §3 resource_limits).
func (r *Runner) Start(ctx context.Context) error {
	runScript := filepath.Join(r.spec.InstallDir, "run.sh")
	if _, err := os.Stat(runScript); err != nil {
		return r.fail(taxonomy.New(taxonomy.Fatal, "runner.start", fmt.Errorf("run.sh not found at %s", runScript)))
	}

	cmd := exec.Command(runScript)
	cmd.Dir = r.spec.InstallDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.fail(taxonomy.New(taxonomy.Fatal, "runner.start", err))
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return r.fail(taxonomy.New(taxonomy.ChildCrashed, "runner.start", err))
	}

	r.mu.Lock()
	r.cmd = cmd
	r.started = time.Now()
	r.mu.Unlock()

	pid := cmd.Process.Pid

	if len(r.spec.AffinityIDs) > 0 {
		if err := setCPUAffinity(pid, r.spec.AffinityIDs); err != nil {
			r.log.Warn("failed to bind cpu affinity", zap.Ints("cpus", r.spec.AffinityIDs), zap.Error(err))
		} else {
			r.log.Debug("cpu affinity bound", zap.Ints("cpus", r.spec.AffinityIDs))
		}
	}

	if r.spec.MemoryLimitBytes > 0 {
		if err := setMemoryLimit(r.spec.Name(), pid, r.spec.MemoryLimitBytes); err != nil {
			r.log.Warn("failed to apply memory limit", zap.Uint64("limit_bytes", r.spec.MemoryLimitBytes), zap.Error(err))
		} else {
			r.log.Debug("memory limit applied", zap.Uint64("limit_bytes", r.spec.MemoryLimitBytes))
		}
	}

	r.log.Info("runner started", zap.Int("pid", pid))
	go r.pumpOutput(stdout)
	r.setState(StateRunning)
	return nil
}

// setCPUAffinity pins pid to the given logical CPU ids via sched_setaffinity.
func setCPUAffinity(pid int, cpus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}
	return unix.SchedSetaffinity(pid, &set)
}

// cgroupRoot is the parent slice under which each runner gets its own
// cgroup v2 leaf for a memory ceiling.
const cgroupRoot = "/sys/fs/cgroup/runnerctl.slice"

// setMemoryLimit creates a cgroup v2 leaf for name, sets its memory.max to
// limitBytes, and moves pid into it. The host must have cgroup v2 mounted
// with the memory controller delegated; failure is non-fatal to Start and
// is left to the caller to log.
func setMemoryLimit(name string, pid int, limitBytes uint64) error {
	dir := filepath.Join(cgroupRoot, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "memory.max"), []byte(strconv.FormatUint(limitBytes, 10)), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0o644)
}

func (r *Runner) pumpOutput(rc io.ReadCloser) {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.log.Debug("runner output", zap.String("line", scanner.Text()))
	}
}

// Running reports whether the child process is still alive.
func (r *Runner) Running() bool {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.ProcessState == nil
}

// Stop sends SIGTERM to the runner process group and waits up to
// drainTimeout before escalating to SIGKILL (§4.7 drain semantics). On
// success the runner returns to Registered: it is still registered with
// the platform, just no longer running, until Deregister is called.
func (r *Runner) Stop(ctx context.Context) error {
	r.setState(StateDraining)

	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		r.setState(StateRegistered)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-done:
		r.log.Info("runner stopped gracefully")
		r.setState(StateRegistered)
		return nil
	case <-time.After(drainTimeout):
		r.log.Warn("runner did not stop gracefully, sending SIGKILL")
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-done
		r.setState(StateRegistered)
		return nil
	case <-ctx.Done():
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-done
		r.setState(StateRegistered)
		return ctx.Err()
	}
}

// Deregister removes the runner registration from the platform.
func (r *Runner) Deregister(ctx context.Context) error {
	configScript := filepath.Join(r.spec.InstallDir, "config.sh")
	if _, err := os.Stat(configScript); err != nil {
		r.log.Warn("config.sh missing, skipping deregistration")
		r.setState(StateDeregistered)
		return nil
	}

	token, err := r.client.ObtainRemovalToken(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("obtain removal token: %w", err))
	}

	cmd := exec.CommandContext(ctx, configScript, "remove", "--token", token)
	cmd.Dir = r.spec.InstallDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return r.fail(taxonomy.New(taxonomy.Permanent, "runner.deregister", fmt.Errorf("config.sh remove failed: %w: %s", err, truncate(out))))
	}

	r.log.Info("runner deregistered")
	r.setState(StateDeregistered)
	return nil
}

// Clean removes the runner's install directory and its memory cgroup leaf,
// if one was created.
func (r *Runner) Clean() error {
	if r.spec.MemoryLimitBytes > 0 {
		_ = os.Remove(filepath.Join(cgroupRoot, r.spec.Name()))
	}
	if err := os.RemoveAll(r.spec.InstallDir); err != nil {
		return r.fail(taxonomy.New(taxonomy.Fatal, "runner.clean", err))
	}
	r.setState(StateCleaned)
	return nil
}

func redactToken(args []string) []string {
	out := append([]string{}, args...)
	for i, a := range out {
		if a == "--token" && i+1 < len(out) {
			out[i+1] = "***"
		}
	}
	return out
}

func truncate(b []byte) string {
	const max = 2048
	if len(b) > max {
		return string(b[:max]) + "...(truncated)"
	}
	return string(b)
}
