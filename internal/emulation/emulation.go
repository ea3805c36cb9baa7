// Package emulation implements the cross-architecture emulation
// provisioner (C3): ensures binfmt_misc binary-format translation is
// registered for a target architecture before a non-native runner starts.
package emulation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/taxonomy"
)

// archInfo maps a canonical arch tag to its QEMU binfmt name and the
// container platform tag used for verification.
type archInfo struct {
	qemuArch    string
	platformTag string
}

var supportedArchitectures = map[string]archInfo{
	"x64":     {qemuArch: "x86_64", platformTag: "linux/amd64"},
	"arm64":   {qemuArch: "aarch64", platformTag: "linux/arm64"},
	"riscv64": {qemuArch: "riscv64", platformTag: "linux/riscv64"},
}

// equivalentArch families that never require emulation against each other.
var archAliases = map[string]string{
	"amd64": "x64", "x86_64": "x64", "x64": "x64",
	"arm64": "arm64", "aarch64": "arm64",
	"riscv64": "riscv64",
}

// runner abstracts process execution so tests can stub it out.
type runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), err
}

// Provisioner ensures binary-format translation is available for a target
// architecture.
type Provisioner struct {
	log        *zap.Logger
	run        runner
	autoInstall bool
}

// New constructs a Provisioner. autoInstall permits falling back to
// installing a QEMU user-static package via the host package manager.
func New(log *zap.Logger, autoInstall bool) *Provisioner {
	return &Provisioner{log: log, run: execRunner{}, autoInstall: autoInstall}
}

// normalize maps an architecture string (Go GOARCH or uname -m form) to
// one of the three canonical tags.
func normalize(arch string) string {
	if canon, ok := archAliases[strings.ToLower(arch)]; ok {
		return canon
	}
	return strings.ToLower(arch)
}

// needsEmulation reports whether targetArch differs from hostArch once
// both are normalized to their canonical family (§4.3).
func needsEmulation(targetArch, hostArch string) bool {
	return normalize(targetArch) != normalize(hostArch)
}

// EnsureEmulation is a no-op when targetArch and hostArch are equivalent.
// Otherwise it walks the binfmt check → container provisioning → native
// package fallback → verification sequence described in §4.3, failing
// with EmulationUnavailable if no step succeeds.
func (p *Provisioner) EnsureEmulation(ctx context.Context, targetArch, hostArch string) error {
	if !needsEmulation(targetArch, hostArch) {
		return nil
	}

	info, ok := supportedArchitectures[normalize(targetArch)]
	if !ok {
		return taxonomy.New(taxonomy.EmulationUnavailable, "emulation.ensure", fmt.Errorf("unsupported architecture %q", targetArch))
	}

	if p.binfmtEnabled(info.qemuArch) {
		p.log.Info("emulation already enabled", zap.String("arch", targetArch))
		return nil
	}

	if runtime := p.detectContainerRuntime(ctx); runtime != "" {
		if err := p.provisionViaContainer(ctx, runtime); err == nil {
			return p.verify(ctx, runtime, targetArch, info)
		}
		p.log.Warn("container-based binfmt provisioning failed, trying native fallback", zap.String("runtime", runtime))
	}

	if p.autoInstall {
		if err := p.provisionNative(ctx, info.qemuArch); err != nil {
			return taxonomy.New(taxonomy.EmulationUnavailable, "emulation.ensure", err)
		}
		runtime := p.detectContainerRuntime(ctx)
		return p.verify(ctx, runtime, targetArch, info)
	}

	return taxonomy.New(taxonomy.EmulationUnavailable, "emulation.ensure",
		fmt.Errorf("no binfmt handler for %s and auto-install disabled", info.qemuArch))
}

// binfmtEnabled checks the kernel's binary-format translation registry for
// an enabled entry matching qemuArch, first via update-binfmts, then via
// the /proc/sys/fs/binfmt_misc file directly.
func (p *Provisioner) binfmtEnabled(qemuArch string) bool {
	if out, err := p.run.Run(context.Background(), "update-binfmts", "--display", "qemu-"+qemuArch); err == nil {
		if strings.Contains(out, "enabled") {
			return true
		}
	}
	data, err := os.ReadFile("/proc/sys/fs/binfmt_misc/qemu-" + qemuArch)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(string(data)), "enabled")
}

func (p *Provisioner) detectContainerRuntime(ctx context.Context) string {
	for _, runtime := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(runtime); err == nil {
			return runtime
		}
	}
	return ""
}

func (p *Provisioner) provisionViaContainer(ctx context.Context, runtime string) error {
	_, err := p.run.Run(ctx, runtime, "run", "--rm", "--privileged",
		"multiarch/qemu-user-static", "--reset", "-p", "yes")
	return err
}

func (p *Provisioner) provisionNative(ctx context.Context, qemuArch string) error {
	if _, err := p.run.Run(ctx, "update-binfmts", "--enable", "qemu-"+qemuArch); err == nil {
		return nil
	}
	if pm := detectPackageManager(); pm != "" {
		if _, err := p.run.Run(ctx, pm, "install", "-y", "qemu-user-static"); err != nil {
			return fmt.Errorf("install qemu-user-static via %s: %w", pm, err)
		}
		_, err := p.run.Run(ctx, "update-binfmts", "--enable", "qemu-"+qemuArch)
		return err
	}
	return fmt.Errorf("no package manager available to install qemu-user-static")
}

func detectPackageManager() string {
	for _, pm := range []string{"apt-get", "dnf", "yum", "apk"} {
		if _, err := exec.LookPath(pm); err == nil {
			return pm
		}
	}
	return ""
}

// verify executes uname -m inside a minimal container for targetArch's
// platform tag; if no container runtime is available, it trusts the
// binfmt check already performed.
func (p *Provisioner) verify(ctx context.Context, runtime, targetArch string, info archInfo) error {
	if runtime == "" {
		if p.binfmtEnabled(info.qemuArch) {
			return nil
		}
		return taxonomy.New(taxonomy.EmulationUnavailable, "emulation.verify", fmt.Errorf("no runtime to verify %s and binfmt not enabled", targetArch))
	}

	out, err := p.run.Run(ctx, runtime, "run", "--rm", "--platform", info.platformTag, "alpine:latest", "uname", "-m")
	if err != nil {
		return taxonomy.New(taxonomy.EmulationUnavailable, "emulation.verify", fmt.Errorf("verification run failed: %w", err))
	}
	reported := strings.TrimSpace(out)
	if normalize(reported) != normalize(targetArch) {
		return taxonomy.New(taxonomy.EmulationUnavailable, "emulation.verify",
			fmt.Errorf("expected arch %s, container reported %s", targetArch, reported))
	}
	return nil
}
