// Package manager implements the Manager (C10): binds the Platform
// Client, Resource Planner, Installer, Emulation Provisioner, hardware
// inspectors, Pool and Scaling Controller into one event-driven process.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tzervas/embeddenator/internal/config"
	"github.com/tzervas/embeddenator/internal/emulation"
	"github.com/tzervas/embeddenator/internal/hardware"
	"github.com/tzervas/embeddenator/internal/installer"
	"github.com/tzervas/embeddenator/internal/platform"
	"github.com/tzervas/embeddenator/internal/pool"
	"github.com/tzervas/embeddenator/internal/resources"
	"github.com/tzervas/embeddenator/internal/runner"
	"github.com/tzervas/embeddenator/internal/scaling"
	"github.com/tzervas/embeddenator/internal/taxonomy"
	"github.com/tzervas/embeddenator/internal/telemetry"
)

// event is the Manager's single serialized input stream (§5). childExited
// events are drained ahead of scale events on every select, so state
// transitions observe reality before decisions are applied.
type event struct {
	scaleUpBy   int
	scaleDownBy int
	runnerID    int
	childErr    error
}

// diskCheckFn reports free bytes at path; overridable in tests.
type diskCheckFn func(path string) (uint64, error)

// Manager owns every RunnerRecord and is the sole mutator of lifecycle
// state; the Scaling Controller only proposes via events.
type Manager struct {
	cfg    *config.Config
	log    *zap.Logger
	client platform.Client

	installer  *installer.Installer
	planner    *resources.Planner
	controller *scaling.Controller
	pool       *pool.Pool

	cpu         hardware.CPUInventory
	totalMemory uint64
	gpus        []hardware.GPUDescriptor

	runners   map[int]*runner.Runner
	runnersMu sync.Mutex
	nextID    int

	events       chan event
	childEvents  chan event
	idleExceeded chan struct{}
	shutdownOnce sync.Once
	stopTicker   chan struct{}

	diskFree diskCheckFn
	metrics  *telemetry.Metrics
	registry *prometheus.Registry
}

// New constructs a Manager. Callers must call Bootstrap before Run.
func New(cfg *config.Config, client platform.Client, log *zap.Logger) *Manager {
	registry := prometheus.NewRegistry()
	return &Manager{
		cfg:          cfg,
		log:          log.Named("manager"),
		client:       client,
		installer:    installer.New(log, cfg.Version, cfg.FallbackVersion, cfg.VersionCheckTimeout),
		planner:      resources.New(cfg.StrictValidation),
		pool:         pool.New(),
		runners:      map[int]*runner.Runner{},
		nextID:       1,
		events:       make(chan event, 32),
		childEvents:  make(chan event, 32),
		idleExceeded: make(chan struct{}, 1),
		stopTicker:   make(chan struct{}),
		diskFree:     freeBytes,
		metrics:      telemetry.New(registry),
		registry:     registry,
	}
}

// Registry returns the Manager's private Prometheus registry, for an
// HTTP exporter to scrape.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Bootstrap runs one-time hardware inspection and emulation provisioning
// before the pool is populated.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.cpu = hardware.InspectCPU()
	m.totalMemory = hardware.TotalMemoryBytes()
	if m.cfg.MemoryGB > 0 {
		m.totalMemory = uint64(m.cfg.MemoryGB) * (1 << 30)
	}
	m.log.Info("cpu inventory", zap.String("model", m.cpu.Model), zap.Int("physical_cores", m.cpu.PhysicalCores))

	if m.cfg.EnableGPU {
		m.gpus = hardware.NewGPUInspector(m.log).Inspect(ctx)
		m.log.Info("gpu inventory", zap.Int("count", len(m.gpus)))
	}

	if m.cfg.EnableEmulation {
		prov := emulation.New(m.log, m.cfg.EmulationAutoInstall)
		for _, arch := range m.cfg.TargetArchitectures {
			if arch == m.cfg.HostArch {
				continue
			}
			if err := prov.EnsureEmulation(ctx, arch, m.cfg.HostArch); err != nil {
				return fmt.Errorf("manager: emulation provisioning for %s: %w", arch, err)
			}
		}
	}

	m.controller = scaling.New(scaling.Config{
		Mode:               schedulingMode(m.cfg.Mode),
		MinRunners:         m.cfg.MinRunners,
		MaxRunners:         m.cfg.MaxRunners,
		ScaleUpThreshold:   2,
		ScaleDownThreshold: 0,
		CooldownSeconds:    60,
		IdleTimeout:        m.cfg.IdleTimeout,
	}, m.log)

	return nil
}

func schedulingMode(m config.Mode) scaling.Mode {
	if m == config.ModeManual {
		return scaling.ModeStatic
	}
	return scaling.ModeDynamic
}

// Run starts the scaling goroutine and blocks processing events until ctx
// is canceled, at which point it runs the shutdown sequence.
func (m *Manager) Run(ctx context.Context) error {
	for i := 0; i < m.cfg.MinRunners; i++ {
		if err := m.addRunner(ctx); err != nil {
			m.log.Error("failed to start initial runner", zap.Error(err))
		}
	}

	go m.scaleLoop(ctx)

	for {
		select {
		case ev := <-m.childEvents:
			m.handleChildExited(ctx, ev)
		default:
			select {
			case ev := <-m.childEvents:
				m.handleChildExited(ctx, ev)
			case ev := <-m.events:
				m.handleScaleEvent(ctx, ev)
			case <-m.idleExceeded:
				m.log.Info("idle timeout reached, initiating shutdown")
				m.shutdown(context.Background())
				return nil
			case <-ctx.Done():
				m.shutdown(context.Background())
				return nil
			}
		}
	}
}

func (m *Manager) scaleLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	var idleSince time.Time
	static := schedulingMode(m.cfg.Mode) == scaling.ModeStatic

	for {
		select {
		case <-ticker.C:
			queue, err := m.client.CountPendingWork(ctx)
			if err != nil {
				m.log.Warn("queue depth check failed", zap.Error(err))
				continue
			}

			m.reconcileBusyState(ctx)

			total, idle, busy := m.pool.Counts()
			m.metrics.ObservePool(total, idle, busy)

			if static {
				if queue > 0 {
					idleSince = time.Time{}
				} else if idleSince.IsZero() {
					idleSince = time.Now()
					m.log.Info("no jobs in queue, starting idle timer")
				} else if time.Since(idleSince) >= m.cfg.IdleTimeout {
					m.log.Info("idle timeout reached", zap.Duration("idle_timeout", m.cfg.IdleTimeout))
					select {
					case m.idleExceeded <- struct{}{}:
					default:
					}
					return
				}
			}

			d := m.controller.Evaluate(time.Now(), queue, total, idle, busy)
			if d.ScaleUpBy > 0 {
				m.metrics.ScaleEventsUp.Inc()
				select {
				case m.events <- event{scaleUpBy: d.ScaleUpBy}:
				default:
					m.log.Warn("event channel full, dropping scale-up request")
				}
			}
			if d.ScaleDownBy > 0 {
				m.metrics.ScaleEventsDown.Inc()
				select {
				case m.events <- event{scaleDownBy: d.ScaleDownBy}:
				default:
					m.log.Warn("event channel full, dropping scale-down request")
				}
			}
		case <-m.stopTicker:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconcileBusyState polls the platform's runner inventory once per tick
// and drives the Pool's idle/busy bookkeeping from it, since the platform's
// busy bit — not local job-dispatch tracking — is authoritative (§4.8).
func (m *Manager) reconcileBusyState(ctx context.Context) {
	statuses, err := m.client.ListRunners(ctx)
	if err != nil {
		m.log.Warn("list runners failed, skipping busy reconciliation", zap.Error(err))
		return
	}

	busyByName := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		busyByName[s.Name] = s.Busy
	}

	for _, id := range m.pool.IDs() {
		entry := m.pool.Get(id)
		if entry == nil || entry.Runner == nil {
			continue
		}
		if busyByName[entry.Runner.Name()] {
			m.pool.MarkBusy(id)
		} else {
			m.pool.MarkIdle(id)
		}
	}
}

func (m *Manager) handleScaleEvent(ctx context.Context, ev event) {
	for i := 0; i < ev.scaleUpBy; i++ {
		if err := m.addRunner(ctx); err != nil {
			m.log.Error("scale-up failed", zap.Error(err))
			break
		}
	}
	for i := 0; i < ev.scaleDownBy; i++ {
		id, ok := m.pool.PickIdle(nil)
		if !ok {
			break
		}
		m.removeRunner(ctx, id)
	}
}

func (m *Manager) handleChildExited(ctx context.Context, ev event) {
	m.log.Warn("runner child exited", zap.Int("runner_id", ev.runnerID), zap.Error(ev.childErr))
	m.pool.Remove(ev.runnerID)
	m.runnersMu.Lock()
	delete(m.runners, ev.runnerID)
	m.runnersMu.Unlock()
}

// addRunner selects an architecture and GPU, asks the Resource Planner
// for a slice, and drives a new Runner through install→register→start.
func (m *Manager) addRunner(ctx context.Context) error {
	free, err := m.diskFree(m.cfg.InstallRoot)
	if err == nil && free < uint64(m.cfg.DiskThresholdGB)*1<<30 {
		m.metrics.DiskRefusals.Inc()
		return fmt.Errorf("manager: insufficient disk space on %s (%d bytes free)", m.cfg.InstallRoot, free)
	}

	m.runnersMu.Lock()
	id := m.nextID
	m.nextID++
	m.runnersMu.Unlock()

	arch := m.selectArchitecture(id)
	gpu := m.selectGPU(id)

	plan := m.planner.Plan(m.cpu, m.totalMemory, m.cfg.MaxRunners, len(m.gpus))
	for _, w := range plan.Warnings {
		m.log.Warn("resource plan warning", zap.String("warning", w))
	}
	if !m.planner.Feasible(plan) {
		return taxonomy.New(taxonomy.ResourceInfeasible, "manager.add_runner",
			fmt.Errorf("resource plan infeasible under strict validation"))
	}

	labels := m.buildLabels(arch, gpu)
	spec := runner.Spec{
		ID:          id,
		NamePrefix:  m.cfg.NamePrefix,
		Arch:        arch,
		Labels:      labels,
		WorkDir:     m.cfg.WorkDir,
		InstallDir:  filepath.Join(m.cfg.InstallRoot, fmt.Sprintf("%s-%d", arch, id)),
		Replace:     m.cfg.ReplaceExisting,
		Ephemeral:   m.cfg.Ephemeral,
		DisableAuto: m.cfg.DisableAutoUpdate,
		ExtraArgs:   m.cfg.AdditionalFlags,
		Repository:  m.cfg.Repository,
	}
	if m.cfg.UseCPUAffinity {
		spec.AffinityIDs = plan.Affinity(id, m.cpu.ThreadsPerCore)
	}
	spec.MemoryLimitBytes = plan.PerRunnerMemoryBytes

	r := runner.New(spec, m.client, m.installer, m.log)

	if err := r.Install(ctx); err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := r.Register(ctx); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	m.runnersMu.Lock()
	m.runners[id] = r
	m.runnersMu.Unlock()
	m.pool.Add(id, r, labels)

	go m.superviseChild(id, r)

	m.log.Info("runner added", zap.Int("runner_id", id), zap.String("arch", arch))
	return nil
}

// superviseChild blocks until the runner's child process is no longer
// running and posts ChildExited to the high-priority event stream.
func (m *Manager) superviseChild(id int, r *runner.Runner) {
	for r.Running() {
		time.Sleep(2 * time.Second)
	}
	m.childEvents <- event{runnerID: id, childErr: r.LastError()}
}

func (m *Manager) removeRunner(ctx context.Context, id int) {
	m.runnersMu.Lock()
	r := m.runners[id]
	m.runnersMu.Unlock()
	if r == nil {
		return
	}

	if err := r.Stop(ctx); err != nil {
		m.log.Error("stop failed", zap.Int("runner_id", id), zap.Error(err))
	}
	if err := r.Deregister(ctx); err != nil {
		m.log.Error("deregister failed", zap.Int("runner_id", id), zap.Error(err))
	}
	if err := r.Clean(); err != nil {
		m.log.Error("cleanup failed", zap.Int("runner_id", id), zap.Error(err))
	}

	m.pool.Remove(id)
	m.runnersMu.Lock()
	delete(m.runners, id)
	m.runnersMu.Unlock()
	m.log.Info("runner removed", zap.Int("runner_id", id))
}

// shutdown runs the §5 cancellation sequence: stop the ticker, stop every
// runner, deregister in parallel, then clean up.
func (m *Manager) shutdown(ctx context.Context) {
	m.shutdownOnce.Do(func() {
		correlationID := uuid.New().String()
		log := m.log.With(zap.String("shutdown_id", correlationID))
		log.Info("shutdown starting")

		close(m.stopTicker)

		m.runnersMu.Lock()
		ids := make([]int, 0, len(m.runners))
		runners := make(map[int]*runner.Runner, len(m.runners))
		for id, r := range m.runners {
			ids = append(ids, id)
			runners[id] = r
		}
		m.runnersMu.Unlock()

		for _, id := range ids {
			if err := runners[id].Stop(ctx); err != nil {
				log.Error("stop failed during shutdown", zap.Int("runner_id", id), zap.Error(err))
			}
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id int, r *runner.Runner) {
				defer wg.Done()
				if err := r.Deregister(ctx); err != nil {
					log.Error("deregister failed during shutdown", zap.Int("runner_id", id), zap.Error(err))
				}
			}(id, runners[id])
		}
		wg.Wait()

		for _, id := range ids {
			if err := runners[id].Clean(); err != nil {
				log.Error("cleanup failed during shutdown", zap.Int("runner_id", id), zap.Error(err))
			}
		}

		log.Info("shutdown complete")
	})
}

func (m *Manager) selectArchitecture(runnerID int) string {
	archs := m.cfg.TargetArchitectures
	if len(archs) == 0 {
		return m.cfg.HostArch
	}
	return archs[(runnerID-1)%len(archs)]
}

func (m *Manager) selectGPU(runnerID int) *hardware.GPUDescriptor {
	if len(m.gpus) == 0 {
		return nil
	}
	idx := (runnerID - 1) % len(m.gpus)
	return &m.gpus[idx]
}

func (m *Manager) buildLabels(arch string, gpu *hardware.GPUDescriptor) []string {
	labels := append([]string{}, m.client.DefaultLabels()...)
	labels = append(labels, m.cfg.Labels...)
	labels = append(labels, arch)
	if gpu != nil {
		labels = append(labels, hardware.Labels(*gpu)...)
	}
	return dedupe(labels)
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func freeBytes(path string) (uint64, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return 0, err
	}
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
