package hardware

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Vendor identifies a GPU manufacturer.
type Vendor string

const (
	VendorNVIDIA Vendor = "nvidia"
	VendorAMD    Vendor = "amd"
	VendorIntel  Vendor = "intel"
	VendorApple  Vendor = "apple"
)

// GPUDescriptor is the immutable result of classifying one detected GPU.
type GPUDescriptor struct {
	Vendor            Vendor
	ModelName         string
	Index             int
	MemoryBytes       uint64
	ComputeCapability string
	PCIID             string
	InferenceCapable  bool
	TrainingCapable   bool
}

const (
	giB = 1 << 30
)

// amdDatacenterModels and amdProfessionalModels classify AMD GPUs by
// model-name substring match (§4.5); any other AMD model is handled as a
// consumer part by classifyAMD's default branch.
var (
	amdDatacenterModels   = []string{"MI300", "MI250", "MI210", "MI100"}
	amdProfessionalModels = []string{"W7900", "W6800", "Radeon Pro"}
)

// cmdRunner abstracts shelling out, for test stubbing.
type cmdRunner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
	LookPath(name string) bool
}

type execCmdRunner struct{}

func (execCmdRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

func (execCmdRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// GPUInspector enumerates GPUs via vendor CLI tools, falling back to PCI
// bus enumeration (lspci) when a vendor tool is absent.
type GPUInspector struct {
	log *zap.Logger
	run cmdRunner
}

// NewGPUInspector constructs a GPUInspector.
func NewGPUInspector(log *zap.Logger) *GPUInspector {
	return &GPUInspector{log: log, run: execCmdRunner{}}
}

// Inspect enumerates all GPUs present on the host.
func (g *GPUInspector) Inspect(ctx context.Context) []GPUDescriptor {
	var out []GPUDescriptor
	out = append(out, g.inspectNVIDIA(ctx)...)
	out = append(out, g.inspectAMD(ctx)...)
	out = append(out, g.inspectIntel(ctx)...)
	out = append(out, g.inspectApple(ctx)...)
	if len(out) == 0 {
		out = append(out, g.inspectPCIFallback(ctx)...)
	}
	return out
}

func (g *GPUInspector) inspectNVIDIA(ctx context.Context) []GPUDescriptor {
	if !g.run.LookPath("nvidia-smi") {
		return nil
	}
	out, err := g.run.Output(ctx, "nvidia-smi",
		"--query-gpu=index,name,memory.total,compute_cap,pci.bus_id", "--format=csv,noheader,nounits")
	if err != nil {
		g.log.Warn("nvidia-smi query failed", zap.Error(err))
		return nil
	}

	var descriptors []GPUDescriptor
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := splitCSVFields(line)
		if len(fields) < 5 {
			continue
		}
		idx, _ := strconv.Atoi(fields[0])
		memMiB, _ := strconv.ParseFloat(fields[2], 64)
		d := GPUDescriptor{
			Vendor:            VendorNVIDIA,
			Index:             idx,
			ModelName:         fields[1],
			MemoryBytes:       uint64(memMiB) * 1024 * 1024,
			ComputeCapability: fields[3],
			PCIID:             fields[4],
		}
		classifyNVIDIA(&d)
		applyMemoryGate(&d)
		descriptors = append(descriptors, d)
	}
	return descriptors
}

func classifyNVIDIA(d *GPUDescriptor) {
	cc := parseComputeCapability(d.ComputeCapability)
	d.InferenceCapable = cc >= 6.0
	d.TrainingCapable = cc >= 7.0 || strings.Contains(strings.ToUpper(d.ModelName), "A100") ||
		strings.Contains(strings.ToUpper(d.ModelName), "H100")
}

func parseComputeCapability(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func (g *GPUInspector) inspectAMD(ctx context.Context) []GPUDescriptor {
	if !g.run.LookPath("rocm-smi") {
		return nil
	}
	out, err := g.run.Output(ctx, "rocm-smi", "--showproductname", "--showmeminfo", "vram", "--csv")
	if err != nil {
		g.log.Warn("rocm-smi query failed", zap.Error(err))
		return nil
	}

	var descriptors []GPUDescriptor
	idx := 0
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" || strings.HasPrefix(line, "device") {
			continue
		}
		fields := splitCSVFields(line)
		if len(fields) < 2 {
			continue
		}
		model := fields[1]
		var memBytes uint64
		if len(fields) >= 3 {
			if kb, err := strconv.ParseUint(fields[2], 10, 64); err == nil {
				memBytes = kb * 1024
			}
		}
		d := GPUDescriptor{Vendor: VendorAMD, Index: idx, ModelName: model, MemoryBytes: memBytes}
		classifyAMD(&d)
		applyMemoryGate(&d)
		descriptors = append(descriptors, d)
		idx++
	}
	return descriptors
}

func classifyAMD(d *GPUDescriptor) {
	model := strings.ToUpper(d.ModelName)
	switch {
	case containsAny(model, amdDatacenterModels):
		d.InferenceCapable = true
		d.TrainingCapable = true
	case containsAny(model, amdProfessionalModels):
		d.InferenceCapable = true
		d.TrainingCapable = d.MemoryBytes >= 16*giB
	default:
		d.InferenceCapable = true
		isRDNA2Plus := strings.Contains(model, "RX 6") || strings.Contains(model, "RX 7") || strings.Contains(model, "RX 9")
		d.TrainingCapable = isRDNA2Plus && d.MemoryBytes >= 8*giB
	}
}

func (g *GPUInspector) inspectIntel(ctx context.Context) []GPUDescriptor {
	if !g.run.LookPath("xpu-smi") {
		return nil
	}
	out, err := g.run.Output(ctx, "xpu-smi", "discovery", "--dump", "1,2,5")
	if err != nil {
		g.log.Warn("xpu-smi query failed", zap.Error(err))
		return nil
	}

	var descriptors []GPUDescriptor
	idx := 0
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := splitCSVFields(line)
		if len(fields) < 2 {
			continue
		}
		model := fields[1]
		d := GPUDescriptor{Vendor: VendorIntel, Index: idx, ModelName: model}
		discrete := strings.Contains(model, "Arc") || strings.Contains(model, "Flex") || strings.Contains(model, "Max")
		d.InferenceCapable = discrete
		d.TrainingCapable = discrete
		applyMemoryGate(&d)
		descriptors = append(descriptors, d)
		idx++
	}
	return descriptors
}

func (g *GPUInspector) inspectApple(ctx context.Context) []GPUDescriptor {
	if !g.run.LookPath("sysctl") {
		return nil
	}
	out, err := g.run.Output(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
	if err != nil || !strings.Contains(out, "Apple") {
		return nil
	}
	return []GPUDescriptor{{
		Vendor:           VendorApple,
		Index:            0,
		ModelName:        strings.TrimSpace(out),
		InferenceCapable: true,
		TrainingCapable:  true,
	}}
}

// inspectPCIFallback enumerates display controllers via lspci when no
// vendor tool is available; capability fields are left false since no
// compute/memory details are derivable from bus enumeration alone.
func (g *GPUInspector) inspectPCIFallback(ctx context.Context) []GPUDescriptor {
	if !g.run.LookPath("lspci") {
		return nil
	}
	out, err := g.run.Output(ctx, "lspci", "-nn")
	if err != nil {
		return nil
	}

	var descriptors []GPUDescriptor
	idx := 0
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga compatible controller") && !strings.Contains(lower, "3d controller") {
			continue
		}
		vendor := VendorNVIDIA
		switch {
		case strings.Contains(lower, "nvidia"):
			vendor = VendorNVIDIA
		case strings.Contains(lower, "amd") || strings.Contains(lower, "advanced micro devices"):
			vendor = VendorAMD
		case strings.Contains(lower, "intel"):
			vendor = VendorIntel
		default:
			continue
		}
		descriptors = append(descriptors, GPUDescriptor{
			Vendor:    vendor,
			Index:     idx,
			ModelName: strings.TrimSpace(line),
		})
		idx++
	}
	return descriptors
}

// applyMemoryGate enforces the §4.5 minimum-memory override: a GPU
// without known memory size never qualifies.
func applyMemoryGate(d *GPUDescriptor) {
	d.InferenceCapable = d.InferenceCapable && d.MemoryBytes >= 4*giB
	d.TrainingCapable = d.TrainingCapable && d.MemoryBytes >= 8*giB
}

// Labels returns the capability-tag set for a GPU (§4.5).
func Labels(d GPUDescriptor) []string {
	labels := []string{"self-hosted", "gpu", string(d.Vendor)}
	if d.InferenceCapable {
		labels = append(labels, "inference")
	}
	if d.TrainingCapable {
		labels = append(labels, "training")
	}
	if fam := architectureFamily(d); fam != "" {
		labels = append(labels, fam)
	}
	if model := specificModelTag(d.ModelName); model != "" {
		labels = append(labels, model)
	}
	return labels
}

func architectureFamily(d GPUDescriptor) string {
	model := strings.ToUpper(d.ModelName)
	switch d.Vendor {
	case VendorNVIDIA:
		switch {
		case strings.Contains(model, "H100"), strings.Contains(model, "H200"):
			return "hopper"
		case strings.Contains(model, "A100"), strings.Contains(model, "A10"):
			return "ampere"
		case strings.Contains(model, "T4"):
			return "turing"
		}
	case VendorAMD:
		if strings.Contains(model, "MI3") {
			return "cdna3"
		}
	}
	return ""
}

func specificModelTag(modelName string) string {
	model := strings.ToLower(modelName)
	for _, tag := range []string{"t4", "a100", "h100", "v100", "mi300", "mi250", "a10"} {
		if strings.Contains(model, tag) {
			return tag
		}
	}
	return ""
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToUpper(n)) {
			return true
		}
	}
	return false
}

func splitCSVFields(line string) []string {
	parts := strings.Split(line, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
