package hardware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCmdRunner struct {
	available map[string]bool
	outputs   map[string]string
	errs      map[string]error
}

func (s *stubCmdRunner) LookPath(name string) bool { return s.available[name] }

func (s *stubCmdRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	if err, ok := s.errs[name]; ok {
		return "", err
	}
	return s.outputs[name], nil
}

func TestNVIDIALabelCompositionT4(t *testing.T) {
	stub := &stubCmdRunner{
		available: map[string]bool{"nvidia-smi": true},
		outputs: map[string]string{
			"nvidia-smi": "0, Tesla T4, 16384, 7.5, 00000000:00:1E.0\n",
		},
	}
	g := NewGPUInspector(zap.NewNop())
	g.run = stub

	descs := g.Inspect(context.Background())
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, VendorNVIDIA, d.Vendor)
	assert.True(t, d.InferenceCapable)
	assert.True(t, d.TrainingCapable)

	labels := Labels(d)
	assert.Contains(t, labels, "self-hosted")
	assert.Contains(t, labels, "gpu")
	assert.Contains(t, labels, "nvidia")
	assert.Contains(t, labels, "inference")
	assert.Contains(t, labels, "training")
	assert.Contains(t, labels, "t4")
}

func TestMemoryGateRejectsSmallGPU(t *testing.T) {
	stub := &stubCmdRunner{
		available: map[string]bool{"nvidia-smi": true},
		outputs: map[string]string{
			"nvidia-smi": "0, GeForce GTX 1050, 2048, 6.1, 0000:01:00.0\n",
		},
	}
	g := NewGPUInspector(zap.NewNop())
	g.run = stub

	descs := g.Inspect(context.Background())
	require.Len(t, descs, 1)
	assert.False(t, descs[0].InferenceCapable, "below 4GiB floor must never be inference-capable")
}

func TestAMDDatacenterClassification(t *testing.T) {
	stub := &stubCmdRunner{
		available: map[string]bool{"rocm-smi": true},
		outputs: map[string]string{
			"rocm-smi": "device,Card series,VRAM Total Memory (KiB)\ncard0,Instinct MI300X,134217728\n",
		},
	}
	g := NewGPUInspector(zap.NewNop())
	g.run = stub

	descs := g.Inspect(context.Background())
	require.Len(t, descs, 1)
	assert.True(t, descs[0].InferenceCapable)
	assert.True(t, descs[0].TrainingCapable)
}

func TestNoVendorToolFallsBackToPCI(t *testing.T) {
	stub := &stubCmdRunner{
		available: map[string]bool{"lspci": true},
		outputs: map[string]string{
			"lspci": "01:00.0 VGA compatible controller [0300]: NVIDIA Corporation GA102 [GeForce RTX 3080] [10de:2206]\n",
		},
	}
	g := NewGPUInspector(zap.NewNop())
	g.run = stub

	descs := g.Inspect(context.Background())
	require.Len(t, descs, 1)
	assert.Equal(t, VendorNVIDIA, descs[0].Vendor)
	assert.False(t, descs[0].InferenceCapable, "pci fallback has no memory info, must not claim capability")
}
