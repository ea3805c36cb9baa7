package scaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func baseConfig() Config {
	return Config{
		Mode:               ModeDynamic,
		MinRunners:         1,
		MaxRunners:         10,
		ScaleUpThreshold:   2,
		ScaleDownThreshold: 0,
		CooldownSeconds:    60,
	}
}

func TestScaleUpWhenQueueExceedsThreshold(t *testing.T) {
	c := New(baseConfig(), zap.NewNop())
	d := c.Evaluate(time.Now(), 5, 2, 1, 1)
	assert.Equal(t, 4, d.ScaleUpBy)
}

func TestNoScaleUpAtMaxCapacity(t *testing.T) {
	c := New(baseConfig(), zap.NewNop())
	d := c.Evaluate(time.Now(), 5, 10, 0, 10)
	assert.Equal(t, 0, d.ScaleUpBy)
}

func TestScaleDownWhenIdleSurplusAndNoQueue(t *testing.T) {
	c := New(baseConfig(), zap.NewNop())
	d := c.Evaluate(time.Now(), 0, 4, 3, 1)
	assert.Equal(t, 2, d.ScaleDownBy)
}

func TestScaleDownNeverBelowFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.MinRunners = 3
	c := New(cfg, zap.NewNop())
	d := c.Evaluate(time.Now(), 0, 4, 3, 1)
	assert.Equal(t, 1, d.ScaleDownBy)
}

func TestCooldownSuppressesRepeatedScaling(t *testing.T) {
	c := New(baseConfig(), zap.NewNop())
	now := time.Now()
	first := c.Evaluate(now, 5, 2, 1, 1)
	assert.Greater(t, first.ScaleUpBy, 0)

	second := c.Evaluate(now.Add(10*time.Second), 5, 2, 1, 1)
	assert.Equal(t, 0, second.ScaleUpBy)
	assert.Equal(t, "cooldown", second.Reason)

	third := c.Evaluate(now.Add(70*time.Second), 5, 2, 1, 1)
	assert.Greater(t, third.ScaleUpBy, 0)
}

func TestStaticModeOnlyEnforcesFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = ModeStatic
	cfg.MinRunners = 3
	c := New(cfg, zap.NewNop())

	d := c.Evaluate(time.Now(), 99, 1, 1, 0)
	assert.Equal(t, 2, d.ScaleUpBy)

	d = c.Evaluate(time.Now(), 99, 3, 3, 0)
	assert.Equal(t, 0, d.ScaleUpBy)
	assert.Equal(t, 0, d.ScaleDownBy)
}
