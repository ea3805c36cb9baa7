// Package scaling implements the Scaling Controller (C9): a tick-driven
// loop that compares queue depth against pool occupancy and decides
// scale-up/scale-down actions under a cooldown, plus a static mode that
// only tops the pool up to its minimum size. The static-mode idle timeout
// is tracked by the Manager, not here.
package scaling

import (
	"time"

	"go.uber.org/zap"
)

// Mode selects between dynamic (queue-driven) and static (fixed pool
// size plus idle-timeout reaping) scaling behavior (§4.9).
type Mode string

const (
	ModeDynamic Mode = "dynamic"
	ModeStatic  Mode = "static"
)

// Config holds the auto-scaling parameters (§4.9).
type Config struct {
	Mode             Mode
	MinRunners       int
	MaxRunners       int
	ScaleUpThreshold int
	ScaleDownThreshold int
	CooldownSeconds  int
	IdleTimeout      time.Duration
}

// Decision is the outcome of one scaling evaluation.
type Decision struct {
	ScaleUpBy   int
	ScaleDownBy int
	Reason      string
}

// Controller evaluates scaling decisions on each tick.
type Controller struct {
	cfg           Config
	log           *zap.Logger
	lastScaleTime time.Time
}

// New constructs a Controller.
func New(cfg Config, log *zap.Logger) *Controller {
	return &Controller{cfg: cfg, log: log.Named("scaling"), lastScaleTime: time.Time{}}
}

// Evaluate computes a Decision given the current pool occupancy and
// platform queue depth. now is passed explicitly so evaluation stays
// deterministic and testable.
func (c *Controller) Evaluate(now time.Time, queueLength, total, idle, busy int) Decision {
	if c.cfg.Mode == ModeStatic {
		return c.evaluateStatic(total, idle)
	}
	return c.evaluateDynamic(now, queueLength, total, idle)
}

func (c *Controller) evaluateDynamic(now time.Time, queueLength, total, idle int) Decision {
	if !c.lastScaleTime.IsZero() && now.Sub(c.lastScaleTime) < time.Duration(c.cfg.CooldownSeconds)*time.Second {
		return Decision{Reason: "cooldown"}
	}

	if queueLength > c.cfg.ScaleUpThreshold && total < c.cfg.MaxRunners {
		needed := min(queueLength-idle, c.cfg.MaxRunners-total)
		if needed > 0 {
			c.lastScaleTime = now
			return Decision{ScaleUpBy: needed, Reason: "queue above threshold"}
		}
		return Decision{Reason: "queue above threshold but no headroom"}
	}

	if queueLength <= c.cfg.ScaleDownThreshold && idle > 1 && total > c.cfg.MinRunners {
		targetIdle := 1
		toRemove := max(0, min(idle-targetIdle, total-c.cfg.MinRunners))
		if toRemove > 0 {
			c.lastScaleTime = now
			return Decision{ScaleDownBy: toRemove, Reason: "queue at or below threshold, idle surplus"}
		}
	}

	return Decision{Reason: "steady state"}
}

// evaluateStatic never changes pool size via queue pressure; whole-process
// idle-timeout shutdown is tracked by the Manager's scale loop, since it
// ends the process rather than resizing the pool, and is out of scope for
// this per-tick evaluation.
func (c *Controller) evaluateStatic(total, idle int) Decision {
	if total < c.cfg.MinRunners {
		return Decision{ScaleUpBy: c.cfg.MinRunners - total, Reason: "static pool below floor"}
	}
	return Decision{Reason: "static mode"}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
