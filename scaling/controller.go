package scaling

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/logger"
	"github.com/SkogAI/agentpool/pool"
)

// Action is the outcome of one scaling evaluation
type Action int

const (
	// ActionNoChange keeps the current bounds
	ActionNoChange Action = iota
	// ActionScaleUp raises maxSize
	ActionScaleUp
	// ActionScaleDown lowers maxSize
	ActionScaleDown
)

func (a Action) String() string {
	switch a {
	case ActionNoChange:
		return "no_change"
	case ActionScaleUp:
		return "scale_up"
	case ActionScaleDown:
		return "scale_down"
	default:
		return "invalid"
	}
}

// Decision is a proposed bounds change, clamped to [0, absoluteMax]
type Decision struct {
	Action Action `json:"action"`
	NewMin int    `json:"new_min"`
	NewMax int    `json:"new_max"`
	Reason string `json:"reason"`
}

// Controller evaluates the monitor's sample window on a fixed interval and
// applies resize decisions to the pool. A failed resize is dropped and
// logged; the controller retries only on its next scheduled evaluation.
type Controller struct {
	profile  Profile
	pool     *pool.Pool
	monitor  *health.Monitor
	sink     health.Sink
	interval time.Duration

	done chan struct{}
	stop sync.Once
	log  *slog.Logger
}

// NewController creates a controller bound to one pool and its monitor.
func NewController(profile Profile, p *pool.Pool, m *health.Monitor, sink health.Sink, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Controller{
		profile:  profile.withDefaults(),
		pool:     p,
		monitor:  m,
		sink:     sink,
		interval: interval,
		done:     make(chan struct{}),
		log:      logger.With("component", "scaling", "class", profile.Class),
	}
}

// Run evaluates until the context is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evaluate(ctx)
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// Stop terminates a running Run loop.
func (c *Controller) Stop() {
	c.stop.Do(func() { close(c.done) })
}

func (c *Controller) evaluate(ctx context.Context) {
	window := c.monitor.Window()
	d := c.Decide(window)
	if d.Action == ActionNoChange {
		return
	}
	c.Apply(ctx, d, window[len(window)-1])
}

// Decide proposes a bounds change from a sample window, oldest first. Both
// directions require the threshold to hold across consecutive trailing
// samples; shrinking requires a longer run than growing.
func (c *Controller) Decide(window []health.Sample) Decision {
	if len(window) == 0 {
		return Decision{Action: ActionNoChange, Reason: "empty window"}
	}

	latest := window[len(window)-1]
	curMin, curMax := latest.MinSize, latest.MaxSize
	snap := c.pool.Snapshot()
	absoluteMax := snap.AbsoluteMax

	if c.trailingRun(window, c.profile.ScaleUpSamples, func(s health.Sample) bool {
		return s.UtilizationPercent > c.profile.ScaleUpThreshold
	}) {
		if curMax >= absoluteMax {
			return Decision{Action: ActionNoChange, NewMin: curMin, NewMax: curMax, Reason: "at absolute max"}
		}
		newMax := int(math.Ceil(float64(curMax) * c.profile.GrowthFactor))
		if newMax <= curMax {
			newMax = curMax + 1
		}
		if newMax > absoluteMax {
			newMax = absoluteMax
		}
		return Decision{
			Action: ActionScaleUp,
			NewMin: curMin,
			NewMax: newMax,
			Reason: fmt.Sprintf("utilization > %.0f%% for %d samples", c.profile.ScaleUpThreshold, c.profile.ScaleUpSamples),
		}
	}

	if c.trailingRun(window, c.profile.ScaleDownSamples, func(s health.Sample) bool {
		return s.UtilizationPercent < c.profile.ScaleDownThreshold
	}) {
		// only shrink when idle capacity comfortably exceeds the minimum
		if latest.IdleSlots <= latest.MinSize {
			return Decision{Action: ActionNoChange, NewMin: curMin, NewMax: curMax, Reason: "idle not above min"}
		}
		floor := c.profile.FloorMax
		if curMin > floor {
			floor = curMin
		}
		if curMax <= floor {
			return Decision{Action: ActionNoChange, NewMin: curMin, NewMax: curMax, Reason: "at floor"}
		}
		newMax := int(math.Floor(float64(curMax) * c.profile.ShrinkFactor))
		if newMax < floor {
			newMax = floor
		}
		if newMax >= curMax {
			return Decision{Action: ActionNoChange, NewMin: curMin, NewMax: curMax, Reason: "at floor"}
		}
		return Decision{
			Action: ActionScaleDown,
			NewMin: curMin,
			NewMax: newMax,
			Reason: fmt.Sprintf("utilization < %.0f%% for %d samples", c.profile.ScaleDownThreshold, c.profile.ScaleDownSamples),
		}
	}

	return Decision{Action: ActionNoChange, NewMin: curMin, NewMax: curMax, Reason: "no sustained signal"}
}

// trailingRun reports whether pred holds for the last n samples of the
// window and the window is at least that long.
func (c *Controller) trailingRun(window []health.Sample, n int, pred func(health.Sample) bool) bool {
	if len(window) < n {
		return false
	}
	for _, s := range window[len(window)-n:] {
		if !pred(s) {
			return false
		}
	}
	return true
}

// Apply resizes the pool per the decision and reports the action to the
// sink. Resize failures drop the decision; there is no mid-cycle retry.
func (c *Controller) Apply(ctx context.Context, d Decision, trigger health.Sample) {
	if err := c.pool.Resize(d.NewMin, d.NewMax); err != nil {
		c.log.Warn("resize dropped", "action", d.Action.String(), "new_max", d.NewMax, "error", err)
		return
	}
	c.log.Info("pool bounds adjusted",
		"action", d.Action.String(), "new_min", d.NewMin, "new_max", d.NewMax, "reason", d.Reason)

	if c.sink == nil {
		return
	}
	ev := health.Event{
		Kind:      "scaling",
		Level:     health.LevelOK,
		Target:    trigger.Target,
		Message:   fmt.Sprintf("%s to max=%d: %s", d.Action, d.NewMax, d.Reason),
		Timestamp: time.Now(),
		Sample:    trigger,
	}
	if err := c.sink.Emit(ctx, ev); err != nil {
		c.log.Warn("alert sink emit failed", "error", err)
	}
}
