package recurrence

import (
	"log/slog"

	"github.com/emersion/go-ical"
)

// Engine materializes recurrence sets. It holds only configuration, so a
// single Engine may be shared; every call works on its own InstanceTable.
type Engine struct {
	config    EngineConfig
	evaluator RuleEvaluator
	logger    *slog.Logger
}

// NewEngine creates a new recurrence engine instance
func NewEngine(opts ...Option) *Engine {
	return NewEngineWithConfig(DefaultEngineConfig, opts...)
}

// Wrap returns a read-only view of comp using the engine's floating
// location.
func (e *Engine) Wrap(comp *ical.Component) *Component {
	return NewComponent(comp, e.config.FloatingLocation)
}

// HasOccurrenceInRange reports whether the recurrence set of master has an
// instance intersecting [rangeStart, rangeEnd).
func (e *Engine) HasOccurrenceInRange(master *Component, rangeStart, rangeEnd Instant) bool {
	window := Period{Start: rangeStart, End: rangeEnd}
	found := false
	e.ExpandMaster(master, rangeStart, rangeEnd).Ascend(func(inst Instance) bool {
		found = inst.Period().Intersects(window)
		return !found
	})
	return found
}

// ConsumedTime returns the periods of comp's own recurrence set that
// intersect [rangeStart, rangeEnd). Components that do not consume time
// contribute nothing.
func (e *Engine) ConsumedTime(comp *Component, rangeStart, rangeEnd Instant) []Period {
	if !comp.ConsumesTime() {
		return nil
	}
	window := Period{Start: rangeStart, End: rangeEnd}
	var periods []Period
	e.ExpandMaster(comp, rangeStart, rangeEnd).Ascend(func(inst Instance) bool {
		if p := inst.Period(); p.Intersects(window) {
			periods = append(periods, p)
		}
		return true
	})
	return periods
}
