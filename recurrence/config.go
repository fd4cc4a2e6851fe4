package recurrence

import (
	"io"
	"log/slog"
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// FloatingLocation resolves DATE values and DATE-TIME values that carry
	// neither a UTC marker nor a TZID.
	FloatingLocation *time.Location

	// MaxInstances caps how many instances a single master may generate
	// (0 = unlimited). The query window is otherwise the only bound.
	MaxInstances int
}

// DefaultEngineConfig resolves floating times in UTC and does not cap expansion
var DefaultEngineConfig = EngineConfig{
	FloatingLocation: time.UTC,
	MaxInstances:     0,
}

// Option modifies an Engine
type Option func(*Engine)

// WithLogger sets the logger. By default log output is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEvaluator replaces the rule evaluator used for RRULE and EXRULE
func WithEvaluator(ev RuleEvaluator) Option {
	return func(e *Engine) {
		if ev != nil {
			e.evaluator = ev
		}
	}
}

// WithMaxInstances overrides EngineConfig.MaxInstances
func WithMaxInstances(n int) Option {
	return func(e *Engine) {
		e.config.MaxInstances = n
	}
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig, opts ...Option) *Engine {
	if config.FloatingLocation == nil {
		config.FloatingLocation = time.UTC
	}
	e := &Engine{
		config:    config,
		evaluator: RRuleEvaluator{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
