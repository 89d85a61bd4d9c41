package annostore

import (
	"log/slog"
	"time"
)

const (
	// DefaultIndexTimeout bounds every index mirror call made on a
	// write or search path. Mirror unavailability must never stall the
	// record store write it follows.
	DefaultIndexTimeout = 2 * time.Second

	// DefaultHealthCooldown is how long the search router distrusts the
	// mirror after a failure before probing it again.
	DefaultHealthCooldown = 30 * time.Second
)

type options struct {
	logger         *Logger
	metrics        MetricsCollector
	indexDisabled  bool
	indexTimeout   time.Duration
	healthCooldown time.Duration
	maxNotes       int
}

// Option configures Store construction.
type Option func(*options)

// WithLogger sets the structured logger for operation tracing.
//
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector for monitoring.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithIndexDisabled switches the process-wide indexing mode. When
// disabled, no index mirror call is made for any write or search; the
// record store fallback serves all queries. The mode is fixed at
// construction and is not mutable by request traffic.
//
// Operators disable the mode before rebuilding an index under a live
// service, then re-enable it.
func WithIndexDisabled(disabled bool) Option {
	return func(o *options) {
		o.indexDisabled = disabled
	}
}

// WithIndexTimeout bounds each index mirror call. After the timeout the
// call is treated as mirror unavailability.
func WithIndexTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.indexTimeout = d
		}
	}
}

// WithHealthCooldown sets how long the search router bypasses the
// mirror after a failure before probing it again.
func WithHealthCooldown(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.healthCooldown = d
		}
	}
}

// WithMaxNotesPerCourse caps how many notes a user may have in one
// course. Zero means no cap.
func WithMaxNotesPerCourse(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxNotes = n
		}
	}
}

func defaultOptions() options {
	return options{
		logger:         NewTextLogger(slog.LevelInfo),
		metrics:        NoopMetricsCollector{},
		indexTimeout:   DefaultIndexTimeout,
		healthCooldown: DefaultHealthCooldown,
	}
}
