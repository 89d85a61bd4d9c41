package annostore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// The PartiallyCommitted write outcome is the signal operators care
// about most: a growing count means the mirror is diverging and a
// rebuild is due.
type MetricsCollector interface {
	// RecordWrite is called after each mutating operation.
	// op is one of "create", "update", "delete", "retire";
	// err is nil if the canonical write succeeded.
	RecordWrite(op string, outcome WriteOutcome, duration time.Duration, err error)

	// RecordSearch is called after each search.
	// source reports which store served it; err is nil unless the
	// record store itself failed.
	RecordSearch(source SearchSource, duration time.Duration, err error)

	// RecordRebuild is called after each rebuild run.
	RecordRebuild(stats RebuildStats, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(string, WriteOutcome, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(SearchSource, time.Duration, error)        {}
func (NoopMetricsCollector) RecordRebuild(RebuildStats, time.Duration)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	WriteCount      atomic.Int64
	WriteErrors     atomic.Int64
	PartialWrites   atomic.Int64
	IndexSearches   atomic.Int64
	RecordSearches  atomic.Int64
	SearchErrors    atomic.Int64
	RebuildCount    atomic.Int64
	RebuildIndexed  atomic.Int64
	RebuildFailed   atomic.Int64
	RebuildPruned   atomic.Int64
}

func (c *BasicMetricsCollector) RecordWrite(_ string, outcome WriteOutcome, _ time.Duration, err error) {
	c.WriteCount.Add(1)
	if err != nil {
		c.WriteErrors.Add(1)
		return
	}
	if outcome == OutcomePartiallyCommitted {
		c.PartialWrites.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordSearch(source SearchSource, _ time.Duration, err error) {
	if err != nil {
		c.SearchErrors.Add(1)
		return
	}
	switch source {
	case SearchSourceIndex:
		c.IndexSearches.Add(1)
	case SearchSourceRecords:
		c.RecordSearches.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordRebuild(stats RebuildStats, _ time.Duration) {
	c.RebuildCount.Add(1)
	c.RebuildIndexed.Add(int64(stats.Indexed))
	c.RebuildFailed.Add(int64(stats.Failed))
	c.RebuildPruned.Add(int64(stats.Pruned))
}
