package annostore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/annostore/indexmirror"
	"github.com/hupe1980/annostore/recordstore"
)

const (
	// DefaultRebuildBatchSize is how many notes are read and indexed
	// per batch during a rebuild.
	DefaultRebuildBatchSize = 500
	// DefaultRebuildWorkers is how many batches are indexed
	// concurrently.
	DefaultRebuildWorkers = 4
)

// RebuildOptions configures a rebuild run.
type RebuildOptions struct {
	// Full drops and recreates the index before the walk. Without it
	// the rebuild is an incremental reconciliation: documents are
	// re-upserted in place and strays pruned.
	Full bool
	// BatchSize is the walk page size. Defaults to DefaultRebuildBatchSize.
	BatchSize int
	// Workers is the number of concurrent indexing goroutines.
	// Defaults to DefaultRebuildWorkers.
	Workers int
	// DocsPerSecond throttles indexing. Zero means no throttle.
	DocsPerSecond float64
}

// RebuildStats reports the outcome of a rebuild run.
type RebuildStats struct {
	// Indexed is the number of documents successfully upserted.
	Indexed int
	// Failed is the number of documents that could not be upserted or
	// pruned.
	Failed int
	// Pruned is the number of mirror documents deleted because their
	// source note no longer exists.
	Pruned int
}

// Rebuild reconstructs the index mirror from the record store: an
// id-ordered full walk that re-upserts every note's projection,
// followed by a reconciliation pass that prunes mirror documents whose
// source note is gone. Re-upserting an already-correct document is a
// no-op in effect, so the operation is idempotent and safe to re-run
// after partial failure.
//
// Rebuild is meant to run with indexing disabled on the live service.
// Running it concurrently with live writes in enabled mode is safe but
// racy: the last writer wins per document.
//
// The returned error reports an aborted run (record store unreachable,
// index reset failed, enumeration failed). Per-document failures do not
// abort; they are counted in RebuildStats.Failed.
func (s *Store) Rebuild(ctx context.Context, opts RebuildOptions) (RebuildStats, error) {
	start := time.Now()

	if s.mirror == nil {
		return RebuildStats{}, errors.New("no index mirror configured")
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRebuildBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultRebuildWorkers
	}

	var limiter *rate.Limiter
	if opts.DocsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.DocsPerSecond), opts.BatchSize)
	}

	if opts.Full {
		if err := s.mirror.Reset(ctx); err != nil {
			return RebuildStats{}, fmt.Errorf("reset index: %w", err)
		}
	}

	var indexed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	// The walk itself is sequential; only indexing fans out. Pages are
	// keyed by the last id seen, not by offset: live deletes in the
	// disabled-mode window shift offsets and would make an offset walk
	// skip notes.
	seen := make(map[string]struct{})
	var cursor string
	for {
		notes, err := s.records.List(ctx, recordstore.Filter{
			OrderByID: true,
			AfterID:   cursor,
			Limit:     opts.BatchSize,
		})
		if err != nil {
			_ = g.Wait() //nolint:errcheck // walk already failed
			return RebuildStats{}, fmt.Errorf("walk record store: %w", err)
		}
		if len(notes) == 0 {
			break
		}
		cursor = notes[len(notes)-1].ID

		docs := make([]indexmirror.Document, 0, len(notes))
		for _, note := range notes {
			seen[note.ID] = struct{}{}
			docs = append(docs, indexmirror.FromNote(note))
		}

		g.Go(func() error {
			if limiter != nil {
				if err := limiter.WaitN(gctx, len(docs)); err != nil {
					return err
				}
			}
			s.indexBatch(gctx, docs, &indexed, &failed)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return RebuildStats{}, fmt.Errorf("index walk: %w", err)
	}

	stats := RebuildStats{
		Indexed: int(indexed.Load()),
		Failed:  int(failed.Load()),
	}

	// Reconciliation pass: a correct rebuild also removes mirror
	// documents whose source note no longer exists.
	mirrorIDs, err := s.mirror.IDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("enumerate index: %w", err)
	}
	for _, id := range mirrorIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := s.mirror.Delete(ctx, id); err != nil {
			stats.Failed++
			continue
		}
		stats.Pruned++
	}

	// A completed run proves the mirror reachable; close the health
	// latch so the router trusts it again immediately.
	s.health.markUp()

	s.logger.LogRebuild(ctx, stats)
	s.metrics.RecordRebuild(stats, time.Since(start))

	return stats, nil
}

// indexBatch upserts one batch, preferring the mirror's bulk API when
// it has one. Failures are counted, never propagated: a rebuild keeps
// going past bad documents.
func (s *Store) indexBatch(ctx context.Context, docs []indexmirror.Document, indexed, failed *atomic.Int64) {
	if bulk, ok := s.mirror.(indexmirror.BulkUpserter); ok {
		if err := bulk.BulkUpsert(ctx, docs); err == nil {
			indexed.Add(int64(len(docs)))
			return
		}
		// Fall through to per-document upserts so one bad document
		// does not sink the whole batch.
	}

	for _, doc := range docs {
		if err := s.mirror.Upsert(ctx, doc); err != nil {
			s.logger.DebugContext(ctx, "rebuild upsert failed", "note_id", doc.ID, "error", err)
			failed.Add(1)
			continue
		}
		indexed.Add(1)
	}
}
