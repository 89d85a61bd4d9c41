package annostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/annostore/indexmirror"
	"github.com/hupe1980/annostore/model"
	"github.com/hupe1980/annostore/recordstore"
)

// DefaultPageSize is the page size applied when a list or search query
// does not set a limit.
const DefaultPageSize = 25

// SearchQuery is a caller-facing search. The caller's user id scopes it
// implicitly; see Store.Search.
type SearchQuery struct {
	// Text is the full-text input. When empty, the query is a pure
	// listing and is always served by the record store.
	Text     string
	CourseID string
	UsageIDs []string

	Limit  int
	Offset int
}

// Store is the dual-store engine: it coordinates every write across the
// record store and the index mirror, and routes every search to
// whichever of the two can serve it.
type Store struct {
	records recordstore.Store
	mirror  indexmirror.Mirror
	enabled bool

	indexTimeout time.Duration
	health       *healthTracker

	logger   *Logger
	metrics  MetricsCollector
	maxNotes int
}

// New creates a Store on top of the given record store and mirror.
//
// The mirror may be nil, which behaves like indexing disabled. The mode
// is fixed for the lifetime of the Store.
func New(records recordstore.Store, mirror indexmirror.Mirror, optFns ...Option) (*Store, error) {
	if records == nil {
		return nil, errors.New("record store must not be nil")
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{
		records:      records,
		mirror:       mirror,
		enabled:      !opts.indexDisabled && mirror != nil,
		indexTimeout: opts.indexTimeout,
		health:       newHealthTracker(opts.healthCooldown),
		logger:       opts.logger,
		metrics:      opts.metrics,
		maxNotes:     opts.maxNotes,
	}, nil
}

// IndexingEnabled reports whether the index mirror participates in
// writes and searches.
func (s *Store) IndexingEnabled() bool {
	return s.enabled
}

// CreateNote validates and persists a new note. The note's UserID is
// its owner; the wire layer is expected to have set it from the
// authenticated identity.
func (s *Store) CreateNote(ctx context.Context, note model.Note) (WriteResult, error) {
	start := time.Now()

	if note.ID != "" {
		err := &model.ValidationError{Field: "id", Reason: "must not be set by the caller"}
		s.metrics.RecordWrite("create", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}
	if err := note.Validate(); err != nil {
		s.metrics.RecordWrite("create", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}

	if s.maxNotes > 0 {
		n, err := s.records.Count(ctx, note.UserID, note.CourseID)
		if err != nil {
			s.metrics.RecordWrite("create", OutcomeCommitted, time.Since(start), err)
			return WriteResult{}, fmt.Errorf("count notes: %w", err)
		}
		if n >= s.maxNotes {
			err := &ErrNoteLimitExceeded{Max: s.maxNotes}
			s.metrics.RecordWrite("create", OutcomeCommitted, time.Since(start), err)
			return WriteResult{}, err
		}
	}

	created, err := s.records.Create(ctx, note)
	if err != nil {
		s.metrics.RecordWrite("create", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, fmt.Errorf("create note: %w", err)
	}

	outcome := s.propagate(ctx, "create", created.ID, func(ctx context.Context) error {
		return s.mirror.Upsert(ctx, indexmirror.FromNote(created))
	})
	s.metrics.RecordWrite("create", outcome, time.Since(start), nil)

	return WriteResult{Note: created, Outcome: outcome}, nil
}

// GetNote returns a note. A note owned by someone else is reported as
// not found; an empty caller has unrestricted scope.
func (s *Store) GetNote(ctx context.Context, caller, id string) (model.Note, error) {
	note, err := s.records.Get(ctx, id)
	if err != nil {
		return model.Note{}, err
	}
	if caller != "" && note.UserID != caller {
		return model.Note{}, ErrNotFound
	}

	return note, nil
}

// UpdateNote applies the mutable fields to an existing note.
func (s *Store) UpdateNote(ctx context.Context, caller, id string, upd model.Update) (WriteResult, error) {
	start := time.Now()

	// Ownership gate before touching anything.
	if _, err := s.GetNote(ctx, caller, id); err != nil {
		s.metrics.RecordWrite("update", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}

	updated, err := s.records.Update(ctx, id, upd)
	if err != nil {
		s.metrics.RecordWrite("update", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}

	outcome := s.propagate(ctx, "update", id, func(ctx context.Context) error {
		return s.mirror.Upsert(ctx, indexmirror.FromNote(updated))
	})
	s.metrics.RecordWrite("update", outcome, time.Since(start), nil)

	return WriteResult{Note: updated, Outcome: outcome}, nil
}

// DeleteNote removes a note from the record store and, best effort,
// from the mirror.
func (s *Store) DeleteNote(ctx context.Context, caller, id string) (WriteResult, error) {
	start := time.Now()

	if _, err := s.GetNote(ctx, caller, id); err != nil {
		s.metrics.RecordWrite("delete", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}

	if err := s.records.Delete(ctx, id); err != nil {
		s.metrics.RecordWrite("delete", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}

	outcome := s.propagate(ctx, "delete", id, func(ctx context.Context) error {
		return s.mirror.Delete(ctx, id)
	})
	s.metrics.RecordWrite("delete", outcome, time.Since(start), nil)

	return WriteResult{Outcome: outcome}, nil
}

// ListNotes returns the caller's notes, newest first. An empty caller
// has unrestricted scope.
func (s *Store) ListNotes(ctx context.Context, caller string, f recordstore.Filter) ([]model.Note, error) {
	if caller != "" {
		f.UserID = caller
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}

	return s.records.List(ctx, f)
}

// Retire deletes every note owned by userID, mirroring the deletes best
// effort. Divergence left by a mirror outage is reconciled by the next
// rebuild.
func (s *Store) Retire(ctx context.Context, userID string) (WriteResult, error) {
	start := time.Now()

	if userID == "" {
		err := &model.ValidationError{Field: "user", Reason: "is required"}
		s.metrics.RecordWrite("retire", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, err
	}

	ids, err := s.records.DeleteByUser(ctx, userID)
	if err != nil {
		s.metrics.RecordWrite("retire", OutcomeCommitted, time.Since(start), err)
		return WriteResult{}, fmt.Errorf("retire user: %w", err)
	}

	outcome := s.propagate(ctx, "retire", userID, func(ctx context.Context) error {
		for _, id := range ids {
			if err := s.mirror.Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	s.metrics.RecordWrite("retire", outcome, time.Since(start), nil)

	return WriteResult{Outcome: outcome}, nil
}

// Search serves a query from the index mirror when possible and from
// the record store otherwise. It fails only if the record store itself
// is unreachable. An empty caller has unrestricted scope.
func (s *Store) Search(ctx context.Context, caller string, q SearchQuery) (SearchResult, error) {
	start := time.Now()

	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}

	if s.routeToIndex(ctx, q) {
		notes, err := s.searchIndex(ctx, caller, q)
		if err == nil {
			s.logger.LogSearchRoute(ctx, SearchSourceIndex, len(notes))
			s.metrics.RecordSearch(SearchSourceIndex, time.Since(start), nil)
			return SearchResult{Notes: notes, Source: SearchSourceIndex}, nil
		}
		if !errors.Is(err, indexmirror.ErrUnavailable) {
			// Resolution against the record store failed; this is a
			// record store error and must surface.
			s.metrics.RecordSearch(SearchSourceIndex, time.Since(start), err)
			return SearchResult{}, err
		}
		// Mirror outage downgrades the search, it never fails it.
		s.health.markDown(time.Now())
		s.logger.WarnContext(ctx, "index search failed; falling back to record store", "error", err)
	}

	notes, err := s.records.List(ctx, recordstore.Filter{
		UserID:   caller,
		CourseID: q.CourseID,
		UsageIDs: q.UsageIDs,
		Text:     q.Text,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		s.metrics.RecordSearch(SearchSourceRecords, time.Since(start), err)
		return SearchResult{}, fmt.Errorf("fallback search: %w", err)
	}

	s.logger.LogSearchRoute(ctx, SearchSourceRecords, len(notes))
	s.metrics.RecordSearch(SearchSourceRecords, time.Since(start), nil)

	return SearchResult{Notes: notes, Source: SearchSourceRecords}, nil
}

// searchIndex queries the mirror and resolves the ranked ids against
// the record store, so returned field values are always canonical. Ids
// that no longer resolve are stale mirror entries and are dropped.
func (s *Store) searchIndex(ctx context.Context, caller string, q SearchQuery) ([]model.Note, error) {
	mctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	hits, err := s.mirror.Search(mctx, indexmirror.Query{
		Text:     q.Text,
		UserID:   caller,
		CourseID: q.CourseID,
		UsageIDs: q.UsageIDs,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		return nil, err
	}

	notes := make([]model.Note, 0, len(hits))
	for _, hit := range hits {
		note, err := s.records.Get(ctx, hit.ID)
		if errors.Is(err, recordstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve hit %s: %w", hit.ID, err)
		}
		notes = append(notes, note)
	}

	s.health.markUp()

	return notes, nil
}

// routeToIndex decides the search path: mode enabled, full-text input
// present, and the mirror believed healthy (probing after a cooldown).
func (s *Store) routeToIndex(ctx context.Context, q SearchQuery) bool {
	if !s.enabled || q.Text == "" {
		return false
	}
	if s.health.healthy() {
		return true
	}
	if !s.health.shouldProbe(time.Now()) {
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	if err := s.mirror.Ping(pctx); err != nil {
		s.health.markDown(time.Now())
		return false
	}
	s.health.markUp()

	return true
}

// propagate runs the mirror side of a committed write. The canonical
// write already stands, so any mirror failure downgrades the outcome
// instead of surfacing as an error.
func (s *Store) propagate(ctx context.Context, op, id string, fn func(ctx context.Context) error) WriteOutcome {
	if !s.enabled {
		return OutcomeCommitted
	}

	mctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	if err := fn(mctx); err != nil {
		s.health.markDown(time.Now())
		s.logger.LogPropagation(ctx, op, id, err)
		return OutcomePartiallyCommitted
	}

	s.health.markUp()
	s.logger.LogPropagation(ctx, op, id, nil)

	return OutcomeCommitted
}

// Close closes the record store. The mirror holds no local resources.
func (s *Store) Close() error {
	return s.records.Close()
}
