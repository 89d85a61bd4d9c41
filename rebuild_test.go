package annostore

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annostore/indexmirror"
	"github.com/hupe1980/annostore/model"
	"github.com/hupe1980/annostore/recordstore"
)

// walkRaceStore deletes one early note the first time the rebuild walk
// asks for a page past the first, mimicking a live delete landing
// between two pages of the walk.
type walkRaceStore struct {
	recordstore.Store
	victim  string
	deleted bool
}

func (w *walkRaceStore) List(ctx context.Context, f recordstore.Filter) ([]model.Note, error) {
	if f.AfterID != "" && !w.deleted {
		w.deleted = true
		if err := w.Store.Delete(ctx, w.victim); err != nil {
			return nil, err
		}
	}
	return w.Store.List(ctx, f)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("ReconcilesAfterOutage", func(t *testing.T) {
		s, mirror := newTestStore(t)

		// A note written while the mirror was up, one written during an
		// outage, and one deleted during the outage.
		_, err := s.CreateNote(ctx, testNote("u1", "c1", "mirrored"))
		require.NoError(t, err)

		mirror.fail(true)

		unmirrored, err := s.CreateNote(ctx, testNote("u1", "c1", "unmirrored"))
		require.NoError(t, err)
		assert.Equal(t, OutcomePartiallyCommitted, unmirrored.Outcome)

		mirror.fail(false)
		doomed, err := s.CreateNote(ctx, testNote("u1", "c1", "doomed"))
		require.NoError(t, err)
		mirror.fail(true)

		del, err := s.DeleteNote(ctx, "u1", doomed.Note.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomePartiallyCommitted, del.Outcome)

		_, err = s.GetNote(ctx, "u1", doomed.Note.ID)
		require.ErrorIs(t, err, ErrNotFound)

		mirror.fail(false)

		stats, err := s.Rebuild(ctx, RebuildOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Indexed)
		assert.Equal(t, 0, stats.Failed)
		assert.Equal(t, 1, stats.Pruned)

		// The set of indexed ids now equals the set of record ids.
		ids, err := mirror.inner.IDs(ctx)
		require.NoError(t, err)
		records, err := s.records.List(ctx, recordstore.Filter{})
		require.NoError(t, err)
		recordIDs := make([]string, 0, len(records))
		for _, n := range records {
			recordIDs = append(recordIDs, n.ID)
		}
		assert.ElementsMatch(t, recordIDs, ids)

		// And the unmirrored note is searchable again.
		found, err := s.Search(ctx, "u1", SearchQuery{Text: "unmirrored"})
		require.NoError(t, err)
		assert.Equal(t, SearchSourceIndex, found.Source)
		require.Len(t, found.Notes, 1)
	})

	t.Run("Idempotent", func(t *testing.T) {
		s, mirror := newTestStore(t)

		for i := 0; i < 5; i++ {
			_, err := s.CreateNote(ctx, testNote("u1", "c1", "note"))
			require.NoError(t, err)
		}

		first, err := s.Rebuild(ctx, RebuildOptions{})
		require.NoError(t, err)
		idsAfterFirst, err := mirror.inner.IDs(ctx)
		require.NoError(t, err)

		second, err := s.Rebuild(ctx, RebuildOptions{})
		require.NoError(t, err)
		idsAfterSecond, err := mirror.inner.IDs(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, idsAfterFirst, idsAfterSecond)
		assert.Len(t, idsAfterSecond, 5)
	})

	t.Run("FullResetsFirst", func(t *testing.T) {
		s, mirror := newTestStore(t)

		_, err := s.CreateNote(ctx, testNote("u1", "c1", "kept"))
		require.NoError(t, err)

		// A stray document that Reset must wipe even before the
		// reconciliation pass.
		require.NoError(t, mirror.inner.Upsert(ctx, indexmirror.Document{ID: "stray", UserID: "ghost"}))

		stats, err := s.Rebuild(ctx, RebuildOptions{Full: true})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Indexed)
		assert.Equal(t, 0, stats.Pruned) // reset already removed it

		ids, err := mirror.inner.IDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("SmallBatches", func(t *testing.T) {
		s, mirror := newTestStore(t)

		for i := 0; i < 7; i++ {
			_, err := s.CreateNote(ctx, testNote("u1", "c1", "note"))
			require.NoError(t, err)
		}

		stats, err := s.Rebuild(ctx, RebuildOptions{BatchSize: 2, Workers: 3})
		require.NoError(t, err)
		assert.Equal(t, 7, stats.Indexed)

		ids, err := mirror.inner.IDs(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 7)
	})

	t.Run("WalkSurvivesLiveDelete", func(t *testing.T) {
		records := recordstore.NewMemory()

		var ids []string
		for i := 0; i < 4; i++ {
			n, err := records.Create(ctx, testNote("u1", "c1", "note"))
			require.NoError(t, err)
			ids = append(ids, n.ID)
		}
		sort.Strings(ids)

		walk := &walkRaceStore{Store: records, victim: ids[0]}
		s, err := New(walk, indexmirror.NewMemory(), WithLogger(NoopLogger()))
		require.NoError(t, err)

		stats, err := s.Rebuild(ctx, RebuildOptions{BatchSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Indexed)

		// Every note still in the record store made it into the index:
		// the cursor walk must not skip a row because an earlier one
		// vanished mid-walk.
		indexed, err := s.mirror.IDs(ctx)
		require.NoError(t, err)
		for _, id := range ids[1:] {
			assert.Contains(t, indexed, id)
		}
	})

	t.Run("Throttled", func(t *testing.T) {
		s, _ := newTestStore(t)

		for i := 0; i < 3; i++ {
			_, err := s.CreateNote(ctx, testNote("u1", "c1", "note"))
			require.NoError(t, err)
		}

		stats, err := s.Rebuild(ctx, RebuildOptions{DocsPerSecond: 10000})
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Indexed)
	})

	t.Run("CountsFailures", func(t *testing.T) {
		s, mirror := newTestStore(t)

		for i := 0; i < 3; i++ {
			_, err := s.CreateNote(ctx, testNote("u1", "c1", "note"))
			require.NoError(t, err)
		}

		mirror.fail(true)

		stats, err := s.Rebuild(ctx, RebuildOptions{})
		// The walk itself succeeded; per-document failures are counted,
		// and the enumeration for the reconciliation pass fails.
		require.Error(t, err)
		assert.Equal(t, 0, stats.Indexed)
		assert.Equal(t, 3, stats.Failed)
	})

	t.Run("NoMirrorConfigured", func(t *testing.T) {
		s, err := New(recordstore.NewMemory(), nil, WithLogger(NoopLogger()))
		require.NoError(t, err)

		_, err = s.Rebuild(ctx, RebuildOptions{})
		require.Error(t, err)
	})
}
