package recordstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annostore/model"
)

func newNote(userID, courseID, usageID, text string, tags ...string) model.Note {
	if tags == nil {
		tags = []string{}
	}
	return model.Note{
		UserID:   userID,
		CourseID: courseID,
		UsageID:  usageID,
		Text:     text,
		Quote:    "quoted passage",
		Ranges: []model.Range{
			{Start: "/div[1]/p[2]", End: "/div[1]/p[2]", StartOffset: 0, EndOffset: 12},
		},
		Tags: tags,
	}
}

func TestStoreConformance(t *testing.T) {
	impls := map[string]func(t *testing.T) Store{
		"Memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"SQLite": func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "notes.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range impls {
		t.Run(name, func(t *testing.T) {
			testStore(t, newStore)
		})
	}
}

func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)

		note := newNote("u1", "course-1", "block-1", "hello world", "history", "chapter-1")
		created, err := s.Create(ctx, note)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		require.False(t, created.Created.IsZero())
		require.False(t, created.Updated.Before(created.Created))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, note.UserID, got.UserID)
		assert.Equal(t, note.CourseID, got.CourseID)
		assert.Equal(t, note.UsageID, got.UsageID)
		assert.Equal(t, note.Text, got.Text)
		assert.Equal(t, note.Quote, got.Quote)
		assert.Equal(t, note.Ranges, got.Ranges)
		assert.Equal(t, note.Tags, got.Tags)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(ctx, "no-such-id")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		s := newStore(t)

		created, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "first draft"))
		require.NoError(t, err)

		text := "second draft"
		tags := []string{"revised"}
		updated, err := s.Update(ctx, created.ID, model.Update{Text: &text, Tags: &tags})
		require.NoError(t, err)
		assert.Equal(t, text, updated.Text)
		assert.Equal(t, tags, updated.Tags)
		assert.Equal(t, created.Quote, updated.Quote)
		assert.False(t, updated.Updated.Before(created.Updated))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, text, got.Text)
		assert.Equal(t, tags, got.Tags)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		s := newStore(t)

		created, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "keep me", "kept"))
		require.NoError(t, err)

		text := "changed"
		updated, err := s.Update(ctx, created.ID, model.Update{Text: &text})
		require.NoError(t, err)
		assert.Equal(t, "changed", updated.Text)
		assert.Equal(t, []string{"kept"}, updated.Tags)
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		s := newStore(t)

		text := "x"
		_, err := s.Update(ctx, "no-such-id", model.Update{Text: &text})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)

		created, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "ephemeral"))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, created.ID))

		_, err = s.Get(ctx, created.ID)
		require.ErrorIs(t, err, ErrNotFound)

		require.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)
	})

	t.Run("ListFilters", func(t *testing.T) {
		s := newStore(t)

		a, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "the french revolution", "history"))
		require.NoError(t, err)
		b, err := s.Create(ctx, newNote("u1", "course-1", "block-2", "industrial age", "Machines"))
		require.NoError(t, err)
		_, err = s.Create(ctx, newNote("u2", "course-1", "block-1", "the french revolution"))
		require.NoError(t, err)
		_, err = s.Create(ctx, newNote("u1", "course-2", "block-3", "unrelated"))
		require.NoError(t, err)

		notes, err := s.List(ctx, Filter{UserID: "u1", CourseID: "course-1"})
		require.NoError(t, err)
		require.Len(t, notes, 2)

		notes, err = s.List(ctx, Filter{UserID: "u1", CourseID: "course-1", UsageIDs: []string{"block-2"}})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, b.ID, notes[0].ID)

		// Substring match over text, case-insensitive.
		notes, err = s.List(ctx, Filter{UserID: "u1", Text: "FRENCH"})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, a.ID, notes[0].ID)

		// Substring match reaches tags as well.
		notes, err = s.List(ctx, Filter{UserID: "u1", Text: "machine"})
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, b.ID, notes[0].ID)

		notes, err = s.List(ctx, Filter{UserID: "u1", Text: "no such phrase"})
		require.NoError(t, err)
		assert.Empty(t, notes)
	})

	t.Run("ListOrdering", func(t *testing.T) {
		s := newStore(t)

		first, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "oldest"))
		require.NoError(t, err)
		second, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "newest"))
		require.NoError(t, err)

		// Touch the first note so it becomes the most recently updated.
		text := "oldest, revised"
		_, err = s.Update(ctx, first.ID, model.Update{Text: &text})
		require.NoError(t, err)

		notes, err := s.List(ctx, Filter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Equal(t, first.ID, notes[0].ID)
		assert.Equal(t, second.ID, notes[1].ID)

		notes, err = s.List(ctx, Filter{UserID: "u1", OrderByID: true})
		require.NoError(t, err)
		require.Len(t, notes, 2)
		assert.Less(t, notes[0].ID, notes[1].ID)
	})

	t.Run("Pagination", func(t *testing.T) {
		s := newStore(t)

		for i := 0; i < 5; i++ {
			_, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "note"))
			require.NoError(t, err)
		}

		page, err := s.List(ctx, Filter{UserID: "u1", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page, 2)

		rest, err := s.List(ctx, Filter{UserID: "u1", Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Len(t, rest, 1)

		beyond, err := s.List(ctx, Filter{UserID: "u1", Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("KeysetCursor", func(t *testing.T) {
		s := newStore(t)

		for i := 0; i < 5; i++ {
			_, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "note"))
			require.NoError(t, err)
		}

		first, err := s.List(ctx, Filter{OrderByID: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, first, 2)

		// Delete a row from the first page; the cursor page must still
		// start right after the last id seen, unlike an offset.
		require.NoError(t, s.Delete(ctx, first[0].ID))

		second, err := s.List(ctx, Filter{OrderByID: true, AfterID: first[1].ID, Limit: 2})
		require.NoError(t, err)
		require.Len(t, second, 2)
		assert.Greater(t, second[0].ID, first[1].ID)

		last, err := s.List(ctx, Filter{OrderByID: true, AfterID: second[1].ID, Limit: 2})
		require.NoError(t, err)
		require.Len(t, last, 1)

		tail, err := s.List(ctx, Filter{OrderByID: true, AfterID: last[0].ID, Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, tail)
	})

	t.Run("Count", func(t *testing.T) {
		s := newStore(t)

		for i := 0; i < 3; i++ {
			_, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "note"))
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, newNote("u1", "course-2", "block-1", "note"))
		require.NoError(t, err)

		n, err := s.Count(ctx, "u1", "course-1")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = s.Count(ctx, "u2", "course-1")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("DeleteByUser", func(t *testing.T) {
		s := newStore(t)

		a, err := s.Create(ctx, newNote("u1", "course-1", "block-1", "one"))
		require.NoError(t, err)
		b, err := s.Create(ctx, newNote("u1", "course-2", "block-1", "two"))
		require.NoError(t, err)
		keep, err := s.Create(ctx, newNote("u2", "course-1", "block-1", "three"))
		require.NoError(t, err)

		ids, err := s.DeleteByUser(ctx, "u1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

		_, err = s.Get(ctx, a.ID)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, b.ID)
		require.ErrorIs(t, err, ErrNotFound)

		_, err = s.Get(ctx, keep.ID)
		require.NoError(t, err)
	})
}
