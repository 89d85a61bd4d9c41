package recordstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/annostore/model"
)

// MemoryStore is an in-memory Store implementation for testing.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]model.Note
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemory creates a new in-memory record store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]model.Note),
	}
}

// Create persists a new note, assigning its ID and timestamps.
func (m *MemoryStore) Create(_ context.Context, note model.Note) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	note.ID = uuid.NewString()
	note.Created = now
	note.Updated = now
	if note.Tags == nil {
		note.Tags = []string{}
	}

	m.notes[note.ID] = note.Clone()

	return note, nil
}

// Update applies the non-nil fields of upd and bumps Updated.
func (m *MemoryStore) Update(_ context.Context, id string, upd model.Update) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[id]
	if !ok {
		return model.Note{}, ErrNotFound
	}

	if upd.Text != nil {
		note.Text = *upd.Text
	}
	if upd.Tags != nil {
		note.Tags = *upd.Tags
	}
	note.Updated = time.Now().UTC()

	m.notes[id] = note.Clone()

	return note.Clone(), nil
}

// Delete removes a note.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[id]; !ok {
		return ErrNotFound
	}
	delete(m.notes, id)

	return nil
}

// Get returns a note by id.
func (m *MemoryStore) Get(_ context.Context, id string) (model.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	note, ok := m.notes[id]
	if !ok {
		return model.Note{}, ErrNotFound
	}

	return note.Clone(), nil
}

// List returns notes matching the filter, newest first unless the
// filter requests the stable id order.
func (m *MemoryStore) List(_ context.Context, f Filter) ([]model.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var notes []model.Note
	for _, note := range m.notes {
		if matches(note, f) {
			notes = append(notes, note.Clone())
		}
	}

	if f.OrderByID {
		sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	} else {
		sort.Slice(notes, func(i, j int) bool {
			if !notes[i].Updated.Equal(notes[j].Updated) {
				return notes[i].Updated.After(notes[j].Updated)
			}
			return notes[i].ID < notes[j].ID
		})
	}

	return paginate(notes, f.Limit, f.Offset), nil
}

// Count returns the number of notes a user has in a course.
func (m *MemoryStore) Count(_ context.Context, userID, courseID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, note := range m.notes {
		if note.UserID == userID && note.CourseID == courseID {
			n++
		}
	}

	return n, nil
}

// DeleteByUser removes every note owned by userID and returns the
// deleted ids.
func (m *MemoryStore) DeleteByUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, note := range m.notes {
		if note.UserID == userID {
			ids = append(ids, id)
			delete(m.notes, id)
		}
	}
	sort.Strings(ids)

	return ids, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func matches(note model.Note, f Filter) bool {
	if f.UserID != "" && note.UserID != f.UserID {
		return false
	}
	if f.CourseID != "" && note.CourseID != f.CourseID {
		return false
	}
	if f.AfterID != "" && note.ID <= f.AfterID {
		return false
	}
	if len(f.UsageIDs) > 0 {
		found := false
		for _, u := range f.UsageIDs {
			if note.UsageID == u {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(note.Text), needle) &&
			!strings.Contains(strings.ToLower(strings.Join(note.Tags, " ")), needle) {
			return false
		}
	}

	return true
}

func paginate(notes []model.Note, limit, offset int) []model.Note {
	if offset > 0 {
		if offset >= len(notes) {
			return nil
		}
		notes = notes[offset:]
	}
	if limit > 0 && limit < len(notes) {
		notes = notes[:limit]
	}

	return notes
}
