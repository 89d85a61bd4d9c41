package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/annostore/model"
)

// timeLayout is a fixed-width RFC 3339 variant. Lexicographic order of
// stored timestamps must match chronological order so that ORDER BY on
// the TEXT column is correct.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS notes (
    id        TEXT PRIMARY KEY,
    user_id   TEXT NOT NULL,
    course_id TEXT NOT NULL,
    usage_id  TEXT NOT NULL DEFAULT '',
    quote     TEXT NOT NULL DEFAULT '',
    text      TEXT NOT NULL DEFAULT '',
    ranges    TEXT NOT NULL DEFAULT '[]',
    tags      TEXT NOT NULL DEFAULT '[]',
    created   TEXT NOT NULL,
    updated   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_user_id ON notes (user_id);
CREATE INDEX IF NOT EXISTS idx_notes_course_id ON notes (course_id);
CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes (updated);
`

const noteColumns = "id, user_id, course_id, usage_id, quote, text, ranges, tags, created, updated"

// SQLiteStore is the production record store, backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the database at dsn and bootstraps the
// schema.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create persists a new note, assigning its ID and timestamps.
func (s *SQLiteStore) Create(ctx context.Context, note model.Note) (model.Note, error) {
	now := time.Now().UTC()
	note.ID = uuid.NewString()
	note.Created = now
	note.Updated = now
	if note.Tags == nil {
		note.Tags = []string{}
	}

	ranges, tags, err := marshalFields(note)
	if err != nil {
		return model.Note{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.UserID, note.CourseID, note.UsageID, note.Quote, note.Text,
		ranges, tags, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return model.Note{}, fmt.Errorf("insert note: %w", err)
	}

	return note, nil
}

// Update applies the non-nil fields of upd and bumps Updated.
func (s *SQLiteStore) Update(ctx context.Context, id string, upd model.Update) (model.Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Note{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if err != nil {
		return model.Note{}, err
	}

	if upd.Text != nil {
		note.Text = *upd.Text
	}
	if upd.Tags != nil {
		note.Tags = *upd.Tags
	}
	note.Updated = time.Now().UTC()

	_, tags, err := marshalFields(note)
	if err != nil {
		return model.Note{}, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE notes SET text = ?, tags = ?, updated = ? WHERE id = ?`,
		note.Text, tags, note.Updated.Format(timeLayout), id,
	)
	if err != nil {
		return model.Note{}, fmt.Errorf("update note: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Note{}, fmt.Errorf("commit update: %w", err)
	}

	return note, nil
}

// Delete removes a note.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Get returns a note by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	return scanNote(row)
}

// List returns notes matching the filter, newest first unless the
// filter requests the stable id order.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.Note, error) {
	var (
		where []string
		args  []any
	)

	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.CourseID != "" {
		where = append(where, "course_id = ?")
		args = append(args, f.CourseID)
	}
	if len(f.UsageIDs) > 0 {
		where = append(where, "usage_id IN ("+placeholders(len(f.UsageIDs))+")")
		for _, u := range f.UsageIDs {
			args = append(args, u)
		}
	}
	if f.AfterID != "" {
		where = append(where, "id > ?")
		args = append(args, f.AfterID)
	}
	if f.Text != "" {
		// Substring match over text OR tags, case-insensitive. This is
		// the degraded-mode counterpart of the index mirror's full-text
		// query.
		pattern := "%" + strings.ToLower(f.Text) + "%"
		where = append(where, "(LOWER(text) LIKE ? OR LOWER(tags) LIKE ?)")
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + noteColumns + ` FROM notes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.OrderByID {
		query += " ORDER BY id ASC"
	} else {
		query += " ORDER BY updated DESC, id ASC"
	}
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1 // no limit, offset only
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	return notes, nil
}

// Count returns the number of notes a user has in a course.
func (s *SQLiteStore) Count(ctx context.Context, userID, courseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}

	return n, nil
}

// DeleteByUser removes every note owned by userID and returns the
// deleted ids.
func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin retire: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rows, err := tx.QueryContext(ctx, `SELECT id FROM notes WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("retire user: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("retire user: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retire user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("retire user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit retire: %w", err)
	}

	return ids, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (model.Note, error) {
	var (
		note             model.Note
		ranges, tags     string
		created, updated string
	)

	err := row.Scan(
		&note.ID, &note.UserID, &note.CourseID, &note.UsageID, &note.Quote, &note.Text,
		&ranges, &tags, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, ErrNotFound
	}
	if err != nil {
		return model.Note{}, fmt.Errorf("scan note: %w", err)
	}

	if err := json.Unmarshal([]byte(ranges), &note.Ranges); err != nil {
		return model.Note{}, fmt.Errorf("decode ranges: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &note.Tags); err != nil {
		return model.Note{}, fmt.Errorf("decode tags: %w", err)
	}
	if note.Created, err = time.Parse(timeLayout, created); err != nil {
		return model.Note{}, fmt.Errorf("decode created: %w", err)
	}
	if note.Updated, err = time.Parse(timeLayout, updated); err != nil {
		return model.Note{}, fmt.Errorf("decode updated: %w", err)
	}

	return note, nil
}

func marshalFields(note model.Note) (ranges, tags string, err error) {
	if note.Ranges == nil {
		note.Ranges = []model.Range{}
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}

	r, err := json.Marshal(note.Ranges)
	if err != nil {
		return "", "", fmt.Errorf("encode ranges: %w", err)
	}
	t, err := json.Marshal(note.Tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}

	return string(r), string(t), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
