// Package recordstore implements canonical storage of notes.
//
// The record store owns identity and durability: it assigns IDs and
// timestamps, and a write that returns success is durable regardless of
// what happens to the search index afterwards. It is never rolled back
// because of a downstream index failure.
//
// Two implementations are provided:
//
//   - SQLiteStore: the production store, backed by mattn/go-sqlite3
//   - MemoryStore: an in-memory store for testing
//
// Both serve the substring-match fallback search used when the index
// mirror is disabled or unreachable.
package recordstore
