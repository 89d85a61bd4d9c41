// Package model defines the core types shared by the record store, the
// index mirror, and the engine.
//
// # Identity
//
// A Note is identified by a server-assigned, immutable string ID. The
// record store row for an ID is the sole authority on current field
// values; any index document carrying the same ID is a derived
// projection.
//
// # Ownership
//
//   - UserID: anonymized owner of the note, not course specific
//   - CourseID: course context the note was taken in
//   - UsageID: content block the quoted passage comes from
//
// # Mutation
//
// Only Text and Tags are mutable after creation; use Update to carry
// changed fields. Timestamps are server-assigned and monotonically
// non-decreasing per note.
package model
