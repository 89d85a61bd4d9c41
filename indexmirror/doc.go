// Package indexmirror maintains the derived, searchable copy of note
// content.
//
// The mirror is disposable infrastructure: documents are created,
// updated, and deleted only as a reaction to record-store mutations, or
// wholesale during a rebuild. A mirror document must never be treated
// as authoritative; it reflects some past committed version of its
// source note.
//
// # Failure model
//
// All failure sub-causes (connection refused, timeout, document-shape
// mismatch) collapse into the single sentinel ErrUnavailable. Callers
// react to availability, never to the sub-cause.
//
// # Implementations
//
//   - ElasticMirror: Elasticsearch over its REST API
//   - MemoryMirror: an embedded BM25 index with Roaring-bitmap term
//     filters, for tests and single-process deployments
package indexmirror
