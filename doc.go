// Package annostore keeps a canonical relational record store and a
// derived, rebuildable search index mutually consistent.
//
// Notes live in two places: the record store (SQLite), which owns
// identity and durability, and the index mirror (Elasticsearch or the
// embedded in-memory index), which serves full-text search. The record
// store is the unconditional source of truth; the mirror is optional
// infrastructure that can be disabled, lag, fail, or be rebuilt from
// scratch.
//
// # Write path
//
// Every mutation commits to the record store first. Only then is the
// matching mirror operation attempted, under a short timeout, and only
// when indexing is enabled. A mirror failure never fails the write: the
// result downgrades from Committed to PartiallyCommitted and the
// divergence is left for the next rebuild to reconcile.
//
//	store, err := annostore.New(records, mirror)
//	res, err := store.CreateNote(ctx, note)
//	if res.Outcome == annostore.OutcomePartiallyCommitted {
//	    // committed but unmirrored; search may lag for this note
//	}
//
// # Read path
//
// Search routes to the mirror when indexing is enabled, the query has
// full-text input, and the mirror is believed healthy. Otherwise it
// falls back to a substring match in the record store. Mirror hits are
// resolved back through the record store, so returned field values are
// always canonical. A search fails only if the record store itself is
// unreachable.
//
// # Rebuild
//
// Rebuild reconstructs the mirror from the record store: an ID-ordered
// full walk plus a reconciliation pass that prunes mirror documents
// whose source note no longer exists. It is idempotent and safe to
// re-run after partial failure.
package annostore
