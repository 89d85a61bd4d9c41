package annostore

import (
	"fmt"

	"github.com/hupe1980/annostore/indexmirror"
	"github.com/hupe1980/annostore/recordstore"
)

var (
	// ErrNotFound is returned when a note does not exist or is not
	// owned by the caller.
	ErrNotFound = recordstore.ErrNotFound

	// ErrIndexUnavailable is the single failure class of the index
	// mirror. Writes never surface it; it only appears on operations
	// that require the mirror, such as a rebuild against a dead
	// cluster.
	ErrIndexUnavailable = indexmirror.ErrUnavailable
)

// ErrNoteLimitExceeded is returned when a user already has the maximum
// number of notes in a course. It is a caller error, not a server
// failure.
type ErrNoteLimitExceeded struct {
	Max int
}

func (e *ErrNoteLimitExceeded) Error() string {
	return fmt.Sprintf("note limit reached: at most %d notes per course", e.Max)
}
