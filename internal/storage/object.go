package storage

import (
	"errors"
	"time"
)

// ErrNotFound reports that no object exists at the requested key. Callers
// treat it as an ordinary cache miss rather than a backend failure.
var ErrNotFound = errors.New("storage: object not found")

// Object is a stored binary payload plus the side-channel fields every
// backend must round-trip: content type, an arbitrary string metadata map,
// and the backend's native last-modified timestamp.
type Object struct {
	Data         []byte
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}
