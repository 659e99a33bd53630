package util

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a random UUID as 32 hex characters without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSortableID returns a lexicographically sortable ULID for append-only rows.
func NewSortableID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
