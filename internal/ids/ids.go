package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	return At(time.Now())
}

// At returns an identifier whose timestamp component is t. Identifiers minted
// for the same millisecond still sort in creation order.
func At(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Valid reports whether id is a well-formed identifier.
func Valid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
