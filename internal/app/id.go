package app

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idGenerator produces lexicographically sortable ULIDs from a monotonic
// entropy source. The mutex keeps the entropy source safe for concurrent
// command handling.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), g.entropy).String()
}

// newConfirmToken produces the opaque, unguessable nonce embedded in a
// user's confirmation link. Hex rather than ULID: tokens must carry no
// timestamp ordering an attacker could exploit.
func newConfirmToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
