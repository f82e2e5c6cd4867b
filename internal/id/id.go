package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs stamped with the time of the event they identify
// rather than the wall clock, so a replayed run produces IDs that sort in
// trade order.
//
// A Generator built with NewSeeded is fully deterministic: the same seed and
// the same sequence of timestamps always yield the same IDs.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// New returns a Generator seeded from crypto/rand.
func New() *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewSeeded(seed)
}

// NewSeeded returns a deterministic Generator.
func NewSeeded(seed int64) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// At returns a ULID string for an event that happened at ts. A zero ts uses
// the current time.
func (g *Generator) At(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(ts.UTC()), g.entropy)
	if err != nil {
		// Monotonic entropy only fails on overflow within one millisecond or
		// on timestamps before the epoch; fall back to fresh entropy.
		id = ulid.MustNew(ulid.Timestamp(ts.UTC()), ulid.DefaultEntropy())
	}
	return id.String()
}
