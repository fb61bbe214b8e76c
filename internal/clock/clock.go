// Package clock provides the engine's time source and identifier
// generator as small, swappable interfaces so tests can pin both
// without touching global state.
package clock

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Clock abstracts wall-clock reads. The default implementation wraps
// time.Now; tests substitute a fixed or stepped clock.
type Clock interface {
	Now() time.Time
}

// System is the default Clock, backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant, advanced
// explicitly by tests via Set.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// IDKind selects which generator NewGenerator returns, mirroring the
// store.PrimaryKeyType configuration knob.
type IDKind string

const (
	IDKindAuto IDKind = "id"
	IDKindUUID IDKind = "uuid"
	IDKindULID IDKind = "ulid"
)

// IDGenerator produces the next primary key value for an operation
// record. For IDKindAuto, Next returns nil. PostgresStore does not use
// this kind: its id columns are TEXT, so it replaces IDKindAuto with
// IDKindULID and has no integer auto-increment key.
type IDGenerator interface {
	Next() any
}

// NewGenerator returns the IDGenerator matching kind.
func NewGenerator(kind IDKind, c Clock) IDGenerator {
	switch kind {
	case IDKindUUID:
		return uuidGenerator{}
	case IDKindULID:
		return &ulidGenerator{clock: c}
	default:
		return autoGenerator{}
	}
}

type autoGenerator struct{}

func (autoGenerator) Next() any { return nil }

type uuidGenerator struct{}

func (uuidGenerator) Next() any { return uuid.New().String() }

// ulidGenerator produces lexicographically time-sortable ids seeded
// from the configured clock, using a dedicated entropy source per
// ULID's own recommended pattern (a single shared math/rand source is
// not safe for concurrent Read calls).
type ulidGenerator struct {
	clock Clock
	mu    sync.Mutex
}

func (g *ulidGenerator) Next() any {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if g.clock != nil {
		now = g.clock.Now()
	}
	entropy := ulid.Monotonic(newCryptoRandReader(), 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// newCryptoRandReader wraps crypto/rand as an io.Reader seed for the
// ULID monotonic entropy source; math/rand/v2 is used only for
// non-identifier jitter elsewhere (see internal/retry).
func newCryptoRandReader() *cryptoReader { return &cryptoReader{} }

type cryptoReader struct{}

func (cryptoReader) Read(p []byte) (int, error) { return rand.Read(p) }
