package replay

import (
	"time"

	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
)

const DefaultMaxSkew = 10 * time.Minute

// Guard rejects deliveries whose provider-claimed timestamp drifts too
// far from the server clock, in either direction.
type Guard struct {
	maxSkew time.Duration
	now     func() time.Time
}

func NewGuard(maxSkew time.Duration) *Guard {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &Guard{maxSkew: maxSkew, now: time.Now}
}

// NewGuardAt pins the guard's clock, for tests.
func NewGuardAt(maxSkew time.Duration, now func() time.Time) *Guard {
	guard := NewGuard(maxSkew)
	if now != nil {
		guard.now = now
	}
	return guard
}

func (g *Guard) MaxSkew() time.Duration {
	return g.maxSkew
}

// Check returns ErrStaleTimestamp when the claimed delivery time is
// outside the allowed window around now.
func (g *Guard) Check(claimed time.Time) error {
	if claimed.IsZero() {
		return ingestdomain.ErrStaleTimestamp
	}
	drift := g.now().Sub(claimed)
	if drift < 0 {
		drift = -drift
	}
	if drift > g.maxSkew {
		return ingestdomain.ErrStaleTimestamp
	}
	return nil
}
