package replay

import (
	"errors"
	"testing"
	"time"

	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
)

func TestCheckWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewGuardAt(10*time.Minute, func() time.Time { return now })

	for _, offset := range []time.Duration{0, time.Minute, -time.Minute, 10 * time.Minute, -10 * time.Minute} {
		if err := guard.Check(now.Add(offset)); err != nil {
			t.Fatalf("offset %v: expected fresh, got %v", offset, err)
		}
	}
}

func TestCheckRejectsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard := NewGuardAt(10*time.Minute, func() time.Time { return now })

	for _, offset := range []time.Duration{11 * time.Minute, -11 * time.Minute, 24 * time.Hour} {
		err := guard.Check(now.Add(offset))
		if !errors.Is(err, ingestdomain.ErrStaleTimestamp) {
			t.Fatalf("offset %v: expected stale, got %v", offset, err)
		}
	}
}

func TestCheckRejectsZeroTime(t *testing.T) {
	guard := NewGuard(10 * time.Minute)
	if err := guard.Check(time.Time{}); !errors.Is(err, ingestdomain.ErrStaleTimestamp) {
		t.Fatalf("expected stale for zero time, got %v", err)
	}
}

func TestDefaultMaxSkew(t *testing.T) {
	guard := NewGuard(0)
	if guard.MaxSkew() != DefaultMaxSkew {
		t.Fatalf("expected default skew %v, got %v", DefaultMaxSkew, guard.MaxSkew())
	}
}
