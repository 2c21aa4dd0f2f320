package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusClaimed   = "claimed"
	StatusCommitted = "committed"
)

type EventClaim struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider        string       `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_event_claims_provider_event"`
	ProviderEventID string       `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:idx_event_claims_provider_event"`
	Status          string       `json:"status" gorm:"type:text;not null"`
	ClaimedAt       time.Time    `json:"claimed_at" gorm:"not null"`
	CommittedAt     *time.Time   `json:"committed_at"`
}

func (EventClaim) TableName() string { return "event_claims" }

// ClaimResult reports the outcome of a claim attempt. When Acquired is
// false and Committed is false, an earlier delivery claimed the key but
// never finished; the caller retries the work and relies on downstream
// uniqueness to stay single-shot.
type ClaimResult struct {
	Acquired  bool
	Committed bool
}

// Store is the idempotency ledger over (provider, provider_event_id).
type Store interface {
	Claim(ctx context.Context, provider, providerEventID string) (ClaimResult, error)
	Commit(ctx context.Context, provider, providerEventID string) error
}
