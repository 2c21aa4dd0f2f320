package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ProviderStripe = "stripe"
	ProviderTwitch = "twitch"
	ProviderTrovo  = "trovo"
)

const (
	KindSubscription = "subscription"
	KindGiftSub      = "gift_sub"
	KindCheer        = "cheer"
	KindRaid         = "raid"
	KindSpell        = "spell"
	KindCheckout     = "checkout"
)

// IngestedEvent is the canonical monetization event parsed by adapters.
type IngestedEvent struct {
	Provider        string
	ProviderEventID string
	Kind            string

	// ProviderUserID identifies the acting user in the provider's namespace.
	// For stripe checkouts it carries the internal user id from metadata.
	ProviderUserID   string
	ProviderUserName string

	// Tier is the subscription tier ordinal {1,2,3}; zero for non-tiered kinds.
	Tier int

	// Magnitude is the kind-specific quantity: bits for cheers, elixir for
	// spells, viewers for raids, minor currency units for checkouts, and 1
	// for plain subscriptions.
	Magnitude int64
	Currency  string

	OccurredAt time.Time
	RawPayload []byte
}

// Notification is a verified provider delivery. Event is nil when the
// delivery must be acknowledged without granting anything.
type Notification struct {
	ProviderEventID string
	EventType       string

	// Challenge carries a provider handshake token that must be echoed
	// back verbatim instead of processing the delivery.
	Challenge string

	Event *IngestedEvent
}

// ProviderAdapter verifies and normalizes deliveries from one provider.
type ProviderAdapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Timestamp reports the provider-claimed delivery time used by the
	// replay guard.
	Timestamp(headers http.Header, payload []byte) (time.Time, error)
	Parse(ctx context.Context, payload []byte, headers http.Header) (*Notification, error)
	EventTypes() []string
}

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;index"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Kind            string         `json:"kind" gorm:"type:text;not null"`
	AccountID       snowflake.ID   `json:"account_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "ingested_events" }
