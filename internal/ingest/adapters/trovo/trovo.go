package trovo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
)

const (
	headerSignature = "X-Trovo-Signature"
	headerTimestamp = "X-Trovo-Timestamp"
)

func New(webhookSecret string) (*Adapter, error) {
	webhookSecret = strings.TrimSpace(webhookSecret)
	if webhookSecret == "" {
		return nil, ingestdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: webhookSecret}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Provider() string {
	return ingestdomain.ProviderTrovo
}

func (a *Adapter) EventTypes() []string {
	return []string{
		"channel.subscription",
		"channel.spell",
		"channel.raid",
	}
}

// Verify checks the hex HMAC computed over the raw body alone. The
// timestamp is not signed, so the replay guard carries the staleness
// check for this provider.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(headerSignature))
	if signature == "" {
		return ingestdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ingestdomain.ErrInvalidSignature
	}
	return nil
}

// Timestamp reports the unix timestamp header.
func (a *Adapter) Timestamp(headers http.Header, payload []byte) (time.Time, error) {
	raw := strings.TrimSpace(headers.Get(headerTimestamp))
	if raw == "" {
		return time.Time{}, ingestdomain.ErrStaleTimestamp
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, ingestdomain.ErrStaleTimestamp
	}
	return time.Unix(unix, 0).UTC(), nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*ingestdomain.Notification, error) {
	var envelope trovoEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, ingestdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.EventID) == "" {
		return nil, ingestdomain.ErrInvalidEvent
	}

	notification := &ingestdomain.Notification{
		ProviderEventID: envelope.EventID,
		EventType:       envelope.EventType,
	}

	occurredAt := time.Now().UTC()
	if ts, err := a.Timestamp(headers, payload); err == nil {
		occurredAt = ts
	}

	switch strings.TrimSpace(envelope.EventType) {
	case "channel.subscription":
		notification.Event = parseSubscription(envelope, payload, occurredAt)
	case "channel.spell":
		notification.Event = parseSpell(envelope, payload, occurredAt)
	case "channel.raid":
		notification.Event = parseRaid(envelope, payload, occurredAt)
	default:
		return nil, ingestdomain.ErrEventIgnored
	}

	return notification, nil
}

type trovoEnvelope struct {
	EventID   string     `json:"event_id"`
	EventType string     `json:"event_type"`
	Data      trovoEvent `json:"data"`
}

type trovoEvent struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`

	SubTier string `json:"sub_tier"`

	SpellName string `json:"spell_name"`
	Elixir    int64  `json:"elixir"`

	RaiderID   string `json:"raider_id"`
	RaiderName string `json:"raider_name"`
	Viewers    int64  `json:"viewers"`
}

func parseSubscription(envelope trovoEnvelope, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	event := envelope.Data
	if strings.TrimSpace(event.UserID) == "" {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTrovo,
		ProviderEventID:  envelope.EventID,
		Kind:             ingestdomain.KindSubscription,
		ProviderUserID:   event.UserID,
		ProviderUserName: event.UserName,
		Tier:             parseTier(event.SubTier),
		Magnitude:        1,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

func parseSpell(envelope trovoEnvelope, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	event := envelope.Data
	if strings.TrimSpace(event.UserID) == "" {
		return nil
	}
	if event.Elixir <= 0 {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTrovo,
		ProviderEventID:  envelope.EventID,
		Kind:             ingestdomain.KindSpell,
		ProviderUserID:   event.UserID,
		ProviderUserName: event.UserName,
		Magnitude:        event.Elixir,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

func parseRaid(envelope trovoEnvelope, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	event := envelope.Data
	if strings.TrimSpace(event.RaiderID) == "" {
		return nil
	}
	if event.Viewers <= 0 {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTrovo,
		ProviderEventID:  envelope.EventID,
		Kind:             ingestdomain.KindRaid,
		ProviderUserID:   event.RaiderID,
		ProviderUserName: event.RaiderName,
		Magnitude:        event.Viewers,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

// parseTier maps Trovo's free-text tier labels to ordinals, defaulting
// unknown labels to tier 1.
func parseTier(tier string) int {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "tier 2", "tier2", "2":
		return 2
	case "tier 3", "tier3", "3":
		return 3
	default:
		return 1
	}
}
