package twitch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
)

const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerSubscriptionType = "Twitch-Eventsub-Subscription-Type"

	messageTypeNotification = "notification"
	messageTypeVerification = "webhook_callback_verification"
	messageTypeRevocation   = "revocation"

	signaturePrefix = "sha256="
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
	return ingestdomain.ProviderTwitch
}

func (a *Adapter) EventTypes() []string {
	return []string{
		"channel.subscribe",
		"channel.subscription.gift",
		"channel.cheer",
		"channel.raid",
	}
}

// Verify checks the EventSub HMAC, computed over message id, timestamp
// and raw body.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	messageID := strings.TrimSpace(headers.Get(headerMessageID))
	messageTimestamp := strings.TrimSpace(headers.Get(headerMessageTimestamp))
	signature := strings.TrimSpace(headers.Get(headerMessageSignature))
	if messageID == "" || messageTimestamp == "" || signature == "" {
		return ingestdomain.ErrInvalidSignature
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return ingestdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(messageID))
	_, _ = mac.Write([]byte(messageTimestamp))
	_, _ = mac.Write(payload)
	expected := signaturePrefix + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ingestdomain.ErrInvalidSignature
	}
	return nil
}

// Timestamp reports the signed message timestamp.
func (a *Adapter) Timestamp(headers http.Header, payload []byte) (time.Time, error) {
	raw := strings.TrimSpace(headers.Get(headerMessageTimestamp))
	if raw == "" {
		return time.Time{}, ingestdomain.ErrInvalidSignature
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, ingestdomain.ErrInvalidSignature
	}
	return parsed.UTC(), nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*ingestdomain.Notification, error) {
	messageID := strings.TrimSpace(headers.Get(headerMessageID))
	if messageID == "" {
		return nil, ingestdomain.ErrInvalidEvent
	}

	switch strings.ToLower(strings.TrimSpace(headers.Get(headerMessageType))) {
	case messageTypeVerification:
		return a.parseChallenge(messageID, payload)
	case messageTypeRevocation:
		return &ingestdomain.Notification{
			ProviderEventID: messageID,
			EventType:       messageTypeRevocation,
		}, nil
	case messageTypeNotification:
	default:
		return nil, ingestdomain.ErrInvalidEvent
	}

	var envelope eventsubEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, ingestdomain.ErrInvalidPayload
	}

	eventType := strings.TrimSpace(headers.Get(headerSubscriptionType))
	if eventType == "" {
		eventType = strings.TrimSpace(envelope.Subscription.Type)
	}

	notification := &ingestdomain.Notification{
		ProviderEventID: messageID,
		EventType:       eventType,
	}

	occurredAt := time.Now().UTC()
	if ts, err := a.Timestamp(headers, payload); err == nil {
		occurredAt = ts
	}

	switch eventType {
	case "channel.subscribe":
		notification.Event = parseSubscribe(messageID, envelope.Event, payload, occurredAt)
	case "channel.subscription.gift":
		notification.Event = parseSubscriptionGift(messageID, envelope.Event, payload, occurredAt)
	case "channel.cheer":
		notification.Event = parseCheer(messageID, envelope.Event, payload, occurredAt)
	case "channel.raid":
		notification.Event = parseRaid(messageID, envelope.Event, payload, occurredAt)
	default:
		return nil, ingestdomain.ErrEventIgnored
	}

	return notification, nil
}

func (a *Adapter) parseChallenge(messageID string, payload []byte) (*ingestdomain.Notification, error) {
	var body struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, ingestdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(body.Challenge) == "" {
		return nil, ingestdomain.ErrInvalidEvent
	}
	return &ingestdomain.Notification{
		ProviderEventID: messageID,
		EventType:       messageTypeVerification,
		Challenge:       body.Challenge,
	}, nil
}

type eventsubEnvelope struct {
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
	Event eventsubEvent `json:"event"`
}

type eventsubEvent struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`

	Tier        string `json:"tier"`
	IsGift      bool   `json:"is_gift"`
	IsAnonymous bool   `json:"is_anonymous"`

	Total int64 `json:"total"`
	Bits  int64 `json:"bits"`

	FromBroadcasterUserID   string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserName string `json:"from_broadcaster_user_name"`
	Viewers                 int64  `json:"viewers"`
}

// Gifted subscriptions arrive twice, once as channel.subscribe with
// is_gift set and once as channel.subscription.gift. Only the gift
// notification grants, so the derived subscribe is acknowledged empty.
func parseSubscribe(messageID string, event eventsubEvent, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	if event.IsGift {
		return nil
	}
	if strings.TrimSpace(event.UserID) == "" {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTwitch,
		ProviderEventID:  messageID,
		Kind:             ingestdomain.KindSubscription,
		ProviderUserID:   event.UserID,
		ProviderUserName: event.UserName,
		Tier:             parseTier(event.Tier),
		Magnitude:        1,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

func parseSubscriptionGift(messageID string, event eventsubEvent, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	if event.IsAnonymous || strings.TrimSpace(event.UserID) == "" {
		return nil
	}
	total := event.Total
	if total <= 0 {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTwitch,
		ProviderEventID:  messageID,
		Kind:             ingestdomain.KindGiftSub,
		ProviderUserID:   event.UserID,
		ProviderUserName: event.UserName,
		Tier:             parseTier(event.Tier),
		Magnitude:        total,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

func parseCheer(messageID string, event eventsubEvent, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	if event.IsAnonymous || strings.TrimSpace(event.UserID) == "" {
		return nil
	}
	if event.Bits <= 0 {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTwitch,
		ProviderEventID:  messageID,
		Kind:             ingestdomain.KindCheer,
		ProviderUserID:   event.UserID,
		ProviderUserName: event.UserName,
		Magnitude:        event.Bits,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

func parseRaid(messageID string, event eventsubEvent, payload []byte, occurredAt time.Time) *ingestdomain.IngestedEvent {
	if strings.TrimSpace(event.FromBroadcasterUserID) == "" {
		return nil
	}
	if event.Viewers <= 0 {
		return nil
	}
	return &ingestdomain.IngestedEvent{
		Provider:         ingestdomain.ProviderTwitch,
		ProviderEventID:  messageID,
		Kind:             ingestdomain.KindRaid,
		ProviderUserID:   event.FromBroadcasterUserID,
		ProviderUserName: event.FromBroadcasterUserName,
		Magnitude:        event.Viewers,
		OccurredAt:       occurredAt,
		RawPayload:       payload,
	}
}

// parseTier maps the EventSub tier strings "1000", "2000" and "3000"
// to ordinals, defaulting unknown values to tier 1.
func parseTier(tier string) int {
	switch strings.TrimSpace(tier) {
	case "2000":
		return 2
	case "3000":
		return 3
	default:
		return 1
	}
}
