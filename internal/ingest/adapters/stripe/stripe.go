package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
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
	return ingestdomain.ProviderStripe
}

func (a *Adapter) EventTypes() []string {
	return []string{"checkout.session.completed"}
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return ingestdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return ingestdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return ingestdomain.ErrInvalidSignature
}

// Timestamp reports the signed timestamp from the Stripe-Signature header.
func (a *Adapter) Timestamp(headers http.Header, payload []byte) (time.Time, error) {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return time.Time{}, ingestdomain.ErrInvalidSignature
	}
	timestamp, _, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return time.Time{}, ingestdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return time.Time{}, ingestdomain.ErrInvalidSignature
	}
	return time.Unix(unix, 0).UTC(), nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*ingestdomain.Notification, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ingestdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ingestdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	default:
		return nil, ingestdomain.ErrEventIgnored
	}
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*ingestdomain.Notification, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, ingestdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, ingestdomain.ErrInvalidEvent
	}

	notification := &ingestdomain.Notification{
		ProviderEventID: event.ID,
		EventType:       event.Type,
	}

	if !strings.EqualFold(strings.TrimSpace(session.PaymentStatus), "paid") {
		return notification, nil
	}
	if session.AmountTotal <= 0 {
		return notification, nil
	}

	userID, err := readMetadataString(session.Metadata, "user_id")
	if err != nil {
		return nil, ingestdomain.ErrInvalidPayload
	}

	occurredAt := timestamp(session.Created, event.Created)
	notification.Event = &ingestdomain.IngestedEvent{
		Provider:        ingestdomain.ProviderStripe,
		ProviderEventID: event.ID,
		Kind:            ingestdomain.KindCheckout,
		ProviderUserID:  userID,
		Magnitude:       session.AmountTotal,
		Currency:        strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}
	return notification, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func readMetadataString(metadata map[string]string, key string) (string, error) {
	value := strings.TrimSpace(metadata[key])
	if value == "" {
		return "", fmt.Errorf("missing metadata %q", key)
	}
	return value, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
