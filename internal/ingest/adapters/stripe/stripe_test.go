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
	"testing"
	"time"

	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ingestdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, ingestdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed"}`)
	header := buildSignatureHeader(secret, payload, time.Now().Unix())

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	tampered := []byte(`{"id":"evt_123","type":"checkout.session.completed","amount":1}`)
	if err := adapter.Verify(context.Background(), tampered, reqHeader); !errors.Is(err, ingestdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for tampered payload, got %v", err)
	}
}

func TestTimestamp(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{}`)
	now := time.Now().Unix()

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildSignatureHeader(secret, payload, now))

	adapter := &Adapter{webhookSecret: secret}
	ts, err := adapter.Timestamp(reqHeader, payload)
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if ts.Unix() != now {
		t.Fatalf("expected timestamp %d, got %d", now, ts.Unix())
	}
}

func TestParseCheckoutSession(t *testing.T) {
	created := time.Now().UTC().Unix()
	payload := checkoutPayload(t, "evt_1", "paid", 1000, map[string]string{"user_id": "42"}, created)

	adapter := &Adapter{webhookSecret: "whsec_test"}
	notification, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if notification.ProviderEventID != "evt_1" {
		t.Fatalf("expected event id evt_1, got %s", notification.ProviderEventID)
	}
	event := notification.Event
	if event == nil {
		t.Fatalf("expected event")
	}
	if event.Kind != ingestdomain.KindCheckout {
		t.Fatalf("expected kind checkout, got %s", event.Kind)
	}
	if event.Magnitude != 1000 {
		t.Fatalf("expected magnitude 1000, got %d", event.Magnitude)
	}
	if event.ProviderUserID != "42" {
		t.Fatalf("expected user 42, got %s", event.ProviderUserID)
	}
	if event.Currency != "USD" {
		t.Fatalf("expected currency USD, got %s", event.Currency)
	}
}

func TestParseUnpaidSessionIsEmpty(t *testing.T) {
	payload := checkoutPayload(t, "evt_2", "unpaid", 1000, map[string]string{"user_id": "42"}, time.Now().Unix())

	adapter := &Adapter{webhookSecret: "whsec_test"}
	notification, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if notification.Event != nil {
		t.Fatalf("expected no event for unpaid session")
	}
}

func TestParseZeroAmountIsEmpty(t *testing.T) {
	payload := checkoutPayload(t, "evt_3", "paid", 0, map[string]string{"user_id": "42"}, time.Now().Unix())

	adapter := &Adapter{webhookSecret: "whsec_test"}
	notification, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if notification.Event != nil {
		t.Fatalf("expected no event for zero amount")
	}
}

func TestParseMissingUserIDFails(t *testing.T) {
	payload := checkoutPayload(t, "evt_4", "paid", 1000, nil, time.Now().Unix())

	adapter := &Adapter{webhookSecret: "whsec_test"}
	if _, err := adapter.Parse(context.Background(), payload, http.Header{}); !errors.Is(err, ingestdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestParseIgnoresUnknownEventType(t *testing.T) {
	payload := []byte(`{"id":"evt_5","type":"invoice.paid","data":{"object":{}}}`)

	adapter := &Adapter{webhookSecret: "whsec_test"}
	if _, err := adapter.Parse(context.Background(), payload, http.Header{}); !errors.Is(err, ingestdomain.ErrEventIgnored) {
		t.Fatalf("expected event ignored, got %v", err)
	}
}

func buildSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signed := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutPayload(t *testing.T, eventID, paymentStatus string, amount int64, metadata map[string]string, created int64) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "checkout.session.completed",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":             "cs_1",
				"amount_total":   amount,
				"currency":       "usd",
				"payment_status": paymentStatus,
				"created":        created,
				"metadata":       metadata,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}
