package trovo

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

const testSecret = "trovo_secret"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event_id":"tr-1","event_type":"channel.spell","data":{}}`)
	headers := signedHeaders(testSecret, payload, time.Now().Unix())

	adapter := &Adapter{webhookSecret: testSecret}
	if err := adapter.Verify(context.Background(), payload, headers); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	headers = signedHeaders("wrong", payload, time.Now().Unix())
	if err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, ingestdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestTimestamp(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}
	now := time.Now().Unix()
	headers := signedHeaders(testSecret, []byte(`{}`), now)

	ts, err := adapter.Timestamp(headers, nil)
	if err != nil {
		t.Fatalf("timestamp: %v", err)
	}
	if ts.Unix() != now {
		t.Fatalf("expected %d, got %d", now, ts.Unix())
	}

	headers.Del(headerTimestamp)
	if _, err := adapter.Timestamp(headers, nil); err == nil {
		t.Fatalf("expected error for missing timestamp header")
	}
}

func TestParseSubscriptionTiers(t *testing.T) {
	tests := []struct {
		tier     string
		wantTier int
	}{
		{tier: "Tier 1", wantTier: 1},
		{tier: "tier2", wantTier: 2},
		{tier: "Tier 3", wantTier: 3},
		{tier: "super duper", wantTier: 1},
	}

	adapter := &Adapter{webhookSecret: testSecret}
	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			payload := eventPayload(t, "tr-sub", "channel.subscription", map[string]any{
				"user_id":   "v1",
				"user_name": "viewer",
				"sub_tier":  tt.tier,
			})
			notification, err := adapter.Parse(context.Background(), payload, http.Header{})
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if notification.Event == nil {
				t.Fatalf("expected event")
			}
			if notification.Event.Tier != tt.wantTier {
				t.Fatalf("expected tier %d, got %d", tt.wantTier, notification.Event.Tier)
			}
		})
	}
}

func TestParseSpell(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}

	payload := eventPayload(t, "tr-spell", "channel.spell", map[string]any{
		"user_id":    "v2",
		"user_name":  "caster",
		"spell_name": "Stay Safe",
		"elixir":     500,
	})
	notification, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	event := notification.Event
	if event == nil || event.Kind != ingestdomain.KindSpell {
		t.Fatalf("expected spell event, got %+v", event)
	}
	if event.Magnitude != 500 {
		t.Fatalf("expected 500 elixir, got %d", event.Magnitude)
	}

	for _, elixir := range []int64{0, -10} {
		payload := eventPayload(t, "tr-spell-bad", "channel.spell", map[string]any{
			"user_id": "v2",
			"elixir":  elixir,
		})
		notification, err := adapter.Parse(context.Background(), payload, http.Header{})
		if err != nil {
			t.Fatalf("parse elixir %d: %v", elixir, err)
		}
		if notification.Event != nil {
			t.Fatalf("elixir %d must not grant", elixir)
		}
	}
}

func TestParseRaid(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}

	payload := eventPayload(t, "tr-raid", "channel.raid", map[string]any{
		"raider_id":   "r1",
		"raider_name": "raider",
		"viewers":     64,
	})
	notification, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if notification.Event == nil || notification.Event.Magnitude != 64 {
		t.Fatalf("expected raid with 64 viewers, got %+v", notification.Event)
	}
}

func TestParseRejectsMissingEventID(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}
	payload := []byte(`{"event_type":"channel.spell","data":{"user_id":"v1","elixir":10}}`)

	if _, err := adapter.Parse(context.Background(), payload, http.Header{}); !errors.Is(err, ingestdomain.ErrInvalidEvent) {
		t.Fatalf("expected invalid event, got %v", err)
	}
}

func TestParseIgnoresUnknownType(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}
	payload := eventPayload(t, "tr-chat", "channel.chat", map[string]any{"user_id": "v1"})

	if _, err := adapter.Parse(context.Background(), payload, http.Header{}); !errors.Is(err, ingestdomain.ErrEventIgnored) {
		t.Fatalf("expected event ignored, got %v", err)
	}
}

func signedHeaders(secret string, payload []byte, timestamp int64) http.Header {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)

	headers := http.Header{}
	headers.Set(headerSignature, hex.EncodeToString(mac.Sum(nil)))
	headers.Set(headerTimestamp, fmt.Sprintf("%d", timestamp))
	return headers
}

func eventPayload(t *testing.T, eventID, eventType string, data map[string]any) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"event_id":   eventID,
		"event_type": eventType,
		"data":       data,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}
