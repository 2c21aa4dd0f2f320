package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/streamcred/streamcred/internal/account/domain"
	"github.com/streamcred/streamcred/internal/config"
	idemdomain "github.com/streamcred/streamcred/internal/idempotency/domain"
	"github.com/streamcred/streamcred/internal/ingest/adapters"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
	"github.com/streamcred/streamcred/internal/ingest/replay"
	obsmetrics "github.com/streamcred/streamcred/internal/observability/metrics"
	"github.com/streamcred/streamcred/internal/reward"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeAcknowledged = "acknowledged"
	OutcomeChallenge    = "challenge"
	OutcomeUnmatched    = "unmatched"
)

// Outcome is the terminal state of one webhook delivery. Every outcome
// maps to a 2xx response; rejections surface as errors instead.
type Outcome struct {
	Status string

	// Challenge must be echoed back as the response body verbatim.
	Challenge string

	// Coins and Experience carry the granted deltas when Status is
	// applied, zero otherwise.
	Coins      int64
	Experience int64
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Adapters   *adapters.Registry
	Replay     *replay.Guard
	Claims     idemdomain.Store
	Calculator *reward.Calculator
	AccountSvc accountdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	adapters      *adapters.Registry
	replay        *replay.Guard
	claims        idemdomain.Store
	calculator    *reward.Calculator
	accountSvc    accountdomain.Service
	obsMetrics    *obsmetrics.Metrics
	creditTimeout time.Duration
}

func NewService(p Params) *Service {
	creditTimeout := p.Cfg.CreditTimeout
	if creditTimeout <= 0 {
		creditTimeout = 5 * time.Second
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("ingest.service"),
		genID:         p.GenID,
		adapters:      p.Adapters,
		replay:        p.Replay,
		claims:        p.Claims,
		calculator:    p.Calculator,
		accountSvc:    p.AccountSvc,
		obsMetrics:    p.ObsMetrics,
		creditTimeout: creditTimeout,
	}
}

// EventTypes lists the event types the named provider's adapter handles.
func (s *Service) EventTypes(provider string) ([]string, error) {
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}
	return adapter.EventTypes(), nil
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return nil, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.recordDelivery(ctx, provider, "rejected_signature")
		return nil, err
	}

	if err := s.checkReplay(adapter, headers, payload); err != nil {
		s.recordDelivery(ctx, provider, "rejected_stale")
		return nil, err
	}

	notification, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		if errors.Is(err, ingestdomain.ErrEventIgnored) {
			s.recordDelivery(ctx, provider, OutcomeIgnored)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordEventIgnored(ctx, provider, eventTypeFromHeaders(headers))
			}
			return &Outcome{Status: OutcomeIgnored}, nil
		}
		s.log.Warn("rejected malformed payload",
			zap.String("provider", provider),
			zap.ByteString("payload", payload),
			zap.Error(err),
		)
		s.recordDelivery(ctx, provider, "rejected_payload")
		return nil, err
	}

	if notification.Challenge != "" {
		s.recordDelivery(ctx, provider, OutcomeChallenge)
		return &Outcome{Status: OutcomeChallenge, Challenge: notification.Challenge}, nil
	}

	// The claim is taken before the grant decision so duplicates of
	// empty deliveries short-circuit too.
	claim, err := s.claims.Claim(ctx, provider, notification.ProviderEventID)
	if err != nil {
		return nil, err
	}
	if claim.Committed {
		s.recordDelivery(ctx, provider, OutcomeDuplicate)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordClaimConflict(ctx, provider)
		}
		return &Outcome{Status: OutcomeDuplicate}, nil
	}
	if !claim.Acquired {
		// An earlier delivery claimed the key but never committed.
		// Process again; the wallet transaction uniqueness keeps the
		// grant single-shot.
		s.log.Info("reprocessing uncommitted claim",
			zap.String("provider", provider),
			zap.String("provider_event_id", notification.ProviderEventID),
		)
	}

	// Client disconnects must not abandon a claimed delivery halfway.
	ctx = context.WithoutCancel(ctx)

	if notification.Event == nil {
		return s.finishWithoutGrant(ctx, provider, notification)
	}

	return s.process(ctx, provider, notification)
}

func (s *Service) checkReplay(adapter ingestdomain.ProviderAdapter, headers http.Header, payload []byte) error {
	claimed, err := adapter.Timestamp(headers, payload)
	if err != nil {
		return ingestdomain.ErrStaleTimestamp
	}
	return s.replay.Check(claimed)
}

func (s *Service) finishWithoutGrant(ctx context.Context, provider string, notification *ingestdomain.Notification) (*Outcome, error) {
	if err := s.claims.Commit(ctx, provider, notification.ProviderEventID); err != nil {
		return nil, err
	}
	s.recordDelivery(ctx, provider, OutcomeAcknowledged)
	return &Outcome{Status: OutcomeAcknowledged}, nil
}

func (s *Service) process(ctx context.Context, provider string, notification *ingestdomain.Notification) (*Outcome, error) {
	event := notification.Event

	accountID, err := s.accountSvc.Resolve(ctx, event.Provider, event.ProviderUserID, event.ProviderUserName)
	if err != nil {
		if errors.Is(err, accountdomain.ErrUnknownUser) {
			// A paid event naming a nonexistent account cannot be
			// retried into correctness. Acknowledge the delivery and
			// leave the claim uncommitted for the audit trail.
			s.log.Error("event references unknown account",
				zap.String("provider", provider),
				zap.String("provider_event_id", event.ProviderEventID),
				zap.String("provider_user_id", event.ProviderUserID),
			)
			s.recordDelivery(ctx, provider, OutcomeUnmatched)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordCreditFailure(ctx, provider, "unknown_user")
			}
			return &Outcome{Status: OutcomeUnmatched}, nil
		}
		return nil, err
	}

	grant, err := s.calculator.Compute(event)
	if err != nil {
		return nil, err
	}
	if grant.Coins == 0 && grant.Experience == 0 {
		return s.finishWithoutGrant(ctx, provider, notification)
	}

	creditCtx, cancel := context.WithTimeout(ctx, s.creditTimeout)
	defer cancel()

	result, err := s.accountSvc.Credit(creditCtx, accountdomain.CreditRequest{
		AccountID:      accountID,
		IdempotencyKey: creditKey(provider, event.ProviderEventID),
		Provider:       provider,
		Kind:           event.Kind,
		Coins:          grant.Coins,
		Experience:     grant.Experience,
	})
	if err != nil {
		s.recordDelivery(ctx, provider, "credit_failed")
		if s.obsMetrics != nil {
			s.obsMetrics.RecordCreditFailure(ctx, provider, "credit_error")
		}
		return nil, fmt.Errorf("%w: %v", accountdomain.ErrCreditUnavailable, err)
	}

	s.recordEvent(ctx, accountID, notification, event)

	if err := s.claims.Commit(ctx, provider, event.ProviderEventID); err != nil {
		return nil, err
	}

	if !result.Applied {
		s.recordDelivery(ctx, provider, OutcomeDuplicate)
		return &Outcome{Status: OutcomeDuplicate}, nil
	}

	s.recordDelivery(ctx, provider, OutcomeApplied)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCreditApplied(ctx, provider, event.Kind)
	}
	return &Outcome{
		Status:     OutcomeApplied,
		Coins:      grant.Coins,
		Experience: grant.Experience,
	}, nil
}

// recordEvent persists the audit row. Failures are logged, not returned;
// the grant already landed.
func (s *Service) recordEvent(ctx context.Context, accountID snowflake.ID, notification *ingestdomain.Notification, event *ingestdomain.IngestedEvent) {
	now := time.Now().UTC()
	payload := event.RawPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	record := ingestdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       notification.EventType,
		Kind:            event.Kind,
		AccountID:       accountID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
		ProcessedAt:     &now,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.log.Warn("failed to persist event record",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Error(err),
		)
	}
}

func (s *Service) recordDelivery(ctx context.Context, provider, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordWebhookDelivery(ctx, provider, outcome)
}

func creditKey(provider, providerEventID string) string {
	return fmt.Sprintf("%s:%s", provider, providerEventID)
}

func eventTypeFromHeaders(headers http.Header) string {
	if v := strings.TrimSpace(headers.Get("Twitch-Eventsub-Subscription-Type")); v != "" {
		return v
	}
	return "unknown"
}
