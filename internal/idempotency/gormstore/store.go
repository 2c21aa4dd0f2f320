package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/streamcred/streamcred/internal/idempotency/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db   *gorm.DB
	node *snowflake.Node
	log  *zap.Logger
}

func New(db *gorm.DB, node *snowflake.Node, log *zap.Logger) *Store {
	return &Store{
		db:   db,
		node: node,
		log:  log.Named("idempotency.gorm"),
	}
}

// Claim inserts the key with ON CONFLICT DO NOTHING. A zero RowsAffected
// means another delivery holds the key; the existing row's status tells
// whether that delivery finished.
func (s *Store) Claim(ctx context.Context, provider, providerEventID string) (domain.ClaimResult, error) {
	provider = strings.TrimSpace(provider)
	providerEventID = strings.TrimSpace(providerEventID)
	if provider == "" || providerEventID == "" {
		return domain.ClaimResult{}, errors.New("missing claim key")
	}

	record := domain.EventClaim{
		ID:              s.node.Generate(),
		Provider:        provider,
		ProviderEventID: providerEventID,
		Status:          domain.StatusClaimed,
		ClaimedAt:       time.Now().UTC(),
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(&record)
	if result.Error != nil {
		return domain.ClaimResult{}, result.Error
	}
	if result.RowsAffected > 0 {
		return domain.ClaimResult{Acquired: true}, nil
	}

	var existing domain.EventClaim
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The conflicting row vanished between insert and read.
			// Treat the key as claimed-but-unfinished and retry through.
			return domain.ClaimResult{}, nil
		}
		return domain.ClaimResult{}, err
	}

	return domain.ClaimResult{
		Committed: existing.Status == domain.StatusCommitted,
	}, nil
}

func (s *Store) Commit(ctx context.Context, provider, providerEventID string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&domain.EventClaim{}).
		Where("provider = ? AND provider_event_id = ?", strings.TrimSpace(provider), strings.TrimSpace(providerEventID)).
		Updates(map[string]any{
			"status":       domain.StatusCommitted,
			"committed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Warn("commit for unknown claim",
			zap.String("provider", provider),
			zap.String("provider_event_id", providerEventID),
		)
	}
	return nil
}
