package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/streamcred/streamcred/internal/idempotency/domain"
	"go.uber.org/zap"
)

type Store struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// New builds a redis-backed claim store. Claim keys never expire unless
// a positive ttl is given; expiry forfeits replay protection for
// deliveries older than the ttl, so the default keeps claims forever.
func New(client *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if ttl < 0 {
		ttl = 0
	}
	return &Store{
		client: client,
		ttl:    ttl,
		log:    log.Named("idempotency.redis"),
	}
}

// Claim uses SETNX so exactly one delivery wins the key. Losers read the
// stored status to learn whether the winner finished.
func (s *Store) Claim(ctx context.Context, provider, providerEventID string) (domain.ClaimResult, error) {
	key, err := claimKey(provider, providerEventID)
	if err != nil {
		return domain.ClaimResult{}, err
	}

	acquired, err := s.client.SetNX(ctx, key, domain.StatusClaimed, s.ttl).Result()
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if acquired {
		return domain.ClaimResult{Acquired: true}, nil
	}

	status, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Key vanished between SETNX and GET. Retry through.
			return domain.ClaimResult{}, nil
		}
		return domain.ClaimResult{}, err
	}

	return domain.ClaimResult{
		Committed: status == domain.StatusCommitted,
	}, nil
}

func (s *Store) Commit(ctx context.Context, provider, providerEventID string) error {
	key, err := claimKey(provider, providerEventID)
	if err != nil {
		return err
	}
	expiration := time.Duration(redis.KeepTTL)
	if s.ttl == 0 {
		expiration = 0
	}
	return s.client.Set(ctx, key, domain.StatusCommitted, expiration).Err()
}

func claimKey(provider, providerEventID string) (string, error) {
	provider = strings.TrimSpace(provider)
	providerEventID = strings.TrimSpace(providerEventID)
	if provider == "" || providerEventID == "" {
		return "", errors.New("missing claim key")
	}
	return fmt.Sprintf("streamcred:claim:%s:%s", provider, providerEventID), nil
}
