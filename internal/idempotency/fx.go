package idempotency

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/streamcred/streamcred/internal/config"
	"github.com/streamcred/streamcred/internal/idempotency/domain"
	"github.com/streamcred/streamcred/internal/idempotency/gormstore"
	"github.com/streamcred/streamcred/internal/idempotency/redisstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("idempotency",
	fx.Provide(provideStore),
)

type StoreParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Log       *zap.Logger
}

func provideStore(p StoreParams) (domain.Store, error) {
	switch p.Config.ClaimStore {
	case "", "gorm":
		return gormstore.New(p.DB, p.Node, p.Log), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     p.Config.RedisAddr,
			Password: p.Config.RedisPassword,
			DB:       p.Config.RedisDB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		return redisstore.New(client, p.Config.ClaimTTL, p.Log), nil
	default:
		return nil, fmt.Errorf("unsupported claim store %q", p.Config.ClaimStore)
	}
}
