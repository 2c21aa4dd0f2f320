package ingest

import (
	"github.com/streamcred/streamcred/internal/config"
	"github.com/streamcred/streamcred/internal/ingest/adapters"
	"github.com/streamcred/streamcred/internal/ingest/adapters/stripe"
	"github.com/streamcred/streamcred/internal/ingest/adapters/trovo"
	"github.com/streamcred/streamcred/internal/ingest/adapters/twitch"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
	"github.com/streamcred/streamcred/internal/ingest/replay"
	ingestservice "github.com/streamcred/streamcred/internal/ingest/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ingest.service",
	fx.Provide(provideRegistry),
	fx.Provide(provideReplayGuard),
	fx.Provide(ingestservice.NewService),
)

func provideRegistry(cfg config.Config, log *zap.Logger) *adapters.Registry {
	registered := []ingestdomain.ProviderAdapter{}

	if adapter, err := stripe.New(cfg.StripeWebhookSecret); err == nil {
		registered = append(registered, adapter)
	} else {
		log.Warn("stripe webhooks disabled", zap.Error(err))
	}
	if adapter, err := twitch.New(cfg.TwitchWebhookSecret); err == nil {
		registered = append(registered, adapter)
	} else {
		log.Warn("twitch webhooks disabled", zap.Error(err))
	}
	if adapter, err := trovo.New(cfg.TrovoWebhookSecret); err == nil {
		registered = append(registered, adapter)
	} else {
		log.Warn("trovo webhooks disabled", zap.Error(err))
	}

	return adapters.NewRegistry(registered...)
}

func provideReplayGuard(cfg config.Config) *replay.Guard {
	return replay.NewGuard(cfg.ReplayMaxSkew)
}
