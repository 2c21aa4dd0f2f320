package reward

import (
	"errors"
	"fmt"

	"github.com/streamcred/streamcred/internal/config"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
	"go.uber.org/fx"
)

var ErrNoRule = errors.New("no reward rule for event")

// Grant is the computed reward for a single event.
type Grant struct {
	Coins      int64
	Experience int64
}

// Calculator maps events to grants using the active reward table. Each
// call captures the table once, so a hot reload mid-call cannot mix
// rules from two table versions.
type Calculator struct {
	holder *config.RewardTableHolder
}

func NewCalculator(holder *config.RewardTableHolder) *Calculator {
	return &Calculator{holder: holder}
}

var Module = fx.Module("reward",
	fx.Provide(NewCalculator),
)

func (c *Calculator) Compute(event *ingestdomain.IngestedEvent) (Grant, error) {
	if event == nil {
		return Grant{}, ErrNoRule
	}
	table := c.holder.Get()

	switch event.Provider {
	case ingestdomain.ProviderTwitch:
		return computeTwitch(table.Twitch, event)
	case ingestdomain.ProviderTrovo:
		return computeTrovo(table.Trovo, event)
	case ingestdomain.ProviderStripe:
		return computeStripe(table.Stripe, event)
	default:
		return Grant{}, fmt.Errorf("%w: provider %q", ErrNoRule, event.Provider)
	}
}

func computeTwitch(rules config.TwitchRewards, event *ingestdomain.IngestedEvent) (Grant, error) {
	switch event.Kind {
	case ingestdomain.KindSubscription:
		return flatGrant(rules.Subscription.ForTier(event.Tier)), nil
	case ingestdomain.KindGiftSub:
		return scaledGrant(rules.GiftSub.ForTier(event.Tier), event.Magnitude), nil
	case ingestdomain.KindCheer:
		return unitGrant(rules.Cheer, event.Magnitude), nil
	case ingestdomain.KindRaid:
		return unitGrant(rules.Raid, event.Magnitude), nil
	default:
		return Grant{}, fmt.Errorf("%w: twitch %q", ErrNoRule, event.Kind)
	}
}

func computeTrovo(rules config.TrovoRewards, event *ingestdomain.IngestedEvent) (Grant, error) {
	switch event.Kind {
	case ingestdomain.KindSubscription:
		return flatGrant(rules.Subscription.ForTier(event.Tier)), nil
	case ingestdomain.KindSpell:
		return unitGrant(rules.Spell, event.Magnitude), nil
	case ingestdomain.KindRaid:
		return unitGrant(rules.Raid, event.Magnitude), nil
	default:
		return Grant{}, fmt.Errorf("%w: trovo %q", ErrNoRule, event.Kind)
	}
}

func computeStripe(rules config.StripeRewards, event *ingestdomain.IngestedEvent) (Grant, error) {
	switch event.Kind {
	case ingestdomain.KindCheckout:
		return unitGrant(rules.Checkout, event.Magnitude), nil
	default:
		return Grant{}, fmt.Errorf("%w: stripe %q", ErrNoRule, event.Kind)
	}
}

func flatGrant(rule config.RewardRule) Grant {
	return Grant{Coins: rule.Coins, Experience: rule.Experience}
}

func scaledGrant(rule config.RewardRule, count int64) Grant {
	if count <= 0 {
		return Grant{}
	}
	return Grant{
		Coins:      rule.Coins * count,
		Experience: rule.Experience * count,
	}
}

// unitGrant rounds partial units down.
func unitGrant(rule config.UnitRule, magnitude int64) Grant {
	if rule.Unit <= 0 || magnitude <= 0 {
		return Grant{}
	}
	units := magnitude / rule.Unit
	return Grant{
		Coins:      rule.Coins * units,
		Experience: rule.Experience * units,
	}
}
