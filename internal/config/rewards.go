package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RewardRule is a flat grant for a single event.
type RewardRule struct {
	Coins      int64 `mapstructure:"coins"`
	Experience int64 `mapstructure:"experience"`
}

// UnitRule grants Coins and Experience for every Unit of event magnitude.
// Partial units round down, so the computed grant is monotonic in magnitude.
type UnitRule struct {
	Unit       int64 `mapstructure:"unit"`
	Coins      int64 `mapstructure:"coins"`
	Experience int64 `mapstructure:"experience"`
}

// TierRules maps the closed subscription tier set {1,2,3} to grants.
type TierRules struct {
	Tier1 RewardRule `mapstructure:"tier1"`
	Tier2 RewardRule `mapstructure:"tier2"`
	Tier3 RewardRule `mapstructure:"tier3"`
}

// ForTier resolves a tier ordinal, falling back to tier 1.
func (t TierRules) ForTier(tier int) RewardRule {
	switch tier {
	case 2:
		return t.Tier2
	case 3:
		return t.Tier3
	default:
		return t.Tier1
	}
}

// RewardTable holds the per-provider, per-kind reward rules.
type RewardTable struct {
	Twitch TwitchRewards `mapstructure:"twitch"`
	Trovo  TrovoRewards  `mapstructure:"trovo"`
	Stripe StripeRewards `mapstructure:"stripe"`
}

type TwitchRewards struct {
	Subscription TierRules `mapstructure:"subscription"`
	GiftSub      TierRules `mapstructure:"giftSub"`
	Cheer        UnitRule  `mapstructure:"cheer"`
	Raid         UnitRule  `mapstructure:"raid"`
}

type TrovoRewards struct {
	Subscription TierRules `mapstructure:"subscription"`
	Spell        UnitRule  `mapstructure:"spell"`
	Raid         UnitRule  `mapstructure:"raid"`
}

type StripeRewards struct {
	// Checkout is keyed on the paid amount in minor units (cents).
	Checkout UnitRule `mapstructure:"checkout"`
}

func DefaultRewardTable() RewardTable {
	return RewardTable{
		Twitch: TwitchRewards{
			Subscription: TierRules{
				Tier1: RewardRule{Coins: 500, Experience: 250},
				Tier2: RewardRule{Coins: 1000, Experience: 500},
				Tier3: RewardRule{Coins: 2500, Experience: 1250},
			},
			GiftSub: TierRules{
				Tier1: RewardRule{Coins: 500, Experience: 250},
				Tier2: RewardRule{Coins: 1000, Experience: 500},
				Tier3: RewardRule{Coins: 2500, Experience: 1250},
			},
			Cheer: UnitRule{Unit: 100, Coins: 100, Experience: 50},
			Raid:  UnitRule{Unit: 1, Coins: 2, Experience: 1},
		},
		Trovo: TrovoRewards{
			Subscription: TierRules{
				Tier1: RewardRule{Coins: 400, Experience: 200},
				Tier2: RewardRule{Coins: 800, Experience: 400},
				Tier3: RewardRule{Coins: 2000, Experience: 1000},
			},
			Spell: UnitRule{Unit: 100, Coins: 80, Experience: 40},
			Raid:  UnitRule{Unit: 1, Coins: 2, Experience: 1},
		},
		Stripe: StripeRewards{
			Checkout: UnitRule{Unit: 100, Coins: 100, Experience: 50},
		},
	}
}

// RewardTableHolder stores the active reward table and hot-reloads it
// when the mounted rewards.yml changes.
type RewardTableHolder struct {
	current atomic.Value // holds RewardTable
}

func NewRewardTableHolder() (*RewardTableHolder, error) {
	v := viper.New()

	v.SetConfigName("rewards")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/streamcred/config")
	v.AddConfigPath("/etc/streamcred")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STREAMCRED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &RewardTableHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultRewardTable())
		return holder, nil
	}

	var table RewardTable
	if err := v.UnmarshalKey("rewards", &table); err != nil {
		return nil, err
	}
	if err := validateRewardTable(table); err != nil {
		return nil, err
	}
	holder.current.Store(table)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RewardTable
		if err := v.UnmarshalKey("rewards", &updated); err != nil {
			log.Printf("[reward-config] reload failed: %v", err)
			return
		}
		if err := validateRewardTable(updated); err != nil {
			log.Printf("[reward-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reward-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticRewardTableHolder wraps a fixed table, for tests.
func NewStaticRewardTableHolder(table RewardTable) *RewardTableHolder {
	holder := &RewardTableHolder{}
	holder.current.Store(table)
	return holder
}

func (h *RewardTableHolder) Get() RewardTable {
	return h.current.Load().(RewardTable)
}

func validateRewardTable(table RewardTable) error {
	units := []int64{
		table.Twitch.Cheer.Unit,
		table.Twitch.Raid.Unit,
		table.Trovo.Spell.Unit,
		table.Trovo.Raid.Unit,
		table.Stripe.Checkout.Unit,
	}
	for _, unit := range units {
		if unit <= 0 {
			return errors.New("rewards: unit rules require a positive unit")
		}
	}
	return nil
}
