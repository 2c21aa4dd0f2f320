package adapters

import (
	"errors"
	"testing"

	"github.com/streamcred/streamcred/internal/ingest/adapters/stripe"
	"github.com/streamcred/streamcred/internal/ingest/adapters/trovo"
	"github.com/streamcred/streamcred/internal/ingest/adapters/twitch"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	stripeAdapter, err := stripe.New("whsec_test")
	require.NoError(t, err)
	twitchAdapter, err := twitch.New("twitch_secret")
	require.NoError(t, err)
	trovoAdapter, err := trovo.New("trovo_secret")
	require.NoError(t, err)

	registry := NewRegistry(stripeAdapter, twitchAdapter, trovoAdapter)

	assert.True(t, registry.ProviderExists("twitch"))
	assert.True(t, registry.ProviderExists("  Stripe "))
	assert.False(t, registry.ProviderExists("kick"))

	adapter, err := registry.Adapter("TROVO")
	require.NoError(t, err)
	assert.Equal(t, "trovo", adapter.Provider())

	_, err = registry.Adapter("kick")
	assert.True(t, errors.Is(err, ingestdomain.ErrProviderNotFound))

	assert.Len(t, registry.Providers(), 3)
}

func TestRegistrySkipsNilAdapters(t *testing.T) {
	registry := NewRegistry(nil)
	assert.Empty(t, registry.Providers())

	_, err := registry.Adapter("stripe")
	assert.True(t, errors.Is(err, ingestdomain.ErrProviderNotFound))
}

func TestEmptySecretsAreRejected(t *testing.T) {
	_, err := stripe.New("  ")
	assert.True(t, errors.Is(err, ingestdomain.ErrInvalidConfig))
	_, err = twitch.New("")
	assert.True(t, errors.Is(err, ingestdomain.ErrInvalidConfig))
	_, err = trovo.New("")
	assert.True(t, errors.Is(err, ingestdomain.ErrInvalidConfig))
}
