package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/streamcred/streamcred/internal/account/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.Wallet{},
		&accountdomain.WalletTransaction{},
		&accountdomain.PlatformLink{},
	)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := &Service{db: db, log: zap.NewNop(), genID: node}
	return svc, db
}

func seedAccount(t *testing.T, db *gorm.DB, svc *Service) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	account := accountdomain.Account{
		ID:          svc.genID.Generate(),
		DisplayName: "payer",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&account).Error)
	wallet := accountdomain.Wallet{AccountID: account.ID, UpdatedAt: now}
	require.NoError(t, db.Create(&wallet).Error)
	return account.ID
}

func TestResolveProvisionsViewer(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	accountID, err := svc.Resolve(ctx, "twitch", "u100", "viewer")
	require.NoError(t, err)
	require.NotZero(t, accountID)

	again, err := svc.Resolve(ctx, "twitch", "u100", "viewer")
	require.NoError(t, err)
	require.Equal(t, accountID, again, "mapping must be stable")

	var wallet accountdomain.Wallet
	require.NoError(t, db.First(&wallet, "account_id = ?", accountID).Error, "expected wallet provisioned")

	var count int64
	db.Model(&accountdomain.Account{}).Count(&count)
	require.EqualValues(t, 1, count)
}

func TestResolveSameUserAcrossProviders(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	twitchID, err := svc.Resolve(ctx, "twitch", "u1", "a")
	require.NoError(t, err)
	trovoID, err := svc.Resolve(ctx, "trovo", "u1", "a")
	require.NoError(t, err)
	require.NotEqual(t, twitchID, trovoID, "provider namespaces must not collide")
}

func TestResolveStripeRequiresExistingAccount(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "stripe", "999999", "")
	require.ErrorIs(t, err, accountdomain.ErrUnknownUser)
	_, err = svc.Resolve(ctx, "stripe", "not-a-number", "")
	require.ErrorIs(t, err, accountdomain.ErrUnknownUser)

	accountID := seedAccount(t, db, svc)
	resolved, err := svc.Resolve(ctx, "stripe", accountID.String(), "")
	require.NoError(t, err)
	require.Equal(t, accountID, resolved)

	var count int64
	db.Model(&accountdomain.Account{}).Count(&count)
	require.EqualValues(t, 1, count, "stripe resolve must never provision")
}

func TestCreditAppliesOnce(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	accountID := seedAccount(t, db, svc)

	req := accountdomain.CreditRequest{
		AccountID:      accountID,
		IdempotencyKey: "twitch:msg-1",
		Provider:       "twitch",
		Kind:           "cheer",
		Coins:          100,
		Experience:     50,
	}

	result, err := svc.Credit(ctx, req)
	require.NoError(t, err)
	require.True(t, result.Applied)

	result, err = svc.Credit(ctx, req)
	require.NoError(t, err)
	require.False(t, result.Applied, "duplicate credit must be a no-op")

	var wallet accountdomain.Wallet
	require.NoError(t, db.First(&wallet, "account_id = ?", accountID).Error)
	require.EqualValues(t, 100, wallet.Coins)
	require.EqualValues(t, 50, wallet.Experience)
}

func TestCreditAccumulatesDistinctKeys(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	accountID := seedAccount(t, db, svc)

	for i := 0; i < 3; i++ {
		_, err := svc.Credit(ctx, accountdomain.CreditRequest{
			AccountID:      accountID,
			IdempotencyKey: fmt.Sprintf("twitch:msg-%d", i),
			Provider:       "twitch",
			Kind:           "cheer",
			Coins:          100,
			Experience:     50,
		})
		require.NoError(t, err)
	}

	var wallet accountdomain.Wallet
	require.NoError(t, db.First(&wallet, "account_id = ?", accountID).Error)
	require.EqualValues(t, 300, wallet.Coins)
	require.EqualValues(t, 150, wallet.Experience)
}

func TestCreditConcurrentSameKey(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	accountID := seedAccount(t, db, svc)

	const workers = 10
	var wg sync.WaitGroup
	applied := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Credit(ctx, accountdomain.CreditRequest{
				AccountID:      accountID,
				IdempotencyKey: "twitch:contested",
				Provider:       "twitch",
				Kind:           "raid",
				Coins:          10,
				Experience:     5,
			})
			if err != nil {
				t.Errorf("credit: %v", err)
				return
			}
			applied <- result.Applied
		}()
	}
	wg.Wait()
	close(applied)

	wins := 0
	for ok := range applied {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins, "exactly one credit must apply")

	var wallet accountdomain.Wallet
	require.NoError(t, db.First(&wallet, "account_id = ?", accountID).Error)
	require.EqualValues(t, 10, wallet.Coins)
	require.EqualValues(t, 5, wallet.Experience)
}

func TestCreditValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	accountID := seedAccount(t, db, svc)

	_, err := svc.Credit(ctx, accountdomain.CreditRequest{AccountID: accountID})
	require.ErrorIs(t, err, accountdomain.ErrInvalidCredit)

	_, err = svc.Credit(ctx, accountdomain.CreditRequest{
		AccountID:      accountID,
		IdempotencyKey: "k",
		Coins:          -1,
	})
	require.ErrorIs(t, err, accountdomain.ErrInvalidCredit)
}
