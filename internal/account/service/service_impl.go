package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/streamcred/streamcred/internal/account/domain"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
	pkgdb "github.com/streamcred/streamcred/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) accountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
	}
}

func (s *Service) Resolve(ctx context.Context, provider, providerUserID, displayName string) (snowflake.ID, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerUserID = strings.TrimSpace(providerUserID)
	if provider == "" || providerUserID == "" {
		return 0, accountdomain.ErrUnknownUser
	}

	if provider == ingestdomain.ProviderStripe {
		return s.resolveAccountID(ctx, providerUserID)
	}
	return s.resolveOrProvisionLink(ctx, provider, providerUserID, displayName)
}

// resolveAccountID handles payment references, which carry the internal
// account id in checkout metadata. A paying user without an account is a
// data integrity problem, not something to provision around.
func (s *Service) resolveAccountID(ctx context.Context, raw string) (snowflake.ID, error) {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, accountdomain.ErrUnknownUser
	}

	var account accountdomain.Account
	err = s.db.WithContext(ctx).First(&account, "id = ?", parsed).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, accountdomain.ErrUnknownUser
		}
		return 0, err
	}
	return account.ID, nil
}

func (s *Service) resolveOrProvisionLink(ctx context.Context, provider, providerUserID, displayName string) (snowflake.ID, error) {
	var link accountdomain.PlatformLink
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&link).Error
	if err == nil {
		return link.AccountID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	accountID, err := s.provisionLink(ctx, provider, providerUserID, displayName)
	if err == nil {
		return accountID, nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return 0, err
	}

	// Lost a provisioning race; the winner's link is now visible.
	err = s.db.WithContext(ctx).
		Where("provider = ? AND provider_user_id = ?", provider, providerUserID).
		First(&link).Error
	if err != nil {
		return 0, err
	}
	return link.AccountID, nil
}

func (s *Service) provisionLink(ctx context.Context, provider, providerUserID, displayName string) (snowflake.ID, error) {
	now := time.Now().UTC()
	account := accountdomain.Account{
		ID:          s.genID.Generate(),
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		wallet := accountdomain.Wallet{
			AccountID: account.ID,
			UpdatedAt: now,
		}
		if err := tx.Create(&wallet).Error; err != nil {
			return err
		}
		link := accountdomain.PlatformLink{
			ID:             s.genID.Generate(),
			Provider:       provider,
			ProviderUserID: providerUserID,
			AccountID:      account.ID,
			DisplayName:    strings.TrimSpace(displayName),
			CreatedAt:      now,
		}
		return tx.Create(&link).Error
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("provisioned viewer account",
		zap.String("provider", provider),
		zap.String("provider_user_id", providerUserID),
		zap.String("account_id", account.ID.String()),
	)
	return account.ID, nil
}

var errAlreadyApplied = errors.New("credit already applied")

func (s *Service) Credit(ctx context.Context, req accountdomain.CreditRequest) (*accountdomain.CreditResult, error) {
	if req.AccountID == 0 || strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, accountdomain.ErrInvalidCredit
	}
	if req.Coins < 0 || req.Experience < 0 {
		return nil, accountdomain.ErrInvalidCredit
	}

	txn := accountdomain.WalletTransaction{
		ID:             s.genID.Generate(),
		AccountID:      req.AccountID,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Provider:       strings.TrimSpace(req.Provider),
		Kind:           strings.TrimSpace(req.Kind),
		Coins:          req.Coins,
		Experience:     req.Experience,
		CreatedAt:      time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&txn).Error; err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return errAlreadyApplied
			}
			return err
		}

		now := time.Now().UTC()
		result := tx.Exec(
			`UPDATE wallets
			SET coins = coins + ?, experience = experience + ?, updated_at = ?
			WHERE account_id = ?`,
			req.Coins, req.Experience, now, req.AccountID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			wallet := accountdomain.Wallet{
				AccountID:  req.AccountID,
				Coins:      req.Coins,
				Experience: req.Experience,
				UpdatedAt:  now,
			}
			return tx.Create(&wallet).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errAlreadyApplied) {
			s.log.Debug("credit skipped for spent idempotency key",
				zap.String("idempotency_key", txn.IdempotencyKey),
			)
			return &accountdomain.CreditResult{Applied: false}, nil
		}
		return nil, err
	}

	return &accountdomain.CreditResult{
		Applied:       true,
		TransactionID: txn.ID,
	}, nil
}
