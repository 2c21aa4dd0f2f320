package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUnknownUser       = errors.New("unknown user reference")
	ErrCreditUnavailable = errors.New("credit temporarily unavailable")
	ErrInvalidCredit     = errors.New("invalid credit request")
)

type Account struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	DisplayName string       `json:"display_name" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

type Wallet struct {
	AccountID  snowflake.ID `json:"account_id" gorm:"primaryKey"`
	Coins      int64        `json:"coins" gorm:"not null;default:0"`
	Experience int64        `json:"experience" gorm:"not null;default:0"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletTransaction records one applied grant. The unique idempotency
// key makes double credit impossible even when two deliveries race past
// the claim ledger.
type WalletTransaction struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID      snowflake.ID `json:"account_id" gorm:"not null;index"`
	IdempotencyKey string       `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	Provider       string       `json:"provider" gorm:"type:text;not null"`
	Kind           string       `json:"kind" gorm:"type:text;not null"`
	Coins          int64        `json:"coins" gorm:"not null"`
	Experience     int64        `json:"experience" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// PlatformLink binds a provider-scoped user id to an account.
type PlatformLink struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	Provider       string       `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_platform_links_provider_user"`
	ProviderUserID string       `json:"provider_user_id" gorm:"type:text;not null;uniqueIndex:idx_platform_links_provider_user"`
	AccountID      snowflake.ID `json:"account_id" gorm:"not null;index"`
	DisplayName    string       `json:"display_name" gorm:"type:text"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (PlatformLink) TableName() string { return "platform_links" }

type CreditRequest struct {
	AccountID      snowflake.ID
	IdempotencyKey string
	Provider       string
	Kind           string
	Coins          int64
	Experience     int64
}

type CreditResult struct {
	// Applied is false when the idempotency key was already spent.
	Applied       bool
	TransactionID snowflake.ID
}

type Service interface {
	// Resolve maps a provider-scoped user reference to an account id.
	// Livestream viewers are provisioned on first sight; payment
	// references must name an existing account.
	Resolve(ctx context.Context, provider, providerUserID, displayName string) (snowflake.ID, error)
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)
}
