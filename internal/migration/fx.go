package migration

import (
	"strings"

	accountdomain "github.com/streamcred/streamcred/internal/account/domain"
	idemdomain "github.com/streamcred/streamcred/internal/idempotency/domain"
	ingestdomain "github.com/streamcred/streamcred/internal/ingest/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if strings.EqualFold(conn.Dialector.Name(), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres databases are for local development and tests,
		// where the gorm models are the source of truth.
		return AutoMigrate(conn)
	}),
)

// AutoMigrate creates the schema from the gorm models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&accountdomain.Account{},
		&accountdomain.Wallet{},
		&accountdomain.WalletTransaction{},
		&accountdomain.PlatformLink{},
		&idemdomain.EventClaim{},
		&ingestdomain.EventRecord{},
	)
}
