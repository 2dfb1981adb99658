package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/adboard-backend/pkg/config"
	"github.com/angelmondragon/adboard-backend/pkg/db"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev with
// ADBOARD_AUTO_MIGRATE enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.Features.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying embedded migrations (dev auto-run)")

	applied, err := Up(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logg.Info(logg.WithField(ctx, "applied", applied), "migrations completed")
	return nil
}
