package migrate

import (
	"context"
	"fmt"

	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/db"
	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
)

// MaybeRunDev brings the schema up on boot. sqlite databases are always
// auto-migrated from the models; Postgres runs goose only in dev with the
// auto-migrate flag set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg.DB.IsSQLite() {
		return AutoMigrate(ctx, logg, client)
	}
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	m, err := NewMigrator(sqlDB, source)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	applied, err := m.Up(ctx)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", applied), "dev schema migrated")
	return nil
}

// AutoMigrate creates or updates the service tables from the gorm models.
func AutoMigrate(ctx context.Context, logg *logger.Logger, client *db.Client) error {
	if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", client.Dialect()), "schema auto-migrated")
	}
	return nil
}
