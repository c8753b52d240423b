package migration

import (
	"strings"

	"github.com/smallbiznis/frostclub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
		if !strings.EqualFold(cfg.Type, "postgres") {
			log.Named("migration").Warn("skipping migrations for non-postgres database", zap.String("type", cfg.Type))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
