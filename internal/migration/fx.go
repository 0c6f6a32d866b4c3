package migration

import (
	"strings"

	"github.com/smallbiznis/flashsale/internal/config"
	shopdomain "github.com/smallbiznis/flashsale/internal/shop/domain"
	voucherdomain "github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"github.com/smallbiznis/flashsale/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !strings.EqualFold(strings.TrimSpace(cfg.DBType), db.TypePostgres) {
			log.Info("auto-migrating schema", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate creates the schema from the gorm models for dialects without
// SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&shopdomain.Shop{},
		&voucherdomain.SeckillVoucher{},
		&voucherdomain.VoucherOrder{},
	)
}
