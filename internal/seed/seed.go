package seed

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/callerctx"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	shopdomain "github.com/smallbiznis/flashsale/internal/shop/domain"
	voucherdomain "github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"gorm.io/gorm"
)

const (
	DemoVoucherID    = snowflake.ID(1)
	DemoVoucherStock = 100
	DemoToken        = "demo-token"
	DemoUserID       = snowflake.ID(1010)
	demoNickName     = "demo"
)

var demoShops = []shopdomain.Shop{
	{ID: 1, Name: "103 Tea House", TypeID: 1, Area: "Daguan", Address: "Jinhua Road 29", AvgPrice: 80, Score: 37, OpenHours: "10:00-22:00"},
	{ID: 2, Name: "Harbor Noodle Bar", TypeID: 1, Area: "Lujiazui", Address: "Pudong Ave 88", AvgPrice: 45, Score: 41, OpenHours: "11:00-23:00"},
	{ID: 3, Name: "Old Town Bakery", TypeID: 2, Area: "Xintiandi", Address: "Madang Road 12", AvgPrice: 30, Score: 46, OpenHours: "07:00-20:00"},
}

// EnsureShops inserts the demo shops that do not exist yet.
func EnsureShops(ctx context.Context, db *gorm.DB, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, shop := range demoShops {
			var existing shopdomain.Shop
			err := tx.WithContext(ctx).Where("id = ?", shop.ID).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			shop.CreatedAt = now
			shop.UpdatedAt = now
			if err := tx.WithContext(ctx).Create(&shop).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureVoucher publishes the demo voucher once. When the row already exists
// the admission stock key is restored from it if Redis lost it.
func EnsureVoucher(ctx context.Context, db *gorm.DB, rdb redis.UniversalClient, vouchers voucherdomain.Service, now time.Time) error {
	var existing voucherdomain.SeckillVoucher
	err := db.WithContext(ctx).Where("voucher_id = ?", DemoVoucherID).First(&existing).Error
	if err == nil {
		return rdb.SetNX(ctx, kvstore.SeckillStockKey(DemoVoucherID.Int64()), strconv.Itoa(existing.Stock), 0).Err()
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	_, err = vouchers.PublishVoucher(ctx, voucherdomain.PublishVoucherRequest{
		VoucherID: DemoVoucherID,
		Stock:     DemoVoucherStock,
		BeginTime: now,
		EndTime:   now.Add(7 * 24 * time.Hour),
	})
	return err
}

// EnsureSession stores the demo login token.
func EnsureSession(ctx context.Context, sessions *callerctx.SessionStore) error {
	return sessions.Save(ctx, DemoToken, callerctx.Caller{ID: DemoUserID, NickName: demoNickName})
}
