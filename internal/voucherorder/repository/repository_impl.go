package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flashsale/internal/voucherorder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertVoucher(ctx context.Context, db *gorm.DB, voucher *domain.SeckillVoucher) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO seckill_vouchers (voucher_id, stock, begin_time, end_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		voucher.VoucherID,
		voucher.Stock,
		voucher.BeginTime,
		voucher.EndTime,
		voucher.CreatedAt,
		voucher.UpdatedAt,
	).Error
}

func (r *repo) FindVoucher(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) (*domain.SeckillVoucher, error) {
	var voucher domain.SeckillVoucher
	err := db.WithContext(ctx).Raw(
		`SELECT voucher_id, stock, begin_time, end_time, created_at, updated_at
		 FROM seckill_vouchers WHERE voucher_id = ?`,
		voucherID,
	).Scan(&voucher).Error
	if err != nil {
		return nil, err
	}
	if voucher.VoucherID == 0 {
		return nil, nil
	}
	return &voucher, nil
}

func (r *repo) DecrementStockIfPositive(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE seckill_vouchers SET stock = stock - 1, updated_at = ?
		 WHERE voucher_id = ? AND stock > 0`,
		time.Now().UTC(),
		voucherID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, userID, voucherID snowflake.ID) (*domain.VoucherOrder, error) {
	var order domain.VoucherOrder
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, voucher_id, status, created_at, updated_at
		 FROM voucher_orders WHERE user_id = ? AND voucher_id = ?`,
		userID,
		voucherID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.VoucherOrder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO voucher_orders (id, user_id, voucher_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		order.VoucherID,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) CountOrders(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM voucher_orders WHERE voucher_id = ?`,
		voucherID,
	).Scan(&count).Error
	return count, err
}
