package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertVoucher(ctx context.Context, db *gorm.DB, voucher *SeckillVoucher) error
	FindVoucher(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) (*SeckillVoucher, error)
	DecrementStockIfPositive(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) (bool, error)

	FindOrder(ctx context.Context, db *gorm.DB, userID, voucherID snowflake.ID) (*VoucherOrder, error)
	InsertOrder(ctx context.Context, db *gorm.DB, order *VoucherOrder) error
	CountOrders(ctx context.Context, db *gorm.DB, voucherID snowflake.ID) (int64, error)
}
