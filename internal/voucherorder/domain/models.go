package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SeckillVoucher struct {
	VoucherID snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"voucher_id"`
	Stock     int          `gorm:"not null" json:"stock"`
	BeginTime time.Time    `gorm:"not null" json:"begin_time"`
	EndTime   time.Time    `gorm:"not null" json:"end_time"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SeckillVoucher) TableName() string { return "seckill_vouchers" }

type OrderStatus int16

const (
	OrderStatusUnpaid OrderStatus = 1
)

type VoucherOrder struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_voucher_orders_user_voucher" json:"user_id"`
	VoucherID snowflake.ID `gorm:"not null;uniqueIndex:ux_voucher_orders_user_voucher" json:"voucher_id"`
	Status    OrderStatus  `gorm:"not null;default:1" json:"status"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (VoucherOrder) TableName() string { return "voucher_orders" }

// Outcome is the admission decision returned by the admission script.
type Outcome int

const (
	OutcomeAdmitted   Outcome = 0
	OutcomeOutOfStock Outcome = 1
	OutcomeDuplicate  Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeOutOfStock:
		return "out_of_stock"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

type AdmissionResult struct {
	Outcome Outcome
	// OrderID is set only when the request was admitted.
	OrderID snowflake.ID
}

// OrderEntry is one admitted order as carried on the order stream.
type OrderEntry struct {
	StreamID  string
	OrderID   snowflake.ID
	UserID    snowflake.ID
	VoucherID snowflake.ID
}
