package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type PublishVoucherRequest struct {
	VoucherID snowflake.ID
	Stock     int
	BeginTime time.Time
	EndTime   time.Time
}

type Service interface {
	// Seckill decides admission for the caller in ctx. Rejections are
	// reported through the result outcome, not as errors.
	Seckill(ctx context.Context, voucherID snowflake.ID) (AdmissionResult, error)
	PublishVoucher(ctx context.Context, req PublishVoucherRequest) (SeckillVoucher, error)
}
