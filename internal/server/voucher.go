package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	voucherdomain "github.com/smallbiznis/flashsale/internal/voucherorder/domain"
)

type publishVoucherRequest struct {
	VoucherID string    `json:"voucher_id"`
	Stock     int       `json:"stock"`
	BeginTime time.Time `json:"begin_time"`
	EndTime   time.Time `json:"end_time"`
}

func (s *Server) PublishVoucher(c *gin.Context) {
	var req publishVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var voucherID snowflake.ID
	if raw := strings.TrimSpace(req.VoucherID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, voucherdomain.ErrInvalidVoucher)
			return
		}
		voucherID = parsed
	}

	resp, err := s.voucherSvc.PublishVoucher(c.Request.Context(), voucherdomain.PublishVoucherRequest{
		VoucherID: voucherID,
		Stock:     req.Stock,
		BeginTime: req.BeginTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) Seckill(c *gin.Context) {
	voucherID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || voucherID <= 0 {
		AbortWithError(c, voucherdomain.ErrInvalidVoucher)
		return
	}

	result, err := s.voucherSvc.Seckill(c.Request.Context(), voucherID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch result.Outcome {
	case voucherdomain.OutcomeAdmitted:
		c.JSON(http.StatusOK, gin.H{"order_id": result.OrderID})
	case voucherdomain.OutcomeDuplicate:
		AbortWithError(c, ErrAlreadyPurchased)
	case voucherdomain.OutcomeOutOfStock:
		AbortWithError(c, ErrSoldOut)
	default:
		AbortWithError(c, ErrInternal)
	}
}
