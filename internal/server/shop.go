package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	shopdomain "github.com/smallbiznis/flashsale/internal/shop/domain"
)

type updateShopRequest struct {
	Name      string `json:"name"`
	TypeID    int64  `json:"type_id"`
	Area      string `json:"area"`
	Address   string `json:"address"`
	AvgPrice  int64  `json:"avg_price"`
	Score     int    `json:"score"`
	OpenHours string `json:"open_hours"`
}

func (s *Server) GetShopByID(c *gin.Context) {
	id, ok := parseShopID(c)
	if !ok {
		return
	}

	resp, err := s.shopSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateShop(c *gin.Context) {
	id, ok := parseShopID(c)
	if !ok {
		return
	}

	var req updateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.shopSvc.Update(c.Request.Context(), id, shopdomain.ShopRequest{
		Name:      req.Name,
		TypeID:    req.TypeID,
		Area:      req.Area,
		Address:   req.Address,
		AvgPrice:  req.AvgPrice,
		Score:     req.Score,
		OpenHours: req.OpenHours,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func parseShopID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		AbortWithError(c, shopdomain.ErrInvalidID)
		return 0, false
	}
	return id, true
}
