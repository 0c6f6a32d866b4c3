package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ShopRequest struct {
	Name      string
	TypeID    int64
	Area      string
	Address   string
	AvgPrice  int64
	Score     int
	OpenHours string
}

type Service interface {
	Create(ctx context.Context, req ShopRequest) (Shop, error)
	GetByID(ctx context.Context, id snowflake.ID) (Shop, error)
	Update(ctx context.Context, id snowflake.ID, req ShopRequest) (Shop, error)
	// Warm writes a logically expiring cache entry for id. A zero ttl uses
	// the tuned shop TTL.
	Warm(ctx context.Context, id snowflake.ID, ttl time.Duration) error
}
