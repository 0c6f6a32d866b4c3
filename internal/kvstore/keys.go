package kvstore

import (
	"strconv"
	"time"
)

const (
	CacheShopPrefix = "cache:shop:"
	LockShopPrefix  = "lock:shop:"
	LockPrefix      = "lock:"
	IDCounterPrefix = "icr:"

	SeckillStockPrefix  = "seckill:stock:"
	SeckillBuyersPrefix = "seckill:order:"

	OrderStream = "stream.orders"
	OrderGroup  = "g1"

	LoginTokenPrefix = "login:token:"
	RateLimitPrefix  = "ratelimit:"
)

func LockKey(resource string) string {
	return LockPrefix + resource
}

// IDCounterKey is the per-scope, per-UTC-day counter key.
func IDCounterKey(scope string, day time.Time) string {
	return IDCounterPrefix + scope + ":" + day.UTC().Format("2006-01-02")
}

func SeckillStockKey(voucherID int64) string {
	return SeckillStockPrefix + strconv.FormatInt(voucherID, 10)
}

func SeckillBuyersKey(voucherID int64) string {
	return SeckillBuyersPrefix + strconv.FormatInt(voucherID, 10)
}

func LoginTokenKey(token string) string {
	return LoginTokenPrefix + token
}
