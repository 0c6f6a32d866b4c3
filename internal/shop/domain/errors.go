package domain

import "errors"

var (
	ErrInvalidID    = errors.New("invalid_shop_id")
	ErrInvalidName  = errors.New("invalid_shop_name")
	ErrShopNotFound = errors.New("shop_not_found")
)
