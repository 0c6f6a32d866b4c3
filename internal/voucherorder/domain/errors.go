package domain

import "errors"

var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInvalidVoucher         = errors.New("invalid_voucher")
	ErrInvalidStock           = errors.New("invalid_stock")
	ErrInvalidWindow          = errors.New("invalid_window")
	ErrVoucherNotFound        = errors.New("voucher_not_found")
	ErrRateLimited            = errors.New("rate_limited")
	ErrUnexpectedScriptResult = errors.New("unexpected_script_result")
	ErrMalformedEntry         = errors.New("malformed_order_entry")
	ErrLockContended          = errors.New("order_lock_contended")
)
