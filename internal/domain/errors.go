package domain

import (
	"context"
	"errors"
	"net"
	"syscall"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrMetadataUnavailable = errors.New("market metadata unavailable")
	ErrPositionOpen        = errors.New("position already open")
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	ErrLockHeld            = errors.New("lock already held")
)

// Retryable reports whether an error is transient enough to be worth another
// attempt: network timeouts, connection resets, and exchange-side rate
// limiting or maintenance responses. Auth failures, invalid orders, and
// insufficient funds are never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrExchangeUnavailable) {
		return true
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidOrder) ||
		errors.Is(err, ErrInsufficientFunds) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
