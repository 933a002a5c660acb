package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrRejected            = errors.New("request rejected by wallet")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrListingExpired      = errors.New("listing expired")
	ErrDuplicateCall       = errors.New("duplicate contract call")
	ErrDenylisted          = errors.New("token not eligible")
	ErrUnexpectedResponse  = errors.New("unexpected response")
	ErrSigningFailed       = errors.New("signing failed")
	ErrLockNotAcquired     = errors.New("lock not acquired")
)
