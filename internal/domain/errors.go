package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Lottery operation failures. Every one of them leaves the round exactly
	// as it was before the call.
	ErrInsufficientPayment = errors.New("lottery: not enough value sent")
	ErrNotOpen             = errors.New("lottery: not open")
	ErrPaymentFailed       = errors.New("lottery: entry payment not collected")
	ErrUpkeepNotNeeded     = errors.New("lottery: upkeep not needed")
	ErrUnknownRequest      = errors.New("lottery: unknown randomness request")
	ErrTransferFailed      = errors.New("lottery: transfer failed")
	ErrUnauthorizedCaller  = errors.New("lottery: caller is not the coordinator")
	ErrIndexOutOfRange     = errors.New("lottery: player index out of range")
	ErrNoRandomWords       = errors.New("lottery: no random words delivered")
)
