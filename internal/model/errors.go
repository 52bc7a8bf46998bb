package model

import "errors"

// Call-level failures. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidPool       = errors.New("invalid pool")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidListingFee = errors.New("invalid listing fee")
	ErrSwap              = errors.New("swap error")
)
