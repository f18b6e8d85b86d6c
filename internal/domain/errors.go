package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidAddress  = errors.New("invalid account address")
	ErrInvalidPosition = errors.New("invalid position snapshot")
	ErrNoPriceData     = errors.New("no price data")
	ErrLockHeld        = errors.New("lock already held")
)
