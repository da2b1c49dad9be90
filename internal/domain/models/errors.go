package models

import "errors"

var (
	// ErrInsufficientData means not enough closed candles to compute an indicator.
	ErrInsufficientData = errors.New("insufficient closed candles")
	// ErrTimeframeUnavailable means the secondary timeframe has no closed candle yet.
	ErrTimeframeUnavailable = errors.New("secondary timeframe unavailable")
	// ErrExecutionFailure wraps every failure of the order-execution collaborator.
	ErrExecutionFailure = errors.New("execution failure")
	// ErrInvalidTransition is returned when a fill does not fit the current position.
	ErrInvalidTransition = errors.New("invalid position transition")
	// ErrNoPosition is returned by stores that hold no state for a symbol.
	ErrNoPosition = errors.New("no stored position")
)
