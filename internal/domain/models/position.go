package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionSide string

const (
	Flat PositionSide = "FLAT"
	Long PositionSide = "LONG"
)

// PositionState is owned by the driving loop and replaced, never mutated in
// place, after each confirmed execution.
type PositionState struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	EntryTime  time.Time       `json:"entry_time,omitempty"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewFlatPosition returns the initial state for a symbol.
func NewFlatPosition(symbol string) PositionState {
	return PositionState{Symbol: symbol, Side: Flat}
}

func (p PositionState) IsLong() bool { return p.Side == Long }
