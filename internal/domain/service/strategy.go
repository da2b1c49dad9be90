package service

import (
	"time"

	"ParityBot/internal/domain/models"
)

// SignalEngine turns closed candles plus the current position into one
// decision per primary candle close.
type SignalEngine interface {
	Step(state models.PositionState, primary, secondary []models.Candle, at time.Time) models.Decision
	Transition(state models.PositionState, d models.Decision, fill models.Fill) (models.PositionState, error)
}

// TradeMatcher pairs a reference trade log with a candidate log.
type TradeMatcher interface {
	Match(reference, candidate []models.TradeRecord) models.MatchResult
}
