package models

import "time"

// Requests for the parity HTTP endpoints.

type MatchTradeInput struct {
	Sequence   int       `json:"sequence"`
	Side       string    `json:"side" validate:"required,oneof=BUY SELL buy sell"`
	Time       time.Time `json:"time" validate:"required"`
	Price      string    `json:"price" validate:"required,numeric"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice string    `json:"entry_price" validate:"omitempty,numeric"`
}

type MatchRequest struct {
	Reference      []MatchTradeInput `json:"reference" validate:"dive"`
	Candidate      []MatchTradeInput `json:"candidate" validate:"dive"`
	PriceTolerance float64           `json:"price_tolerance" default:"0.02" validate:"gt=0,lte=1"`
	TimeTolerance  string            `json:"time_tolerance" default:"5m"`
	Lookahead      int               `json:"lookahead" default:"3" validate:"gte=0,lte=100"`
}

type MatchFilesRequest struct {
	Reference string `query:"reference" json:"reference"`
	Candidate string `query:"candidate" json:"candidate"`
	Details   int    `query:"details" json:"details" default:"10" validate:"gte=0,lte=1000"`
}
