package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchStatus string

const (
	StatusMatched            MatchStatus = "MATCHED"
	StatusUnmatchedReference MatchStatus = "UNMATCHED_REFERENCE"
	StatusUnmatchedCandidate MatchStatus = "UNMATCHED_CANDIDATE"
)

// MatchPair is one line of a match result. Unmatched lines carry one side only.
type MatchPair struct {
	Reference *TradeRecord    `json:"reference,omitempty"`
	Candidate *TradeRecord    `json:"candidate,omitempty"`
	Status    MatchStatus     `json:"status"`
	PriceDiff decimal.Decimal `json:"price_diff"`
	TimeDiff  time.Duration   `json:"time_diff"`
}

// MatchResult pairs two trade logs. Matched pairs are in sequence order on
// both sides.
type MatchResult struct {
	Pairs          []MatchPair `json:"pairs"`
	Matched        int         `json:"matched"`
	ReferenceCount int         `json:"reference_count"`
	CandidateCount int         `json:"candidate_count"`
	MatchRate      float64     `json:"match_rate"`
}

// MatchedPairs returns only pairs with both sides present.
func (r MatchResult) MatchedPairs() []MatchPair {
	out := make([]MatchPair, 0, r.Matched)
	for _, p := range r.Pairs {
		if p.Status == StatusMatched {
			out = append(out, p)
		}
	}
	return out
}

// Unmatched returns the unmatched lines with the given status.
func (r MatchResult) Unmatched(status MatchStatus) []TradeRecord {
	var out []TradeRecord
	for _, p := range r.Pairs {
		if p.Status != status {
			continue
		}
		if p.Reference != nil {
			out = append(out, *p.Reference)
		} else if p.Candidate != nil {
			out = append(out, *p.Candidate)
		}
	}
	return out
}
