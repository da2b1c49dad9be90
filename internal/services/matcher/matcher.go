package matcher

import (
	"time"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/domain/service"

	"github.com/shopspring/decimal"
)

// Config holds matching tolerances. Both tolerances are inclusive.
type Config struct {
	PriceTolerance decimal.Decimal // relative to the reference price
	TimeTolerance  time.Duration
	Lookahead      int // unmatched trades that may be skipped to find a partner
}

func DefaultConfig() Config {
	return Config{
		PriceTolerance: decimal.RequireFromString("0.02"),
		TimeTolerance:  5 * time.Minute,
		Lookahead:      3,
	}
}

// Matcher aligns two ordered trade logs with a two-cursor walk. Each step
// looks at most Lookahead trades past either cursor, so the cost is linear
// in the log sizes and pairs never cross.
type Matcher struct {
	cfg Config
}

func New(cfg Config) *Matcher {
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	return &Matcher{cfg: cfg}
}

var _ service.TradeMatcher = (*Matcher)(nil)

func (m *Matcher) Config() Config { return m.cfg }

// Match pairs reference and candidate trades. Both slices must already be in
// sequence order; they are not modified.
func (m *Matcher) Match(reference, candidate []models.TradeRecord) models.MatchResult {
	res := models.MatchResult{
		Pairs:          make([]models.MatchPair, 0, max(len(reference), len(candidate))),
		ReferenceCount: len(reference),
		CandidateCount: len(candidate),
	}

	i, j := 0, 0
	for i < len(reference) && j < len(candidate) {
		if k, ok := m.scan(candidate, j, func(c *models.TradeRecord) bool { return m.Within(&reference[i], c) }); ok {
			for ; j < k; j++ {
				res.Pairs = append(res.Pairs, unmatchedCandidate(&candidate[j]))
			}
			res.Pairs = append(res.Pairs, m.pair(&reference[i], &candidate[k]))
			i, j = i+1, k+1
			continue
		}
		// The reference may be the one with extra trades: look past it for a
		// partner of the current candidate before giving it up.
		if k, ok := m.scan(reference, i+1, func(r *models.TradeRecord) bool { return m.Within(r, &candidate[j]) }); ok {
			for ; i < k; i++ {
				res.Pairs = append(res.Pairs, unmatchedReference(&reference[i]))
			}
			res.Pairs = append(res.Pairs, m.pair(&reference[k], &candidate[j]))
			i, j = k+1, j+1
			continue
		}
		res.Pairs = append(res.Pairs, unmatchedReference(&reference[i]))
		i++
	}
	for ; i < len(reference); i++ {
		res.Pairs = append(res.Pairs, unmatchedReference(&reference[i]))
	}
	for ; j < len(candidate); j++ {
		res.Pairs = append(res.Pairs, unmatchedCandidate(&candidate[j]))
	}

	for _, p := range res.Pairs {
		if p.Status == models.StatusMatched {
			res.Matched++
		}
	}
	if denom := max(len(reference), len(candidate)); denom > 0 {
		res.MatchRate = float64(res.Matched) / float64(denom)
	}
	return res
}

// scan returns the first index in [from, from+Lookahead] accepted by fn.
// Ties resolve to the earliest trade in sequence order.
func (m *Matcher) scan(trades []models.TradeRecord, from int, fn func(*models.TradeRecord) bool) (int, bool) {
	for k := from; k < len(trades) && k <= from+m.cfg.Lookahead; k++ {
		if fn(&trades[k]) {
			return k, true
		}
	}
	return -1, false
}

// Within reports whether two trades are the same economic event: same side,
// price within PriceTolerance of the reference price, time within TimeTolerance.
func (m *Matcher) Within(ref, cand *models.TradeRecord) bool {
	if ref.Side != cand.Side {
		return false
	}
	dt := cand.ExecutedAt().Sub(ref.ExecutedAt())
	if dt < 0 {
		dt = -dt
	}
	if dt > m.cfg.TimeTolerance {
		return false
	}
	refPrice := ref.ExecutedPrice()
	diff := cand.ExecutedPrice().Sub(refPrice).Abs()
	return diff.LessThanOrEqual(m.cfg.PriceTolerance.Mul(refPrice.Abs()))
}

func (m *Matcher) pair(ref, cand *models.TradeRecord) models.MatchPair {
	return models.MatchPair{
		Reference: ref,
		Candidate: cand,
		Status:    models.StatusMatched,
		PriceDiff: relativeDiff(ref.ExecutedPrice(), cand.ExecutedPrice()),
		TimeDiff:  cand.ExecutedAt().Sub(ref.ExecutedAt()),
	}
}

func relativeDiff(ref, cand decimal.Decimal) decimal.Decimal {
	if ref.IsZero() {
		return decimal.Zero
	}
	return cand.Sub(ref).Div(ref)
}

func unmatchedReference(t *models.TradeRecord) models.MatchPair {
	return models.MatchPair{Reference: t, Status: models.StatusUnmatchedReference}
}

func unmatchedCandidate(t *models.TradeRecord) models.MatchPair {
	return models.MatchPair{Candidate: t, Status: models.StatusUnmatchedCandidate}
}
