package matcher

import (
	"bytes"
	"testing"
	"time"

	"ParityBot/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second) }

func buy(seq int, t time.Time, price string) models.TradeRecord {
	return models.TradeRecord{Sequence: seq, Side: models.SideBuy, EntryTime: t, EntryPrice: decimal.RequireFromString(price)}
}

// sell builds a SELL record whose own fill is (t, price).
func sell(seq int, t time.Time, price string) models.TradeRecord {
	exit := t
	return models.TradeRecord{
		Sequence:   seq,
		Side:       models.SideSell,
		EntryTime:  t.Add(-time.Hour),
		EntryPrice: decimal.RequireFromString(price),
		ExitTime:   &exit,
		ExitPrice:  decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
}

func TestRoundTripWithinTolerance(t *testing.T) {
	ref := []models.TradeRecord{buy(1, at(10, 0, 0), "45000"), sell(2, at(11, 30, 0), "45100")}
	cand := []models.TradeRecord{buy(1, at(10, 2, 0), "45300"), sell(2, at(11, 33, 0), "45200")}

	res := New(DefaultConfig()).Match(ref, cand)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1.0, res.MatchRate)
	require.Len(t, res.Pairs, 2)
	assert.Equal(t, 2*time.Minute, res.Pairs[0].TimeDiff)
	assert.Equal(t, 3*time.Minute, res.Pairs[1].TimeDiff)
	assert.Equal(t, "0.67", res.Pairs[0].PriceDiff.Shift(2).StringFixed(2))
}

func TestLeadingExtraCandidateSkipped(t *testing.T) {
	ref := []models.TradeRecord{buy(1, at(10, 0, 0), "45000"), sell(2, at(11, 30, 0), "45100")}
	cand := []models.TradeRecord{
		sell(1, at(9, 58, 0), "44900"),
		buy(2, at(10, 2, 0), "45300"),
		sell(3, at(11, 33, 0), "45200"),
	}

	res := New(DefaultConfig()).Match(ref, cand)

	assert.Equal(t, 2, res.Matched)
	assert.InDelta(t, 2.0/3.0, res.MatchRate, 1e-12)
	require.Len(t, res.Pairs, 3)
	assert.Equal(t, models.StatusUnmatchedCandidate, res.Pairs[0].Status)
	assert.Equal(t, 1, res.Pairs[0].Candidate.Sequence)
	assert.Equal(t, 2, res.Pairs[1].Candidate.Sequence)
	assert.Equal(t, 3, res.Pairs[2].Candidate.Sequence)
}

func TestLeadingExtraReferenceSkipped(t *testing.T) {
	ref := []models.TradeRecord{
		buy(1, at(8, 0, 0), "44000"),
		buy(2, at(10, 0, 0), "45000"),
		sell(3, at(11, 30, 0), "45100"),
	}
	cand := []models.TradeRecord{buy(1, at(10, 1, 0), "45050"), sell(2, at(11, 31, 0), "45150")}

	res := New(DefaultConfig()).Match(ref, cand)

	assert.Equal(t, 2, res.Matched)
	assert.Len(t, res.Unmatched(models.StatusUnmatchedReference), 1)
	assert.Equal(t, 1, res.Unmatched(models.StatusUnmatchedReference)[0].Sequence)
}

func TestToleranceBoundaries(t *testing.T) {
	m := New(DefaultConfig())
	ref := buy(1, at(10, 0, 0), "45000")

	cases := []struct {
		name string
		cand models.TradeRecord
		ok   bool
	}{
		{"price exactly 2% above", buy(1, at(10, 0, 0), "45900"), true},
		{"price exactly 2% below", buy(1, at(10, 0, 0), "44100"), true},
		{"price just above 2%", buy(1, at(10, 0, 0), "45900.01"), false},
		{"price just below -2%", buy(1, at(10, 0, 0), "44099.99"), false},
		{"time exactly +5m", buy(1, at(10, 5, 0), "45000"), true},
		{"time exactly -5m", buy(1, at(9, 55, 0), "45000"), true},
		{"time 5m1s late", buy(1, at(10, 5, 1), "45000"), false},
		{"time 1ns past 5m", buy(1, at(10, 5, 0).Add(time.Nanosecond), "45000"), false},
		{"both at the edge", buy(1, at(10, 5, 0), "45900"), true},
		{"side differs", sell(1, at(10, 0, 0), "45000"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, m.Within(&ref, &tc.cand))
			res := m.Match([]models.TradeRecord{ref}, []models.TradeRecord{tc.cand})
			if tc.ok {
				assert.Equal(t, 1, res.Matched)
			} else {
				assert.Equal(t, 0, res.Matched)
				assert.Len(t, res.Pairs, 2)
			}
		})
	}
}

func TestLookaheadBudget(t *testing.T) {
	ref := []models.TradeRecord{buy(1, at(10, 0, 0), "45000")}
	cand := []models.TradeRecord{
		sell(1, at(9, 59, 0), "45000"),
		sell(2, at(9, 59, 30), "45000"),
		buy(3, at(10, 1, 0), "45000"),
	}

	res := New(Config{PriceTolerance: decimal.RequireFromString("0.02"), TimeTolerance: 5 * time.Minute, Lookahead: 1}).Match(ref, cand)
	assert.Equal(t, 0, res.Matched, "partner sits two skips away")

	res = New(Config{PriceTolerance: decimal.RequireFromString("0.02"), TimeTolerance: 5 * time.Minute, Lookahead: 2}).Match(ref, cand)
	assert.Equal(t, 1, res.Matched)
}

func TestBijectiveAndNonCrossing(t *testing.T) {
	var ref, cand []models.TradeRecord
	for i := 0; i < 40; i++ {
		ts := at(0, 0, 0).Add(time.Duration(i) * 7 * time.Minute)
		if i%2 == 0 {
			ref = append(ref, buy(i, ts, "100"))
		} else {
			ref = append(ref, sell(i, ts, "101"))
		}
		switch {
		case i%9 == 4:
			// candidate missed this one
		case i%11 == 3:
			cand = append(cand, buy(1000+i, ts.Add(-time.Minute), "100"))
			cand = append(cand, ref[len(ref)-1])
			cand[len(cand)-1].Sequence = i
		default:
			c := ref[len(ref)-1]
			c.Sequence = i
			cand = append(cand, c)
		}
	}

	res := New(DefaultConfig()).Match(ref, cand)

	seenRef := map[*models.TradeRecord]bool{}
	seenCand := map[*models.TradeRecord]bool{}
	lastRef, lastCand := -1, -1
	for _, p := range res.MatchedPairs() {
		assert.False(t, seenRef[p.Reference], "reference used twice")
		assert.False(t, seenCand[p.Candidate], "candidate used twice")
		seenRef[p.Reference], seenCand[p.Candidate] = true, true

		ri, ci := indexOf(ref, p.Reference), indexOf(cand, p.Candidate)
		assert.Greater(t, ri, lastRef)
		assert.Greater(t, ci, lastCand)
		lastRef, lastCand = ri, ci
	}
	assert.Equal(t, len(ref)+len(cand)-res.Matched, len(res.Pairs))
	assert.Greater(t, res.Matched, 30)
}

func indexOf(trades []models.TradeRecord, p *models.TradeRecord) int {
	for i := range trades {
		if &trades[i] == p {
			return i
		}
	}
	return -1
}

func TestEmptyLogs(t *testing.T) {
	res := New(DefaultConfig()).Match(nil, nil)
	assert.Equal(t, 0.0, res.MatchRate)
	assert.Empty(t, res.Pairs)

	res = New(DefaultConfig()).Match([]models.TradeRecord{buy(1, at(1, 0, 0), "1")}, nil)
	assert.Equal(t, 0.0, res.MatchRate)
	assert.Equal(t, models.StatusUnmatchedReference, res.Pairs[0].Status)
}

func TestWriteReport(t *testing.T) {
	ref := []models.TradeRecord{buy(1, at(10, 0, 0), "45000"), sell(2, at(11, 30, 0), "45100")}
	cand := []models.TradeRecord{buy(1, at(10, 2, 0), "45300")}
	cfg := DefaultConfig()
	res := New(cfg).Match(ref, cand)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, res, cfg, 10))
	out := buf.String()
	assert.Contains(t, out, "TRADE MATCHING REPORT")
	assert.Contains(t, out, "Match rate         : 50.00%")
	assert.Contains(t, out, "MATCH BUY")
	assert.Contains(t, out, "UNMATCHED REF  SELL")
}
