package matcher

import (
	"fmt"
	"io"
	"strings"
	"time"

	"ParityBot/internal/domain/models"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// WriteReport renders a human-readable match report. details limits the
// number of pair lines; a negative value prints all of them.
func WriteReport(w io.Writer, res models.MatchResult, cfg Config, details int) error {
	rule := strings.Repeat("=", 60)
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "TRADE MATCHING REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Price tolerance    : %s%%\n", cfg.PriceTolerance.Shift(2).String())
	fmt.Fprintf(&b, "Time tolerance     : %s\n", cfg.TimeTolerance)
	fmt.Fprintf(&b, "Lookahead          : %d\n", cfg.Lookahead)
	fmt.Fprintf(&b, "Reference trades   : %d\n", res.ReferenceCount)
	fmt.Fprintf(&b, "Candidate trades   : %d\n", res.CandidateCount)
	fmt.Fprintf(&b, "Matched trades     : %d\n", res.Matched)
	fmt.Fprintf(&b, "Match rate         : %.2f%%\n", res.MatchRate*100)
	fmt.Fprintf(&b, "Unmatched reference: %d\n", len(res.Unmatched(models.StatusUnmatchedReference)))
	fmt.Fprintf(&b, "Unmatched candidate: %d\n", len(res.Unmatched(models.StatusUnmatchedCandidate)))

	pairs := res.Pairs
	if details >= 0 && details < len(pairs) {
		pairs = pairs[:details]
	}
	if len(pairs) > 0 {
		fmt.Fprintf(&b, "\n--- MATCH DETAILS (%d of %d) ---\n", len(pairs), len(res.Pairs))
	}
	for _, p := range pairs {
		fmt.Fprintln(&b, detailLine(p))
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func detailLine(p models.MatchPair) string {
	switch p.Status {
	case models.StatusMatched:
		return fmt.Sprintf("MATCH %-4s | REF %s @ %s <-> CAND %s @ %s | dt=%s | dp=%s%%",
			p.Reference.Side,
			p.Reference.ExecutedAt().UTC().Format(reportTimeLayout), p.Reference.ExecutedPrice().String(),
			p.Candidate.ExecutedAt().UTC().Format(reportTimeLayout), p.Candidate.ExecutedPrice().String(),
			p.TimeDiff.Round(time.Second), p.PriceDiff.Shift(2).StringFixed(3))
	case models.StatusUnmatchedReference:
		return fmt.Sprintf("UNMATCHED REF  %-4s @ %s %s",
			p.Reference.Side, p.Reference.ExecutedAt().UTC().Format(reportTimeLayout), p.Reference.ExecutedPrice().String())
	default:
		return fmt.Sprintf("UNMATCHED CAND %-4s @ %s %s",
			p.Candidate.Side, p.Candidate.ExecutedAt().UTC().Format(reportTimeLayout), p.Candidate.ExecutedPrice().String())
	}
}
