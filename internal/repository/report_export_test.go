package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ParityBot/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleResult() models.MatchResult {
	trades := roundTrip()
	cand := trades[0]
	cand.Source = models.SourceLive
	return models.MatchResult{
		Pairs: []models.MatchPair{
			{Reference: &trades[0], Candidate: &cand, Status: models.StatusMatched, PriceDiff: decimal.RequireFromString("0.0012"), TimeDiff: 30 * time.Second},
			{Reference: &trades[1], Status: models.StatusUnmatchedReference},
		},
		Matched: 1, ReferenceCount: 2, CandidateCount: 1, MatchRate: 0.5,
	}
}

func TestExportMatchCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, ExportMatchCSV(path, sampleResult()))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "MATCHED,1,BUY,2024-11-03 10:15:00,69012.5,1,BUY,2024-11-03 10:15:00,69012.5,0.1200,30", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "UNMATCHED_REFERENCE,2,SELL"))
}

func TestExportMatchXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, ExportMatchXLSX(path, sampleResult(), 0.02, 300))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rate, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "0.5", rate)

	rows, err := f.GetRows("Pairs")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "status", rows[0][0])
	assert.Equal(t, "UNMATCHED_REFERENCE", rows[2][0])
}
