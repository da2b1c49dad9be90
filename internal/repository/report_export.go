package repository

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ParityBot/internal/domain/models"

	"github.com/xuri/excelize/v2"
)

var matchReportHeader = []string{
	"status", "ref_sequence", "ref_side", "ref_time", "ref_price",
	"cand_sequence", "cand_side", "cand_time", "cand_price",
	"price_diff_pct", "time_diff_sec",
}

func matchRows(res models.MatchResult) [][]string {
	rows := make([][]string, 0, len(res.Pairs))
	for _, p := range res.Pairs {
		row := make([]string, len(matchReportHeader))
		row[0] = string(p.Status)
		if r := p.Reference; r != nil {
			row[1], row[2], row[3], row[4] = strconv.Itoa(r.Sequence), string(r.Side), formatTime(r.ExecutedAt()), r.ExecutedPrice().String()
		}
		if c := p.Candidate; c != nil {
			row[5], row[6], row[7], row[8] = strconv.Itoa(c.Sequence), string(c.Side), formatTime(c.ExecutedAt()), c.ExecutedPrice().String()
		}
		if p.Status == models.StatusMatched {
			row[9] = p.PriceDiff.Shift(2).StringFixed(4)
			row[10] = strconv.FormatFloat(p.TimeDiff.Seconds(), 'f', 0, 64)
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportMatchCSV writes one row per match pair.
func ExportMatchCSV(path string, res models.MatchResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(matchReportHeader); err != nil {
		return err
	}
	if err := w.WriteAll(matchRows(res)); err != nil {
		return err
	}
	return f.Close()
}

// ExportMatchXLSX writes a workbook with a Summary sheet and a Pairs sheet.
func ExportMatchXLSX(path string, res models.MatchResult, priceTol float64, timeTolSec float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	const summary, pairs = "Summary", "Pairs"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return err
	}
	summaryRows := [][]interface{}{
		{"Reference trades", res.ReferenceCount},
		{"Candidate trades", res.CandidateCount},
		{"Matched", res.Matched},
		{"Match rate", res.MatchRate},
		{"Price tolerance", priceTol},
		{"Time tolerance (s)", timeTolSec},
	}
	for i, r := range summaryRows {
		for j, v := range r {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue(summary, cell, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.NewSheet(pairs); err != nil {
		return err
	}
	all := append([][]string{matchReportHeader}, matchRows(res)...)
	for i, r := range all {
		for j, v := range r {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue(pairs, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}
