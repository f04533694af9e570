package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
	ports "github.com/zoeplatform/zoefinan/internal/sheets"
)

// parseSummaries converts a values matrix (as returned by the Sheets API)
// into the rows of month. Header and malformed rows are skipped.
func parseSummaries(values [][]interface{}, month core.MonthKey) []ports.SummaryRow {
	var out []ports.SummaryRow
	for _, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 7 || core.MonthKey(cols[0]) != month {
			continue
		}
		row, ok := parseRow(cols)
		if !ok {
			continue
		}
		out = append(out, row)
	}
	return out
}

func parseRow(cols []string) (ports.SummaryRow, bool) {
	income, ok1 := parseAmount(cols[2])
	committed, ok2 := parseAmount(cols[3])
	balance, ok3 := parseAmount(cols[4])
	score, err := strconv.Atoi(cols[5])
	if !ok1 || !ok2 || !ok3 || err != nil {
		return ports.SummaryRow{}, false
	}
	row := ports.SummaryRow{
		Month:     core.MonthKey(cols[0]),
		UserID:    cols[1],
		Income:    income,
		Committed: committed,
		Balance:   balance,
		Score:     score,
		Status:    cols[6],
	}
	if at, err := time.Parse(time.RFC3339, safeGet(cols, 7)); err == nil {
		row.RecordedAt = at
	}
	return row, true
}

// parseAmount accepts both "1234.56" and the pt-BR "1.234,56" a spreadsheet
// locale may render.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
