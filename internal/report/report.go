// Package report renders ledger views as CSV, YAML or JSON for the CLI and
// the download endpoints.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/zoeplatform/zoefinan/internal/services"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat accepts csv, yaml/yml and json in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "json", "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	default:
		return "application/json"
	}
}

// Delimiter separates CSV columns. Spreadsheets set to pt-BR expect ';'.
var Delimiter = ';'

type evolutionRow struct {
	Month   string `csv:"mes"`
	Label   string `csv:"rotulo"`
	Income  string `csv:"renda"`
	Outflow string `csv:"saidas"`
	Balance string `csv:"saldo"`
	Delta   string `csv:"variacao"`
}

type categoryRow struct {
	Name       string `csv:"categoria"`
	Amount     string `csv:"valor"`
	Percentage string `csv:"percentual"`
	Ideal      int    `csv:"ideal"`
	Status     string `csv:"status"`
}

func amount(d decimal.Decimal) string { return d.StringFixed(2) }

func writeCSV(w io.Writer, rows any) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// WriteEvolutionCSV writes one row per month. The first month has an empty variation.
func WriteEvolutionCSV(w io.Writer, points []services.EvolutionPoint) error {
	rows := make([]*evolutionRow, 0, len(points))
	for _, p := range points {
		row := &evolutionRow{
			Month:   string(p.Month),
			Label:   p.Label,
			Income:  amount(p.Income),
			Outflow: amount(p.Outflow),
			Balance: amount(p.Balance),
		}
		if p.DeltaFromPrevious != nil {
			row.Delta = amount(*p.DeltaFromPrevious)
		}
		rows = append(rows, row)
	}
	return writeCSV(w, &rows)
}

// WriteBreakdownCSV writes the category shares of a month.
func WriteBreakdownCSV(w io.Writer, shares []services.CategoryShare) error {
	rows := make([]*categoryRow, 0, len(shares))
	for _, s := range shares {
		rows = append(rows, &categoryRow{
			Name:       s.Name,
			Amount:     amount(s.Amount),
			Percentage: s.Percentage.StringFixed(1),
			Ideal:      s.Ideal,
			Status:     s.Status,
		})
	}
	return writeCSV(w, &rows)
}

// WriteYAML encodes v with two-space indentation.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return enc.Close()
}

// WriteJSON encodes v indented.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// Write renders v in format f. CSV is only defined for evolution series and
// category breakdowns.
func Write(w io.Writer, f Format, v any) error {
	switch f {
	case FormatYAML:
		return WriteYAML(w, v)
	case FormatJSON:
		return WriteJSON(w, v)
	case FormatCSV:
		switch t := v.(type) {
		case []services.EvolutionPoint:
			return WriteEvolutionCSV(w, t)
		case []services.CategoryShare:
			return WriteBreakdownCSV(w, t)
		}
		return fmt.Errorf("%w: csv for %T", ErrUnsupportedFormat, v)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}
