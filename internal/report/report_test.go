package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/services"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestWriteEvolutionCSV(t *testing.T) {
	delta := dec("-400")
	points := []services.EvolutionPoint{
		{Month: "2026-01", Label: "janeiro de 2026", Income: dec("3000"), Outflow: dec("1200"), Balance: dec("1800")},
		{Month: "2026-02", Label: "fevereiro de 2026", Income: dec("3000"), Outflow: dec("1600"), Balance: dec("1400"), DeltaFromPrevious: &delta},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEvolutionCSV(&buf, points))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "mes;rotulo;renda;saidas;saldo;variacao", lines[0])
	assert.Equal(t, "2026-01;janeiro de 2026;3000.00;1200.00;1800.00;", lines[1])
	assert.Equal(t, "2026-02;fevereiro de 2026;3000.00;1600.00;1400.00;-400.00", lines[2])
}

func TestWriteBreakdownCSV(t *testing.T) {
	shares := services.CategoryBreakdown(dec("2000"),
		[]core.Entry{{ID: "1", Description: "Aluguel", Amount: dec("1200")}},
		nil)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, shares))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "categoria;valor;percentual;ideal;status", lines[0])
	assert.Equal(t, "Despesas;1200.00;60.0;50;critical", lines[1])
	assert.Equal(t, "Dívidas;0.00;0.0;20;ok", lines[2])
}

func TestWrite_CSVUnsupportedValue(t *testing.T) {
	err := Write(&bytes.Buffer{}, FormatCSV, services.Diagnosis{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteYAML(t *testing.T) {
	d := services.Diagnose(services.PlanInputs{
		Month:    "2026-03",
		Income:   dec("3000"),
		Expenses: []core.Entry{{ID: "1", Description: "Aluguel", Amount: dec("1000")}},
	})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, d))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "2026-03", decoded["month"])
	assert.Equal(t, "3000", decoded["income"])
	assert.Contains(t, decoded, "actions")
	assert.Contains(t, buf.String(), "free_balance: \"2000\"")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, map[string]string{"mes": "2026-03"}))
	assert.Equal(t, "{\n  \"mes\": \"2026-03\"\n}\n", buf.String())
}
