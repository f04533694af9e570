package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeplatform/zoefinan/internal/core"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMonthsCmd(t *testing.T) {
	out, err := run(t, "months", "-n", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "\t")
	assert.Contains(t, lines[1], " de ")
}

func TestHealthCmd(t *testing.T) {
	out, err := run(t, "health", "--income", "2.000,00", "--committed", "1900")
	require.NoError(t, err)

	var h core.HealthAssessment
	require.NoError(t, json.Unmarshal([]byte(out), &h))
	assert.True(t, h.IsCritical())

	out, err = run(t, "health", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "score:")

	_, err = run(t, "health", "--income", "-1")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = run(t, "health", "--format", "xml")
	assert.Error(t, err)
}

func TestParseNonNegative(t *testing.T) {
	for _, s := range []string{"0", "0,00", "R$ 0", "0.0"} {
		d, err := parseNonNegative(s)
		require.NoError(t, err, s)
		assert.True(t, d.IsZero(), s)
	}
	d, err := parseNonNegative("1.234,50")
	require.NoError(t, err)
	assert.Equal(t, "1234.5", d.String())

	_, err = parseNonNegative("")
	assert.Error(t, err)
}
