package main

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
)

// parseNonNegative accepts zero besides what core.ParseAmount accepts.
func parseNonNegative(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if strings.Trim(trimmed, "0.,") == "" && trimmed != "" {
		return decimal.Zero, nil
	}
	return core.ParseAmount(s)
}
