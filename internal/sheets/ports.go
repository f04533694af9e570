// Package sheets exports monthly health summaries to a spreadsheet.
package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
)

// SummaryRow is one exported line: a user's month after a ledger change.
type SummaryRow struct {
	Month      core.MonthKey
	UserID     string
	Income     decimal.Decimal
	Committed  decimal.Decimal
	Balance    decimal.Decimal
	Score      int
	Status     string
	RecordedAt time.Time
}

// Ports for outbound adapters.
type (
	SummaryAppender interface {
		AppendSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}

	// SummaryLister reads back the rows exported for one month.
	SummaryLister interface {
		ListSummaries(ctx context.Context, month core.MonthKey) ([]SummaryRow, error)
	}
)
