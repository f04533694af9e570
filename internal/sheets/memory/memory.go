package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/sheets"
)

var (
	_ sheets.SummaryAppender = (*Store)(nil)
	_ sheets.SummaryLister   = (*Store)(nil)
)

// Store keeps exported rows in process, for tests and sheet-less deployments.
type Store struct {
	mu   sync.Mutex
	rows []sheets.SummaryRow
}

func New() *Store {
	return &Store{}
}

// AppendSummary stores the row and returns a synthetic row reference.
func (s *Store) AppendSummary(_ context.Context, row sheets.SummaryRow) (string, error) {
	if row.UserID == "" {
		return "", errors.New("summary row without user id")
	}
	if _, err := core.ParseMonthKey(string(row.Month)); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ListSummaries returns the rows of month in insertion order.
func (s *Store) ListSummaries(_ context.Context, month core.MonthKey) ([]sheets.SummaryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.SummaryRow
	for _, r := range s.rows {
		if r.Month == month {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len reports how many rows were appended.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
