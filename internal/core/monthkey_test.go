package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(year int, month time.Month, day int) Clock {
	return func() time.Time {
		return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	}
}

func TestCurrentMonthKey(t *testing.T) {
	tests := []struct {
		name string
		now  Clock
		want MonthKey
	}{
		{name: "before epoch year", now: fixedClock(2025, time.July, 10), want: "2026-01"},
		{name: "long before epoch", now: fixedClock(1999, time.December, 31), want: "2026-01"},
		{name: "epoch month", now: fixedClock(2026, time.January, 1), want: "2026-01"},
		{name: "later in epoch year", now: fixedClock(2026, time.October, 16), want: "2026-10"},
		{name: "following year", now: fixedClock(2027, time.March, 2), want: "2027-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMonthKeyService(tt.now)
			assert.Equal(t, tt.want, svc.CurrentMonthKey())
		})
	}
}

func TestMonthList(t *testing.T) {
	svc := NewMonthKeyService(fixedClock(2026, time.April, 3))

	t.Run("fewer months than requested", func(t *testing.T) {
		got := svc.MonthList(12)
		assert.Equal(t, []MonthKey{"2026-01", "2026-02", "2026-03", "2026-04"}, got)
	})

	t.Run("last count months in ascending order", func(t *testing.T) {
		got := svc.MonthList(2)
		assert.Equal(t, []MonthKey{"2026-03", "2026-04"}, got)
	})

	t.Run("zero count is empty", func(t *testing.T) {
		got := svc.MonthList(0)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("negative count is empty", func(t *testing.T) {
		assert.Empty(t, svc.MonthList(-3))
	})

	t.Run("before epoch only the epoch exists", func(t *testing.T) {
		early := NewMonthKeyService(fixedClock(2024, time.May, 1))
		assert.Equal(t, []MonthKey{"2026-01"}, early.MonthList(6))
	})
}

func TestMonthListCrossesYearBoundary(t *testing.T) {
	svc := NewMonthKeyService(fixedClock(2027, time.February, 14))

	got := svc.MonthList(4)

	assert.Equal(t, []MonthKey{"2026-11", "2026-12", "2027-01", "2027-02"}, got)
	assert.Equal(t, svc.CurrentMonthKey(), got[len(got)-1])
	assert.Len(t, svc.MonthList(100), 14)
}

func TestFormatMonthLabel(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "2026-01", want: "janeiro de 2026"},
		{key: "2026-03", want: "março de 2026"},
		{key: "2027-12", want: "dezembro de 2027"},
		{key: "2026-13", wantErr: true},
		{key: "2026/01", wantErr: true},
		{key: "26-01", wantErr: true},
		{key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := FormatMonthLabel(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidMonthKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMonthKeyNavigation(t *testing.T) {
	k := MonthKey("2026-12")

	assert.Equal(t, MonthKey("2027-01"), k.Next())
	assert.Equal(t, MonthKey("2026-11"), k.Prev())
	assert.Equal(t, 2026, k.Year())
	assert.Equal(t, time.December, k.Month())
	assert.True(t, k.Prev().Before(k))
	assert.False(t, k.Before(k))
}

func TestMonthRange(t *testing.T) {
	assert.Equal(t, []MonthKey{"2026-11", "2026-12", "2027-01"}, MonthRange("2026-11", "2027-01"))
	assert.Equal(t, []MonthKey{"2026-05"}, MonthRange("2026-05", "2026-05"))
	assert.Nil(t, MonthRange("2026-06", "2026-05"))
}
