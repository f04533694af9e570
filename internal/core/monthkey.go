package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EpochKey is the first month the product knows about. Any earlier
// wall-clock date behaves as if it were this month.
const EpochKey MonthKey = "2026-01"

const (
	epochYear  = 2026
	epochMonth = time.January
)

// ErrInvalidMonthKey is returned when a string is not a well-formed YYYY-MM key.
var ErrInvalidMonthKey = errors.New("invalid month key")

// MonthKey identifies a calendar month bucket as "YYYY-MM".
type MonthKey string

// Clock returns the current time. Services take one so tests can pin "now".
type Clock func() time.Time

// pt-BR long month names, January first.
var monthNamesPtBR = [12]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// NewMonthKey builds a key from a year and month without applying the epoch floor.
func NewMonthKey(year int, month time.Month) MonthKey {
	return MonthKey(fmt.Sprintf("%04d-%02d", year, int(month)))
}

// ParseMonthKey validates s and returns it as a MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	return NewMonthKey(year, time.Month(month)), nil
}

// Year returns the year part. The key must be well-formed.
func (k MonthKey) Year() int {
	y, _ := strconv.Atoi(string(k)[:4])
	return y
}

// Month returns the month part. The key must be well-formed.
func (k MonthKey) Month() time.Month {
	m, _ := strconv.Atoi(string(k)[5:7])
	return time.Month(m)
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	t := time.Date(k.Year(), k.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return NewMonthKey(t.Year(), t.Month())
}

// Prev returns the preceding calendar month.
func (k MonthKey) Prev() MonthKey {
	t := time.Date(k.Year(), k.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	return NewMonthKey(t.Year(), t.Month())
}

// Before reports whether k is an earlier month than other.
// Zero-padded keys compare correctly as strings.
func (k MonthKey) Before(other MonthKey) bool {
	return k < other
}

func (k MonthKey) String() string {
	return string(k)
}

// MonthKeyFor applies the epoch floor to t.
func MonthKeyFor(t time.Time) MonthKey {
	if t.Year() < epochYear {
		return EpochKey
	}
	return NewMonthKey(t.Year(), t.Month())
}

// MonthRange lists every key from "from" through "to", inclusive and ascending.
// It returns nil when to is before from.
func MonthRange(from, to MonthKey) []MonthKey {
	if to.Before(from) {
		return nil
	}
	var keys []MonthKey
	for k := from; !to.Before(k); k = k.Next() {
		keys = append(keys, k)
	}
	return keys
}

// FormatMonthLabel renders a key as a pt-BR label such as "janeiro de 2026".
func FormatMonthLabel(key string) (string, error) {
	k, err := ParseMonthKey(key)
	if err != nil {
		return "", fmt.Errorf("format month label: %w", err)
	}
	return fmt.Sprintf("%s de %d", monthNamesPtBR[k.Month()-1], k.Year()), nil
}

// MonthKeyService derives month keys against an injected clock.
type MonthKeyService struct {
	now Clock
}

// NewMonthKeyService returns a service reading time from clock,
// or from time.Now when clock is nil.
func NewMonthKeyService(clock Clock) *MonthKeyService {
	if clock == nil {
		clock = time.Now
	}
	return &MonthKeyService{now: clock}
}

// CurrentMonthKey returns the real year-month, floored at EpochKey.
func (s *MonthKeyService) CurrentMonthKey() MonthKey {
	return MonthKeyFor(s.now())
}

// MonthList returns the most recent count months since the epoch in
// chronological order. Fewer keys come back when fewer months exist.
func (s *MonthKeyService) MonthList(count int) []MonthKey {
	if count <= 0 {
		return []MonthKey{}
	}
	all := MonthRange(EpochKey, s.CurrentMonthKey())
	if len(all) > count {
		all = all[len(all)-count:]
	}
	return all
}

// FormatMonthLabel is FormatMonthLabel bound to the service for callers
// that only hold a *MonthKeyService.
func (s *MonthKeyService) FormatMonthLabel(key string) (string, error) {
	return FormatMonthLabel(key)
}
