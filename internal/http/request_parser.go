// Package http exposes the ledger as a JSON API.
//
// This file holds the request decoding helpers shared by the handlers:
// bounded JSON bodies, month path parameters and money fields typed in
// Brazilian notation.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
)

// maxBodyBytes caps request bodies; the largest legitimate one is a setup form.
const maxBodyBytes = 1 << 20

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

var errMalformedBody = errors.New("malformed JSON body")

// decodeJSON reads a single JSON value into dst, rejecting unknown fields and
// trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return invalid("", fmt.Errorf("body larger than %d bytes", maxErr.Limit))
		}
		return invalid("", fmt.Errorf("%w: %v", errMalformedBody, err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalid("", fmt.Errorf("%w: trailing data", errMalformedBody))
	}
	return nil
}

// monthParam reads the {month} path variable. "current" and an empty value
// select the current month, which the ledger resolves itself.
func monthParam(r *http.Request) (core.MonthKey, error) {
	raw := strings.TrimSpace(mux.Vars(r)["month"])
	if raw == "" || raw == "current" {
		return "", nil
	}
	key, err := core.ParseMonthKey(raw)
	if err != nil {
		return "", invalid("month", err)
	}
	return key, nil
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(name, fmt.Errorf("not an integer: %q", raw))
	}
	return n, nil
}

// Amount is a money field that accepts a JSON number or a string in pt-BR
// notation ("1.234,56", "R$ 50,5").
type Amount struct {
	raw string
	set bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.raw = s
	} else {
		a.raw = string(b)
	}
	a.set = true
	return nil
}

// NewAmount builds an Amount from text, mainly for tests and the CLI.
func NewAmount(s string) Amount { return Amount{raw: s, set: true} }

// Positive parses the amount and requires it to be greater than zero.
func (a Amount) Positive(field string) (decimal.Decimal, error) {
	if !a.set {
		return decimal.Zero, invalid(field, errors.New("required"))
	}
	d, err := core.ParseAmount(a.raw)
	if err != nil {
		return decimal.Zero, invalid(field, err)
	}
	return d, nil
}

// NonNegative is Positive that also accepts zero and a missing value.
func (a Amount) NonNegative(field string) (decimal.Decimal, error) {
	if !a.set || isZeroAmount(a.raw) {
		return decimal.Zero, nil
	}
	return a.Positive(field)
}

func isZeroAmount(s string) bool {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsZero()
}

// sanitizeInput removes control characters except tab and newlines, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
