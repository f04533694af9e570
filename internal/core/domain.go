package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// EntryID is the client-visible identifier of a line item, derived from
	// its creation time in milliseconds.
	EntryID string

	// Entry is an extra income or an expense line.
	Entry struct {
		ID          EntryID         `json:"id"`
		Description string          `json:"descricao"`
		Amount      decimal.Decimal `json:"valor"`
		Date        time.Time       `json:"data"`
	}

	// Debt is an outstanding obligation. Installment holds the amount charged
	// each month: the installment value when Installments is set, otherwise
	// the whole balance.
	Debt struct {
		ID           EntryID         `json:"id"`
		Creditor     string          `json:"credor"`
		Balance      decimal.Decimal `json:"saldo"`
		Installment  decimal.Decimal `json:"parcela"`
		Installments bool            `json:"isParcelada"`
		Date         time.Time       `json:"data"`
	}

	// MonthlyBucket holds everything recorded for one user in one month.
	MonthlyBucket struct {
		BaseIncome  decimal.Decimal `json:"rendaBase"`
		ExtraIncome []Entry         `json:"rendasExtras"`
		Expenses    []Entry         `json:"despesas"`
		Debts       []Debt          `json:"dividas"`
	}

	// UserDocument is the single persisted record per user.
	UserDocument struct {
		Email             string                     `json:"email"`
		MonthlyHistory    map[MonthKey]MonthlyBucket `json:"historicoMensal,omitempty"`
		BaseMonthlyIncome decimal.Decimal            `json:"rendaMensal"`
		FixedExpenses     []Entry                    `json:"despesasFixas"`
		Debts             []Debt                     `json:"dividas"`
		EmergencyReserve  decimal.Decimal            `json:"reservaEmergencia"`
		SetupCompleted    bool                       `json:"setupConcluido"`
		CreatedAt         time.Time                  `json:"criadoEm"`
		UpdatedAt         time.Time                  `json:"atualizadoEm,omitempty"`
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCreditor      = errors.New("empty creditor")
	ErrInvalidInstallment = errors.New("invalid installment")
	ErrEntryNotFound      = errors.New("entry not found")
)

// NewEntryID derives an id from t in milliseconds.
func NewEntryID(t time.Time) EntryID {
	return EntryID(strconv.FormatInt(t.UnixMilli(), 10))
}

// UnmarshalJSON accepts both the numeric ids written by older clients and strings.
func (id *EntryID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode entry id: %w", err)
	}
	*id = EntryID(n.String())
	return nil
}

// NewEntry builds an income or expense line stamped with now.
func NewEntry(description string, amount decimal.Decimal, now time.Time) (Entry, error) {
	e := Entry{
		ID:          NewEntryID(now),
		Description: strings.TrimSpace(description),
		Amount:      amount,
		Date:        now,
	}
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (e Entry) Validate() error {
	if e.Description == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// NewDebt builds a debt line. When installments is false the full balance is
// charged in the month and installment is ignored.
func NewDebt(creditor string, balance, installment decimal.Decimal, installments bool, now time.Time) (Debt, error) {
	d := Debt{
		ID:           NewEntryID(now),
		Creditor:     strings.TrimSpace(creditor),
		Balance:      balance,
		Installments: installments,
		Date:         now,
	}
	if installments {
		d.Installment = installment
	} else {
		d.Installment = balance
	}
	if err := d.Validate(); err != nil {
		return Debt{}, err
	}
	return d, nil
}

func (d Debt) Validate() error {
	if d.Creditor == "" {
		return ErrEmptyCreditor
	}
	if !d.Balance.IsPositive() {
		return ErrInvalidAmount
	}
	if d.Installments && !d.Installment.IsPositive() {
		return ErrInvalidInstallment
	}
	return nil
}

// MonthlyCharge is the amount this debt adds to the month's committed spend.
func (d Debt) MonthlyCharge() decimal.Decimal {
	return d.Installment
}

// HasInstallmentPlan reports whether a monthly charge is defined at all.
// Debts recorded with a balance only are candidates for renegotiation.
func (d Debt) HasInstallmentPlan() bool {
	return !d.Installment.IsZero()
}

// Clone returns a deep copy so callers can rewrite entry sequences freely.
func (b MonthlyBucket) Clone() MonthlyBucket {
	return MonthlyBucket{
		BaseIncome:  b.BaseIncome,
		ExtraIncome: append([]Entry(nil), b.ExtraIncome...),
		Expenses:    append([]Entry(nil), b.Expenses...),
		Debts:       append([]Debt(nil), b.Debts...),
	}
}

// Bucket returns the stored bucket for month, if any.
func (d *UserDocument) Bucket(month MonthKey) (MonthlyBucket, bool) {
	if d == nil || d.MonthlyHistory == nil {
		return MonthlyBucket{}, false
	}
	b, ok := d.MonthlyHistory[month]
	return b, ok
}

// SetBucket stores b under month, allocating the history map when needed.
func (d *UserDocument) SetBucket(month MonthKey, b MonthlyBucket) {
	if d.MonthlyHistory == nil {
		d.MonthlyHistory = make(map[MonthKey]MonthlyBucket)
	}
	d.MonthlyHistory[month] = b
}

// SumEntries adds up the amounts of a list of entries.
func SumEntries(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// SumInstallments adds up the monthly charge of every debt.
func SumInstallments(debts []Debt) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		total = total.Add(d.MonthlyCharge())
	}
	return total
}

// SumBalances adds up the outstanding balance of every debt.
func SumBalances(debts []Debt) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		total = total.Add(d.Balance)
	}
	return total
}
