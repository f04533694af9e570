package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
)

// SetupExpense is one row of the first-run form. Rows with a zero amount are
// skipped.
type SetupExpense struct {
	Description string          `json:"descricao"`
	Amount      decimal.Decimal `json:"valor"`
}

// SetupDebt is one debt row of the first-run form. Rows without a creditor or
// with a zero balance are skipped.
type SetupDebt struct {
	Creditor     string          `json:"credor"`
	Balance      decimal.Decimal `json:"saldo"`
	Installment  decimal.Decimal `json:"parcela"`
	Installments bool            `json:"isParcelada"`
}

type SetupInput struct {
	BaseIncome decimal.Decimal `json:"rendaMensal"`
	Expenses   []SetupExpense  `json:"despesasFixas"`
	Debts      []SetupDebt     `json:"dividas"`
}

// CompleteSetup stores the first-run answers as both the account defaults and
// the current month's bucket.
func (s *LedgerService) CompleteSetup(ctx context.Context, uid string, in SetupInput) (*core.UserDocument, error) {
	if in.BaseIncome.IsNegative() {
		return nil, core.ErrInvalidAmount
	}
	now := s.now()
	month := s.months.CurrentMonthKey()
	expenses := setupExpenses(in.Expenses, now)
	debts := setupDebts(in.Debts, now)

	return s.mutate(ctx, uid, month, amqp.ReasonSetup, log.OpSetup, func(doc *core.UserDocument) error {
		doc.SetBucket(month, core.MonthlyBucket{
			BaseIncome:  in.BaseIncome,
			ExtraIncome: []core.Entry{},
			Expenses:    append([]core.Entry(nil), expenses...),
			Debts:       append([]core.Debt(nil), debts...),
		})
		doc.BaseMonthlyIncome = in.BaseIncome
		doc.FixedExpenses = expenses
		doc.Debts = debts
		doc.SetupCompleted = true
		return nil
	})
}

// Ids are spaced by a millisecond per row so one submission never collides.
func setupExpenses(rows []SetupExpense, now time.Time) []core.Entry {
	out := make([]core.Entry, 0, len(rows))
	for _, r := range rows {
		if !r.Amount.IsPositive() {
			continue
		}
		at := now.Add(time.Duration(len(out)) * time.Millisecond)
		out = append(out, core.Entry{
			ID:          core.NewEntryID(at),
			Description: strings.TrimSpace(r.Description),
			Amount:      r.Amount,
			Date:        now,
		})
	}
	return out
}

func setupDebts(rows []SetupDebt, now time.Time) []core.Debt {
	out := make([]core.Debt, 0, len(rows))
	for _, r := range rows {
		creditor := strings.TrimSpace(r.Creditor)
		if creditor == "" || !r.Balance.IsPositive() {
			continue
		}
		installment := r.Balance
		if r.Installments {
			installment = r.Installment
		}
		at := now.Add(time.Duration(len(out)) * time.Millisecond)
		out = append(out, core.Debt{
			ID:           core.NewEntryID(at),
			Creditor:     creditor,
			Balance:      r.Balance,
			Installment:  installment,
			Installments: r.Installments,
			Date:         now,
		})
	}
	return out
}

// ReplaceFixedExpenses rewrites the account's fixed expenses and the current
// month's expense sequence. A current month that was never stored starts from
// the account's base income.
func (s *LedgerService) ReplaceFixedExpenses(ctx context.Context, uid string, expenses []core.Entry) (*core.UserDocument, error) {
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	month := s.months.CurrentMonthKey()
	return s.mutate(ctx, uid, month, amqp.ReasonFixedExpenses, log.OpUpdate, func(doc *core.UserDocument) error {
		list := append([]core.Entry{}, expenses...)
		doc.FixedExpenses = list
		b, _ := ResolveMonth(doc, month, FallbackEmpty)
		b.Expenses = append([]core.Entry{}, list...)
		doc.SetBucket(month, normalizeBucket(b))
		return nil
	})
}

// ReplaceDebts rewrites the account's debts and the current month's debt sequence.
func (s *LedgerService) ReplaceDebts(ctx context.Context, uid string, debts []core.Debt) (*core.UserDocument, error) {
	for _, d := range debts {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	month := s.months.CurrentMonthKey()
	return s.mutate(ctx, uid, month, amqp.ReasonDebts, log.OpUpdate, func(doc *core.UserDocument) error {
		list := append([]core.Debt{}, debts...)
		doc.Debts = list
		b, _ := ResolveMonth(doc, month, FallbackEmpty)
		b.Debts = append([]core.Debt{}, list...)
		doc.SetBucket(month, normalizeBucket(b))
		return nil
	})
}

// normalizeBucket turns nil sequences into empty ones so stored buckets
// always carry all four fields.
func normalizeBucket(b core.MonthlyBucket) core.MonthlyBucket {
	if b.ExtraIncome == nil {
		b.ExtraIncome = []core.Entry{}
	}
	if b.Expenses == nil {
		b.Expenses = []core.Entry{}
	}
	if b.Debts == nil {
		b.Debts = []core.Debt{}
	}
	return b
}

// AddEmergencyReserve adds amount to the reserve and returns the new total.
func (s *LedgerService) AddEmergencyReserve(ctx context.Context, uid string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, core.ErrInvalidAmount
	}
	doc, err := s.mutate(ctx, uid, s.months.CurrentMonthKey(), amqp.ReasonReserve, log.OpUpdate, func(doc *core.UserDocument) error {
		doc.EmergencyReserve = doc.EmergencyReserve.Add(amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return doc.EmergencyReserve, nil
}

// ResetAccount wipes every financial field. Email and creation time survive.
func (s *LedgerService) ResetAccount(ctx context.Context, uid string) error {
	_, err := s.mutate(ctx, uid, s.months.CurrentMonthKey(), amqp.ReasonReset, log.OpReset, func(doc *core.UserDocument) error {
		doc.MonthlyHistory = map[core.MonthKey]core.MonthlyBucket{}
		doc.BaseMonthlyIncome = decimal.Zero
		doc.FixedExpenses = []core.Entry{}
		doc.Debts = []core.Debt{}
		doc.EmergencyReserve = decimal.Zero
		doc.SetupCompleted = false
		return nil
	})
	return err
}
