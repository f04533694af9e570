package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
)

// EntryKind names the three line-item sequences of a month bucket.
type EntryKind string

const (
	KindExtraIncome EntryKind = "renda"
	KindExpense     EntryKind = "despesa"
	KindDebt        EntryKind = "divida"
)

// ParseEntryKind accepts the wire names used by the entries screen.
func ParseEntryKind(s string) (EntryKind, error) {
	switch k := EntryKind(s); k {
	case KindExtraIncome, KindExpense, KindDebt:
		return k, nil
	}
	return "", fmt.Errorf("unknown entry kind %q", s)
}

// editBucket resolves month with FallbackEmpty, lets fn rewrite it and stores it back.
func (s *LedgerService) editBucket(ctx context.Context, uid string, month core.MonthKey, reason, op string, fn func(*core.MonthlyBucket) error) (core.MonthlyBucket, error) {
	month, err := s.monthOrCurrent(month)
	if err != nil {
		return core.MonthlyBucket{}, err
	}

	var result core.MonthlyBucket
	_, err = s.mutate(ctx, uid, month, reason, op, func(doc *core.UserDocument) error {
		b, _ := ResolveMonth(doc, month, FallbackEmpty)
		if err := fn(&b); err != nil {
			return err
		}
		doc.SetBucket(month, b)
		result = b.Clone()
		return nil
	})
	if err != nil {
		return core.MonthlyBucket{}, err
	}
	return result, nil
}

func (s *LedgerService) AddExtraIncome(ctx context.Context, uid string, month core.MonthKey, description string, amount decimal.Decimal) (core.MonthlyBucket, error) {
	e, err := core.NewEntry(description, amount, s.now())
	if err != nil {
		return core.MonthlyBucket{}, err
	}
	return s.editBucket(ctx, uid, month, amqp.ReasonEntryAdded, log.OpCreate, func(b *core.MonthlyBucket) error {
		b.ExtraIncome = append(b.ExtraIncome, e)
		return nil
	})
}

func (s *LedgerService) AddExpense(ctx context.Context, uid string, month core.MonthKey, description string, amount decimal.Decimal) (core.MonthlyBucket, error) {
	e, err := core.NewEntry(description, amount, s.now())
	if err != nil {
		return core.MonthlyBucket{}, err
	}
	return s.editBucket(ctx, uid, month, amqp.ReasonEntryAdded, log.OpCreate, func(b *core.MonthlyBucket) error {
		b.Expenses = append(b.Expenses, e)
		return nil
	})
}

// AddDebt records a debt. Without installments the whole balance is the
// month's charge and installment is ignored.
func (s *LedgerService) AddDebt(ctx context.Context, uid string, month core.MonthKey, creditor string, balance, installment decimal.Decimal, installments bool) (core.MonthlyBucket, error) {
	d, err := core.NewDebt(creditor, balance, installment, installments, s.now())
	if err != nil {
		return core.MonthlyBucket{}, err
	}
	return s.editBucket(ctx, uid, month, amqp.ReasonEntryAdded, log.OpCreate, func(b *core.MonthlyBucket) error {
		b.Debts = append(b.Debts, d)
		return nil
	})
}

// RemoveEntry drops the entry with id from the kind sequence of month.
func (s *LedgerService) RemoveEntry(ctx context.Context, uid string, month core.MonthKey, kind EntryKind, id core.EntryID) (core.MonthlyBucket, error) {
	return s.editBucket(ctx, uid, month, amqp.ReasonEntryRemoved, log.OpDelete, func(b *core.MonthlyBucket) error {
		var ok bool
		switch kind {
		case KindExtraIncome:
			b.ExtraIncome, ok = removeEntry(b.ExtraIncome, id)
		case KindExpense:
			b.Expenses, ok = removeEntry(b.Expenses, id)
		case KindDebt:
			b.Debts, ok = removeDebt(b.Debts, id)
		default:
			return fmt.Errorf("unknown entry kind %q", kind)
		}
		if !ok {
			return core.ErrEntryNotFound
		}
		return nil
	})
}

func (s *LedgerService) RemoveExtraIncome(ctx context.Context, uid string, month core.MonthKey, id core.EntryID) (core.MonthlyBucket, error) {
	return s.RemoveEntry(ctx, uid, month, KindExtraIncome, id)
}

func (s *LedgerService) RemoveExpense(ctx context.Context, uid string, month core.MonthKey, id core.EntryID) (core.MonthlyBucket, error) {
	return s.RemoveEntry(ctx, uid, month, KindExpense, id)
}

func (s *LedgerService) RemoveDebt(ctx context.Context, uid string, month core.MonthKey, id core.EntryID) (core.MonthlyBucket, error) {
	return s.RemoveEntry(ctx, uid, month, KindDebt, id)
}

// SetBaseIncome overwrites the month's base income. Zero is allowed.
func (s *LedgerService) SetBaseIncome(ctx context.Context, uid string, month core.MonthKey, amount decimal.Decimal) (core.MonthlyBucket, error) {
	if amount.IsNegative() {
		return core.MonthlyBucket{}, core.ErrInvalidAmount
	}
	return s.editBucket(ctx, uid, month, amqp.ReasonIncomeSet, log.OpUpdate, func(b *core.MonthlyBucket) error {
		b.BaseIncome = amount
		return nil
	})
}

func removeEntry(entries []core.Entry, id core.EntryID) ([]core.Entry, bool) {
	out := make([]core.Entry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.ID == id {
			found = true
			continue
		}
		out = append(out, e)
	}
	return out, found
}

func removeDebt(debts []core.Debt, id core.EntryID) ([]core.Debt, bool) {
	out := make([]core.Debt, 0, len(debts))
	found := false
	for _, d := range debts {
		if d.ID == id {
			found = true
			continue
		}
		out = append(out, d)
	}
	return out, found
}
