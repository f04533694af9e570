package core

import "github.com/shopspring/decimal"

// MonthTotals is the aggregate view of one resolved month bucket.
type MonthTotals struct {
	BaseIncome   decimal.Decimal `json:"baseIncome" csv:"base_income" yaml:"base_income"`
	ExtraIncome  decimal.Decimal `json:"extraIncome" csv:"extra_income" yaml:"extra_income"`
	TotalIncome  decimal.Decimal `json:"totalIncome" csv:"total_income" yaml:"total_income"`
	Expenses     decimal.Decimal `json:"expenses" csv:"expenses" yaml:"expenses"`
	Installments decimal.Decimal `json:"installments" csv:"installments" yaml:"installments"`
	Committed    decimal.Decimal `json:"committed" csv:"committed" yaml:"committed"`
	Balance      decimal.Decimal `json:"balance" csv:"balance" yaml:"balance"`
	DebtBalance  decimal.Decimal `json:"debtBalance" csv:"debt_balance" yaml:"debt_balance"`
}

// Totals sums a bucket. Committed is expenses plus debt installments and
// Balance is total income minus committed.
func Totals(b MonthlyBucket) MonthTotals {
	extras := SumEntries(b.ExtraIncome)
	expenses := SumEntries(b.Expenses)
	installments := SumInstallments(b.Debts)
	income := b.BaseIncome.Add(extras)
	committed := expenses.Add(installments)

	return MonthTotals{
		BaseIncome:   b.BaseIncome,
		ExtraIncome:  extras,
		TotalIncome:  income,
		Expenses:     expenses,
		Installments: installments,
		Committed:    committed,
		Balance:      income.Sub(committed),
		DebtBalance:  SumBalances(b.Debts),
	}
}

// Health evaluates the totals with EvaluateFinancialHealth.
func (t MonthTotals) Health() HealthAssessment {
	return EvaluateFinancialHealth(t.TotalIncome, t.Committed)
}
