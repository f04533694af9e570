package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
)

// Action priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Category statuses in the breakdown.
const (
	CategoryOK       = "ok"
	CategoryCritical = "critical"
)

const noDataRecommendation = "Adicione seus lançamentos no Controle Mensal para gerar seu diagnóstico."

var (
	hundred = decimal.NewFromInt(100)

	debtActionLimit     = decimal.NewFromInt(20)
	expenseActionLimit  = decimal.NewFromInt(50)
	reserveShare        = decimal.NewFromFloat(0.1)
	minMonthlyReserve   = decimal.NewFromInt(50)
	nonEssentialCeiling = decimal.NewFromFloat(0.2)

	// Expense descriptions containing any of these are treated as survival costs.
	survivalKeywords = []string{"alimentação", "moradia", "água", "luz", "aluguel", "energia", "internet"}

	ErrInvalidReduction = errors.New("reduction must be between 0 and 100 percent")
)

// Action is one step of the diagnosis plan.
type Action struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority" yaml:"priority"`
}

// ActionPlan derives up to four actions from the plan inputs.
func ActionPlan(in PlanInputs) []Action {
	expenses := core.SumEntries(in.Expenses)
	installments := core.SumInstallments(in.Debts)
	free := in.Income.Sub(expenses.Add(installments))

	var actions []Action
	if in.Income.IsZero() {
		actions = append(actions, Action{
			ID:          "action-renda",
			Title:       "Defina sua Renda",
			Description: "Para gerar um plano preciso, precisamos saber quanto você ganha. Adicione sua renda base no Controle Mensal.",
			Priority:    PriorityHigh,
		})
	}

	if in.Income.IsPositive() {
		if pct := percentOf(installments, in.Income); pct.GreaterThan(debtActionLimit) {
			actions = append(actions, Action{
				ID:    "action-dividas",
				Title: "Reduzir Comprometimento com Dívidas",
				Description: fmt.Sprintf("Suas dívidas consomem %s%% da sua renda. O ideal é ficar abaixo de 20%%. Considere renegociar o saldo de %s.",
					pct.StringFixed(1), core.FormatBRL(core.SumBalances(in.Debts))),
				Priority: PriorityHigh,
			})
		}
		if pct := percentOf(expenses, in.Income); pct.GreaterThan(expenseActionLimit) {
			actions = append(actions, Action{
				ID:    "action-despesas",
				Title: "Cortar Gastos Supérfluos",
				Description: fmt.Sprintf("Suas despesas fixas estão em %s, representando %s%% da sua renda. Tente reduzir 10%% desse valor para ganhar fôlego.",
					core.FormatBRL(expenses), pct.StringFixed(1)),
				Priority: PriorityHigh,
			})
		}
	}

	if free.IsPositive() {
		actions = append(actions, Action{
			ID:    "action-reserva",
			Title: "Construir Reserva de Emergência",
			Description: fmt.Sprintf("Você tem um saldo livre de %s. Sugerimos separar %s (10%% da renda) este mês para sua segurança.",
				core.FormatBRL(free), core.FormatBRL(in.Income.Mul(reserveShare))),
			Priority: PriorityMedium,
		})
	}

	if len(actions) < 3 && in.Income.IsPositive() {
		actions = append(actions, Action{
			ID:          "action-investir",
			Title:       "Planejar Investimentos",
			Description: "Sua saúde financeira está estável. É o momento ideal para começar a estudar ativos que façam seu dinheiro trabalhar por você.",
			Priority:    PriorityLow,
		})
	}
	return actions
}

// CategoryShare is one bar of the spending breakdown.
type CategoryShare struct {
	Name       string          `json:"name" csv:"name" yaml:"name"`
	Amount     decimal.Decimal `json:"amount" csv:"amount" yaml:"amount"`
	Percentage decimal.Decimal `json:"percentage" csv:"percentage" yaml:"percentage"`
	Ideal      int             `json:"ideal" csv:"ideal" yaml:"ideal"`
	Status     string          `json:"status" csv:"status" yaml:"status"`
}

// CategoryBreakdown compares expenses and debt installments against their
// ideal share of income.
func CategoryBreakdown(income decimal.Decimal, expenses []core.Entry, debts []core.Debt) []CategoryShare {
	return []CategoryShare{
		categoryShare("Despesas", core.SumEntries(expenses), income, 50),
		categoryShare("Dívidas", core.SumInstallments(debts), income, 20),
	}
}

func categoryShare(name string, amount, income decimal.Decimal, ideal int) CategoryShare {
	pct := decimal.Zero
	if !income.IsZero() {
		pct = amount.Div(income).Mul(hundred)
	}
	status := CategoryOK
	if pct.GreaterThan(decimal.NewFromInt(int64(ideal))) {
		status = CategoryCritical
	}
	return CategoryShare{
		Name:       name,
		Amount:     amount,
		Percentage: pct.Round(1),
		Ideal:      ideal,
		Status:     status,
	}
}

// Diagnosis is the full diagnosis screen for one month.
type Diagnosis struct {
	Month        core.MonthKey         `json:"month" yaml:"month"`
	Income       decimal.Decimal       `json:"income" yaml:"income"`
	Expenses     decimal.Decimal       `json:"expenses" yaml:"expenses"`
	Installments decimal.Decimal       `json:"installments" yaml:"installments"`
	FreeBalance  decimal.Decimal       `json:"freeBalance" yaml:"free_balance"`
	Health       core.HealthAssessment `json:"health" yaml:"health"`
	Summary      string                `json:"summary" yaml:"summary"`
	Actions      []Action              `json:"actions" yaml:"actions"`
	Categories   []CategoryShare       `json:"categories" yaml:"categories"`
}

// Diagnose builds the diagnosis from plan inputs.
func Diagnose(in PlanInputs) Diagnosis {
	expenses := core.SumEntries(in.Expenses)
	installments := core.SumInstallments(in.Debts)
	committed := expenses.Add(installments)
	health := core.EvaluateFinancialHealth(in.Income, committed)

	summary := health.Recommendation
	if summary == "" {
		summary = noDataRecommendation
	}

	return Diagnosis{
		Month:        in.Month,
		Income:       in.Income,
		Expenses:     expenses,
		Installments: installments,
		FreeBalance:  in.Income.Sub(committed),
		Health:       health,
		Summary:      summary,
		Actions:      ActionPlan(in),
		Categories:   CategoryBreakdown(in.Income, in.Expenses, in.Debts),
	}
}

// Diagnosis reads month (blank means current) and diagnoses it.
func (s *LedgerService) Diagnosis(ctx context.Context, uid string, month core.MonthKey) (Diagnosis, error) {
	in, err := s.planInputs(ctx, uid, month)
	if err != nil {
		return Diagnosis{}, err
	}
	return Diagnose(in), nil
}

func (s *LedgerService) planInputs(ctx context.Context, uid string, month core.MonthKey) (PlanInputs, error) {
	month, err := s.monthOrCurrent(month)
	if err != nil {
		return PlanInputs{}, err
	}
	doc, err := s.Document(ctx, uid)
	if err != nil {
		return PlanInputs{}, err
	}
	return ResolvePlanInputs(doc, month), nil
}

// PlanAlert is a warning box of the strategic plan.
type PlanAlert struct {
	Title   string `json:"title" yaml:"title"`
	Message string `json:"message" yaml:"message"`
}

// DebtTarget is a debt without an installment plan, suggested for renegotiation.
type DebtTarget struct {
	ID       core.EntryID    `json:"id" yaml:"id"`
	Creditor string          `json:"credor" yaml:"creditor"`
	Balance  decimal.Decimal `json:"saldo" yaml:"balance"`
	Advice   string          `json:"advice" yaml:"advice"`
}

// StrategicPlan splits income into survival, debt and reserve budgets.
type StrategicPlan struct {
	Month                core.MonthKey   `json:"month" yaml:"month"`
	Income               decimal.Decimal `json:"income" yaml:"income"`
	SurvivalCosts        decimal.Decimal `json:"survivalCosts" yaml:"survival_costs"`
	OtherSpending        decimal.Decimal `json:"otherSpending" yaml:"other_spending"`
	Installments         decimal.Decimal `json:"installments" yaml:"installments"`
	BalanceAfterSurvival decimal.Decimal `json:"balanceAfterSurvival" yaml:"balance_after_survival"`
	MonthlyReserve       decimal.Decimal `json:"monthlyReserve" yaml:"monthly_reserve"`
	DebtAttackBudget     decimal.Decimal `json:"debtAttackBudget" yaml:"debt_attack_budget"`
	SurvivalTip          string          `json:"survivalTip" yaml:"survival_tip"`
	Alert                *PlanAlert      `json:"alert,omitempty" yaml:"alert,omitempty"`
	NonEssentialWarning  string          `json:"nonEssentialWarning,omitempty" yaml:"non_essential_warning,omitempty"`
	Targets              []DebtTarget    `json:"targets" yaml:"targets"`
	NoDebtsMessage       string          `json:"noDebtsMessage,omitempty" yaml:"no_debts_message,omitempty"`
}

// IsSurvivalExpense reports whether description names a basic living cost.
func IsSurvivalExpense(description string) bool {
	d := strings.ToLower(description)
	for _, k := range survivalKeywords {
		if strings.Contains(d, k) {
			return true
		}
	}
	return false
}

// BuildStrategicPlan applies the survival-first budgeting rules.
func BuildStrategicPlan(in PlanInputs) StrategicPlan {
	survival := decimal.Zero
	for _, e := range in.Expenses {
		if IsSurvivalExpense(e.Description) {
			survival = survival.Add(e.Amount)
		}
	}
	other := decimal.Max(core.SumEntries(in.Expenses).Sub(survival), decimal.Zero)
	installments := core.SumInstallments(in.Debts)
	after := in.Income.Sub(survival)

	reserve := after.Mul(reserveShare).Div(decimal.NewFromInt(10)).Floor().Mul(decimal.NewFromInt(10))
	reserve = decimal.Max(reserve, minMonthlyReserve)

	plan := StrategicPlan{
		Month:                in.Month,
		Income:               in.Income,
		SurvivalCosts:        survival,
		OtherSpending:        other,
		Installments:         installments,
		BalanceAfterSurvival: after,
		MonthlyReserve:       reserve,
		DebtAttackBudget:     decimal.Max(after.Sub(installments).Sub(other), decimal.Zero),
		SurvivalTip:          fmt.Sprintf("Priorize manter %s intocáveis para o básico.", core.FormatBRL(survival)),
		Targets:              []DebtTarget{},
	}

	if after.LessThan(other.Add(installments)) {
		plan.Alert = &PlanAlert{
			Title:   "Alerta de Orçamento Crítico",
			Message: "Sua renda atual mal cobre as despesas de sobrevivência e parcelas. Não utilize seu saldo de alimentação/moradia para pagar dívidas totais agora. Foque em renegociar o que não está parcelado.",
		}
	}
	if other.GreaterThan(in.Income.Mul(nonEssentialCeiling)) {
		plan.NonEssentialWarning = "Tente manter gastos não essenciais abaixo de 20% da renda para sobrar para as dívidas."
	}

	for _, d := range in.Debts {
		if d.Balance.IsPositive() && !d.HasInstallmentPlan() {
			plan.Targets = append(plan.Targets, DebtTarget{
				ID:       d.ID,
				Creditor: d.Creditor,
				Balance:  d.Balance,
				Advice: fmt.Sprintf("Esta dívida não está parcelada. Entre em contato para transformar o saldo de %s em parcelas que caibam no seu saldo livre.",
					core.FormatBRL(d.Balance)),
			})
		}
	}
	if len(in.Debts) == 0 {
		plan.NoDebtsMessage = "Você não possui dívidas ativas para atacar no momento. Parabéns!"
	}
	return plan
}

func (s *LedgerService) StrategicPlan(ctx context.Context, uid string, month core.MonthKey) (StrategicPlan, error) {
	in, err := s.planInputs(ctx, uid, month)
	if err != nil {
		return StrategicPlan{}, err
	}
	return BuildStrategicPlan(in), nil
}

// Simulation is the outcome of cutting one expense by a percentage.
type Simulation struct {
	Name          string          `json:"name" yaml:"name"`
	Reduction     int             `json:"reduction" yaml:"reduction"`
	Current       decimal.Decimal `json:"current" yaml:"current"`
	NewExpense    decimal.Decimal `json:"newExpense" yaml:"new_expense"`
	MonthlySaving decimal.Decimal `json:"monthlySaving" yaml:"monthly_saving"`
	IncomeImpact  decimal.Decimal `json:"incomeImpact" yaml:"income_impact"`
	AnnualSaving  decimal.Decimal `json:"annualSaving" yaml:"annual_saving"`
}

// Simulate cuts expense by reduction percent. IncomeImpact is zero when
// income is zero.
func Simulate(name string, expense, income decimal.Decimal, reduction int) (Simulation, error) {
	if reduction < 0 || reduction > 100 {
		return Simulation{}, ErrInvalidReduction
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(reduction))).Div(hundred)
	newExpense := expense.Mul(factor)
	saved := expense.Sub(newExpense)

	return Simulation{
		Name:          name,
		Reduction:     reduction,
		Current:       expense,
		NewExpense:    newExpense.Round(2),
		MonthlySaving: saved.Round(2),
		IncomeImpact:  percentOf(saved, income).Round(1),
		AnnualSaving:  saved.Mul(decimal.NewFromInt(12)).Round(2),
	}, nil
}

// SimulateReduction simulates cutting the expense with id in the current
// month, or the whole expense total when id is blank.
func (s *LedgerService) SimulateReduction(ctx context.Context, uid string, id core.EntryID, reduction int) (Simulation, error) {
	in, err := s.planInputs(ctx, uid, "")
	if err != nil {
		return Simulation{}, err
	}
	if id == "" {
		return Simulate("Despesas", core.SumEntries(in.Expenses), in.Income, reduction)
	}
	for _, e := range in.Expenses {
		if e.ID == id {
			return Simulate(e.Description, e.Amount, in.Income, reduction)
		}
	}
	return Simulation{}, core.ErrEntryNotFound
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
