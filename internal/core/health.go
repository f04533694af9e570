package core

import "github.com/shopspring/decimal"

// Health status labels shown to the user.
const (
	StatusInsufficientData = "Dados insuficientes"
	StatusExcellent        = "Excelente"
	StatusHealthy          = "Saudável"
	StatusAttention        = "Atenção"
	StatusCritical         = "Crítico"
)

// Presentation tags carried alongside each status.
const (
	ColorGreen  = "text-green-600"
	ColorYellow = "text-yellow-600"
	ColorRed    = "text-red-600"

	IconDiamond = "💎"
	IconGreen   = "🟢"
	IconYellow  = "🟡"
	IconRed     = "🔴"
)

// HealthTier is an income band with its own commitment thresholds.
type HealthTier string

const (
	TierLow  HealthTier = "low"
	TierMid  HealthTier = "mid"
	TierHigh HealthTier = "high"
)

// HealthAssessment is the derived, never persisted result of EvaluateFinancialHealth.
type HealthAssessment struct {
	Score            int             `json:"score" yaml:"score"`
	Status           string          `json:"status" yaml:"status"`
	ColorTag         string          `json:"colorTag,omitempty" yaml:"color_tag,omitempty"`
	IconTag          string          `json:"iconTag,omitempty" yaml:"icon_tag,omitempty"`
	Recommendation   string          `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
	PercentCommitted decimal.Decimal `json:"percentCommitted" yaml:"percent_committed"`
}

// IsCritical reports whether the assessment landed in a Crítico branch.
func (h HealthAssessment) IsCritical() bool {
	return h.Status == StatusCritical
}

type tierRule struct {
	criticalAbove  decimal.Decimal
	attentionAbove decimal.Decimal

	criticalScore  int
	attentionScore int
	healthyScore   int

	criticalText  string
	attentionText string
	healthyText   string
}

var (
	lowTierCeiling = decimal.NewFromInt(3000)
	highTierFloor  = decimal.NewFromInt(8000)
	oneHundred     = decimal.NewFromInt(100)
)

var tierRules = map[HealthTier]tierRule{
	TierLow: {
		criticalAbove:  decimal.NewFromInt(90),
		attentionAbove: decimal.NewFromInt(75),
		criticalScore:  30,
		attentionScore: 60,
		healthyScore:   95,
		criticalText:   "Seu comprometimento está altíssimo, ultrapassando 90%. Mesmo para gastos básicos, tente buscar auxílios ou rendas extras para não entrar no vermelho.",
		attentionText:  "Você está na faixa de sobrevivência (75-90%). É uma situação comum para sua renda, mas tente manter uma pequena reserva se possível.",
		healthyText:    "Excelente! Você está conseguindo manter seus gastos abaixo de 75% da sua renda, o que é um ótimo sinal de controle básico.",
	},
	TierMid: {
		criticalAbove:  decimal.NewFromInt(75),
		attentionAbove: decimal.NewFromInt(60),
		criticalScore:  30,
		attentionScore: 55,
		healthyScore:   90,
		criticalText:   "Para sua faixa de renda, 75% de comprometimento já é considerado crítico. Reavalie gastos não essenciais.",
		attentionText:  "Atenção. Seu comprometimento está entre 60% e 75%. Tente reduzir para abrir espaço para investimentos.",
		healthyText:    "Bom controle financeiro. Você tem uma margem saudável para o seu nível de renda.",
	},
	TierHigh: {
		criticalAbove:  decimal.NewFromInt(65),
		attentionAbove: decimal.NewFromInt(50),
		criticalScore:  25,
		attentionScore: 50,
		healthyScore:   100,
		criticalText:   "Atenção! Com sua renda, ter mais de 65% comprometido indica um padrão de vida que pode estar sufocando sua capacidade de investir.",
		attentionText:  "Cuidado. Você está gastando mais de 50% da sua renda. Para o seu perfil, o ideal é que a sobra seja maior para acelerar seus planos.",
		healthyText:    "Parabéns! Sua saúde financeira está excelente. Você mantém gastos sob controle e tem alta capacidade de investimento.",
	},
}

const noCommitmentText = "Sua saúde financeira está impecável! Sem dívidas ou despesas registradas, você tem total liberdade para investir."

// TierFor selects the income band. The mid band includes both of its bounds.
func TierFor(income decimal.Decimal) HealthTier {
	switch {
	case income.LessThan(lowTierCeiling):
		return TierLow
	case income.LessThanOrEqual(highTierFloor):
		return TierMid
	default:
		return TierHigh
	}
}

// EvaluateFinancialHealth scores how much of a month's income is committed to
// expenses and debt installments. Thresholds relax for lower incomes and tighten
// for higher ones. Negative committed values are not rejected.
func EvaluateFinancialHealth(income, committed decimal.Decimal) HealthAssessment {
	if !income.IsPositive() {
		return HealthAssessment{Score: 0, Status: StatusInsufficientData}
	}

	if committed.IsZero() {
		return HealthAssessment{
			Score:            100,
			Status:           StatusExcellent,
			ColorTag:         ColorGreen,
			IconTag:          IconDiamond,
			Recommendation:   noCommitmentText,
			PercentCommitted: decimal.Zero,
		}
	}

	percent := committed.Div(income).Mul(oneHundred)
	rule := tierRules[TierFor(income)]

	switch {
	case percent.GreaterThan(rule.criticalAbove):
		return HealthAssessment{
			Score:            rule.criticalScore,
			Status:           StatusCritical,
			ColorTag:         ColorRed,
			IconTag:          IconRed,
			Recommendation:   rule.criticalText,
			PercentCommitted: percent,
		}
	case percent.GreaterThan(rule.attentionAbove):
		return HealthAssessment{
			Score:            rule.attentionScore,
			Status:           StatusAttention,
			ColorTag:         ColorYellow,
			IconTag:          IconYellow,
			Recommendation:   rule.attentionText,
			PercentCommitted: percent,
		}
	default:
		return HealthAssessment{
			Score:            rule.healthyScore,
			Status:           StatusHealthy,
			ColorTag:         ColorGreen,
			IconTag:          IconGreen,
			Recommendation:   rule.healthyText,
			PercentCommitted: percent,
		}
	}
}
