package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

// FallbackMode selects what a month without a stored bucket resolves to.
type FallbackMode int

const (
	// FallbackFull uses the account-level income, fixed expenses and debts.
	FallbackFull FallbackMode = iota
	// FallbackEmpty keeps the account-level income but starts with no entries.
	FallbackEmpty
)

func (m FallbackMode) String() string {
	if m == FallbackEmpty {
		return "empty"
	}
	return "full"
}

// ParseFallbackMode accepts "full" and "empty"; blank means full.
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch s {
	case "", "full":
		return FallbackFull, nil
	case "empty":
		return FallbackEmpty, nil
	}
	return FallbackFull, fmt.Errorf("unknown fallback mode %q", s)
}

// EventPublisher announces ledger writes. Implemented by *amqp.Client.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, userID, month, reason string) error
}

var ErrNoUserDocument = errors.New("user has no financial document")

// LedgerService is the single read/aggregate/write path over user documents.
type LedgerService struct {
	store      storage.DocumentStore
	months     *core.MonthKeyService
	events     EventPublisher
	now        core.Clock
	logger     *log.Logger
	structured *log.StructuredLogger
}

type LedgerOption func(*LedgerService)

// WithEvents publishes a ledger change after every successful write.
func WithEvents(p EventPublisher) LedgerOption {
	return func(s *LedgerService) { s.events = p }
}

// WithLedgerClock stamps new entries with clock instead of time.Now.
func WithLedgerClock(clock core.Clock) LedgerOption {
	return func(s *LedgerService) { s.now = clock }
}

func WithLedgerLogger(l *log.Logger) LedgerOption {
	return func(s *LedgerService) { s.logger = l }
}

func NewLedgerService(store storage.DocumentStore, months *core.MonthKeyService, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:  store,
		months: months,
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.months == nil {
		s.months = core.NewMonthKeyService(s.now)
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	s.structured = log.NewStructuredLogger(s.logger)
	return s
}

// Months exposes the month-key service the ledger resolves against.
func (s *LedgerService) Months() *core.MonthKeyService { return s.months }

// ResolveMonth returns the stored bucket for month, or a fallback built from
// the account-level fields. The second result reports whether it was stored.
func ResolveMonth(doc *core.UserDocument, month core.MonthKey, mode FallbackMode) (core.MonthlyBucket, bool) {
	if b, ok := doc.Bucket(month); ok {
		return b.Clone(), true
	}
	b := core.MonthlyBucket{
		BaseIncome:  doc.BaseMonthlyIncome,
		ExtraIncome: []core.Entry{},
		Expenses:    []core.Entry{},
		Debts:       []core.Debt{},
	}
	if mode == FallbackFull {
		b.Expenses = append(b.Expenses, doc.FixedExpenses...)
		b.Debts = append(b.Debts, doc.Debts...)
	}
	return b, false
}

// PlanInputs is the data the diagnosis and strategy screens work from.
type PlanInputs struct {
	Month    core.MonthKey
	Income   decimal.Decimal
	Expenses []core.Entry
	Debts    []core.Debt
}

// ResolvePlanInputs applies the plan income rule: the month's base plus
// extras, or the account income when that sum is zero. Expense and debt
// lists come from the month when non-empty, else from the account.
func ResolvePlanInputs(doc *core.UserDocument, month core.MonthKey) PlanInputs {
	in := PlanInputs{
		Month:    month,
		Income:   doc.BaseMonthlyIncome,
		Expenses: doc.FixedExpenses,
		Debts:    doc.Debts,
	}
	b, ok := doc.Bucket(month)
	if !ok {
		return in
	}
	if monthIncome := b.BaseIncome.Add(core.SumEntries(b.ExtraIncome)); !monthIncome.IsZero() {
		in.Income = monthIncome
	}
	if len(b.Expenses) > 0 {
		in.Expenses = b.Expenses
	}
	if len(b.Debts) > 0 {
		in.Debts = b.Debts
	}
	return in
}

// MonthSnapshot is everything the home and analytics screens show for a month.
type MonthSnapshot struct {
	Month            core.MonthKey         `json:"month" yaml:"month"`
	Label            string                `json:"label" yaml:"label"`
	Stored           bool                  `json:"stored" yaml:"stored"`
	NeedsSetup       bool                  `json:"needsSetup" yaml:"needs_setup"`
	Bucket           core.MonthlyBucket    `json:"bucket" yaml:"-"`
	Totals           core.MonthTotals      `json:"totals" yaml:"totals"`
	Health           core.HealthAssessment `json:"health" yaml:"health"`
	SavingsRate      decimal.Decimal       `json:"savingsRate" yaml:"savings_rate"`
	EmergencyReserve decimal.Decimal       `json:"emergencyReserve" yaml:"emergency_reserve"`
}

// monthOrCurrent validates month, defaulting to the current month when blank.
func (s *LedgerService) monthOrCurrent(month core.MonthKey) (core.MonthKey, error) {
	if month == "" {
		return s.months.CurrentMonthKey(), nil
	}
	return core.ParseMonthKey(string(month))
}

// Document loads the user's document, mapping a missing one to ErrNoUserDocument.
func (s *LedgerService) Document(ctx context.Context, uid string) (*core.UserDocument, error) {
	doc, err := s.store.Get(ctx, uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoUserDocument
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

func (s *LedgerService) Snapshot(ctx context.Context, uid string, month core.MonthKey, mode FallbackMode) (MonthSnapshot, error) {
	month, err := s.monthOrCurrent(month)
	if err != nil {
		return MonthSnapshot{}, err
	}
	doc, err := s.Document(ctx, uid)
	if err != nil {
		return MonthSnapshot{}, err
	}
	return BuildSnapshot(doc, month, mode), nil
}

// BuildSnapshot aggregates one month of doc.
func BuildSnapshot(doc *core.UserDocument, month core.MonthKey, mode FallbackMode) MonthSnapshot {
	bucket, stored := ResolveMonth(doc, month, mode)
	totals := core.Totals(bucket)
	label, _ := core.FormatMonthLabel(string(month))

	rate := decimal.Zero
	if totals.TotalIncome.IsPositive() {
		rate = totals.Balance.Div(totals.TotalIncome).Mul(decimal.NewFromInt(100)).Round(0)
	}

	return MonthSnapshot{
		Month:            month,
		Label:            label,
		Stored:           stored,
		NeedsSetup:       !doc.SetupCompleted && !stored,
		Bucket:           bucket,
		Totals:           totals,
		Health:           totals.Health(),
		SavingsRate:      rate,
		EmergencyReserve: doc.EmergencyReserve,
	}
}

// EvolutionPoint is one month of the income/outflow chart.
type EvolutionPoint struct {
	Month   core.MonthKey   `json:"month" csv:"month" yaml:"month"`
	Label   string          `json:"label" csv:"label" yaml:"label"`
	Income  decimal.Decimal `json:"income" csv:"income" yaml:"income"`
	Outflow decimal.Decimal `json:"outflow" csv:"outflow" yaml:"outflow"`
	Balance decimal.Decimal `json:"balance" csv:"balance" yaml:"balance"`
	// DeltaFromPrevious is empty for the first month of the series.
	DeltaFromPrevious *decimal.Decimal `json:"deltaFromPrevious,omitempty" csv:"delta_from_previous" yaml:"delta_from_previous,omitempty"`
}

// Evolution returns the last count months ending at the current month.
func (s *LedgerService) Evolution(ctx context.Context, uid string, count int) ([]EvolutionPoint, error) {
	doc, err := s.Document(ctx, uid)
	if err != nil {
		return nil, err
	}
	return BuildEvolution(doc, s.months.MonthList(count)), nil
}

// BuildEvolution resolves each month with FallbackFull.
func BuildEvolution(doc *core.UserDocument, months []core.MonthKey) []EvolutionPoint {
	points := make([]EvolutionPoint, 0, len(months))
	for i, m := range months {
		bucket, _ := ResolveMonth(doc, m, FallbackFull)
		t := core.Totals(bucket)
		label, _ := core.FormatMonthLabel(string(m))
		p := EvolutionPoint{
			Month:   m,
			Label:   label,
			Income:  t.TotalIncome,
			Outflow: t.Committed,
			Balance: t.Balance,
		}
		if i > 0 {
			d := t.Balance.Sub(points[i-1].Balance)
			p.DeltaFromPrevious = &d
		}
		points = append(points, p)
	}
	return points
}

// mutate runs fn against the stored document and publishes the change.
func (s *LedgerService) mutate(ctx context.Context, uid string, month core.MonthKey, reason, op string, fn storage.Mutator) (*core.UserDocument, error) {
	doc, err := s.store.Update(ctx, uid, fn)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoUserDocument
	}
	if err != nil {
		return nil, err
	}

	s.structured.LogLedgerChange(ctx, uid, string(month), op, reason)
	s.publish(ctx, uid, month, reason)
	return doc, nil
}

// publish never fails the write; the document is already stored.
func (s *LedgerService) publish(ctx context.Context, uid string, month core.MonthKey, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerChanged(ctx, uid, string(month), reason); err != nil {
		s.structured.LogError(ctx, "Failed to publish ledger change", err,
			log.ComponentLedger, "publish", log.NewFields().WithLedger(uid, string(month)))
	}
}
