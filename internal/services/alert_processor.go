package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/cache"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/notify"
	"github.com/zoeplatform/zoefinan/internal/sheets"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

// AlertProcessor reacts to ledger changes: it re-scores the changed month,
// mails the user when the month turns critical and exports a summary row.
type AlertProcessor struct {
	store    storage.DocumentStore
	notifier notify.Notifier
	exporter sheets.SummaryAppender
	// alerted remembers the last status mailed per user and month so repeated
	// edits inside a critical month send one mail.
	alerted cache.Cache[string]
	now     core.Clock
	logger  *log.Logger
}

type AlertOption func(*AlertProcessor)

func WithNotifier(n notify.Notifier) AlertOption {
	return func(p *AlertProcessor) { p.notifier = n }
}

func WithSummaryExport(e sheets.SummaryAppender) AlertOption {
	return func(p *AlertProcessor) { p.exporter = e }
}

func WithAlertClock(clock core.Clock) AlertOption {
	return func(p *AlertProcessor) { p.now = clock }
}

// WithAlertMemory replaces the default in-process record of mailed alerts,
// e.g. with a Redis cache shared between worker replicas.
func WithAlertMemory(c cache.Cache[string]) AlertOption {
	return func(p *AlertProcessor) { p.alerted = c }
}

func NewAlertProcessor(store storage.DocumentStore, logger *log.Logger, opts ...AlertOption) *AlertProcessor {
	if logger == nil {
		logger = log.Default()
	}
	p := &AlertProcessor{
		store:   store,
		alerted: cache.NewLRUCache[string](1000, 24*time.Hour),
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AlertMemory exposes the mailed-alert record so callers can register it for sweeps.
func (p *AlertProcessor) AlertMemory() cache.Cache[string] { return p.alerted }

// HandleLedgerChanged is an amqp.LedgerChangedHandler. Returning an error
// asks the broker to redeliver.
func (p *AlertProcessor) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	month, err := core.ParseMonthKey(msg.Month)
	if err != nil {
		// A bad month never gets better on redelivery.
		p.logger.WarnContext(ctx, "Dropping ledger change with invalid month",
			log.FieldUserID, msg.UserID,
			log.FieldMonth, msg.Month)
		return nil
	}

	doc, err := p.store.Get(ctx, msg.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.InfoContext(ctx, "Ledger change for unknown user", log.FieldUserID, msg.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	snap := BuildSnapshot(doc, month, FallbackFull)
	fields := log.NewFields().
		WithLedger(msg.UserID, string(month)).
		WithHealth(snap.Health.Score, snap.Health.Status)
	fields[log.FieldReason] = msg.Reason
	p.logger.DebugContext(ctx, "Month re-scored", fields.ToSlice()...)

	// A failed alert is redelivered before anything is exported, so each
	// delivery that reaches the export appends one row.
	if err := p.alert(ctx, msg.UserID, doc.Email, snap); err != nil {
		return err
	}
	return p.export(ctx, msg.UserID, snap)
}

func (p *AlertProcessor) alert(ctx context.Context, uid, email string, snap MonthSnapshot) error {
	key := uid + "|" + string(snap.Month)
	if !snap.Health.IsCritical() {
		p.alerted.Delete(key)
		return nil
	}
	if p.notifier == nil || email == "" {
		return nil
	}
	if last, ok := p.alerted.Get(key); ok && last == snap.Health.Status {
		return nil
	}

	err := p.notifier.NotifyCriticalHealth(ctx, notify.HealthAlert{
		Email:      email,
		MonthLabel: snap.Label,
		Income:     snap.Totals.TotalIncome,
		Committed:  snap.Totals.Committed,
		Health:     snap.Health,
	})
	if err != nil {
		return fmt.Errorf("notify critical health: %w", err)
	}
	p.alerted.Set(key, snap.Health.Status)
	return nil
}

func (p *AlertProcessor) export(ctx context.Context, uid string, snap MonthSnapshot) error {
	if p.exporter == nil {
		return nil
	}
	_, err := p.exporter.AppendSummary(ctx, sheets.SummaryRow{
		Month:      snap.Month,
		UserID:     uid,
		Income:     snap.Totals.TotalIncome,
		Committed:  snap.Totals.Committed,
		Balance:    snap.Totals.Balance,
		Score:      snap.Health.Score,
		Status:     snap.Health.Status,
		RecordedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("export summary: %w", err)
	}
	return nil
}
