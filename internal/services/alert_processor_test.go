package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/notify"
	"github.com/zoeplatform/zoefinan/internal/sheets"
	"github.com/zoeplatform/zoefinan/internal/sheets/memory"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

type fakeNotifier struct {
	sent []notify.HealthAlert
	err  error
}

func (f *fakeNotifier) NotifyCriticalHealth(ctx context.Context, a notify.HealthAlert) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a)
	return nil
}

func criticalDoc() *core.UserDocument {
	doc := accountDoc()
	doc.SetBucket("2026-03", core.MonthlyBucket{
		BaseIncome: dec("2000"),
		Expenses:   []core.Entry{{ID: "1", Description: "Aluguel", Amount: dec("1900")}},
	})
	return doc
}

func newAlertFixture(t *testing.T) (*AlertProcessor, *storage.MemoryStore, *fakeNotifier, *memory.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	n := &fakeNotifier{}
	rows := memory.New()
	at := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)
	p := NewAlertProcessor(store, nil,
		WithNotifier(n),
		WithSummaryExport(rows),
		WithAlertClock(func() time.Time { return at }))
	return p, store, n, rows
}

func TestAlertProcessor_CriticalMonthMailsOnce(t *testing.T) {
	p, store, n, rows := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u1", criticalDoc()))

	msg := amqp.NewLedgerChangedMessage("u1", "2026-03", amqp.ReasonEntryAdded)
	require.NoError(t, p.HandleLedgerChanged(ctx, msg))
	require.NoError(t, p.HandleLedgerChanged(ctx, msg))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "ana@example.com", n.sent[0].Email)
	assert.Equal(t, "março de 2026", n.sent[0].MonthLabel)
	assert.Equal(t, core.StatusCritical, n.sent[0].Health.Status)

	exported, err := rows.ListSummaries(ctx, "2026-03")
	require.NoError(t, err)
	require.Len(t, exported, 2)
	assert.Equal(t, "u1", exported[0].UserID)
	assert.True(t, exported[0].Committed.Equal(dec("1900")))
	assert.Equal(t, 30, exported[0].Score)
}

func TestAlertProcessor_RecoveryRearmsAlert(t *testing.T) {
	p, store, n, _ := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u1", criticalDoc()))
	msg := amqp.NewLedgerChangedMessage("u1", "2026-03", amqp.ReasonEntryAdded)

	require.NoError(t, p.HandleLedgerChanged(ctx, msg))

	healthy := criticalDoc()
	healthy.MonthlyHistory["2026-03"] = core.MonthlyBucket{BaseIncome: dec("2000")}
	require.NoError(t, store.Set(ctx, "u1", healthy))
	require.NoError(t, p.HandleLedgerChanged(ctx, msg))

	require.NoError(t, store.Set(ctx, "u1", criticalDoc()))
	require.NoError(t, p.HandleLedgerChanged(ctx, msg))

	assert.Len(t, n.sent, 2)
}

func TestAlertProcessor_HealthyMonthOnlyExports(t *testing.T) {
	p, store, n, rows := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u1", accountDoc()))

	require.NoError(t, p.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("u1", "2026-03", amqp.ReasonSetup)))
	assert.Empty(t, n.sent)
	assert.Equal(t, 1, rows.Len())
}

func TestAlertProcessor_DropsUnprocessableMessages(t *testing.T) {
	p, _, n, rows := newAlertFixture(t)
	ctx := context.Background()

	assert.NoError(t, p.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("ghost", "2026-03", amqp.ReasonReset)))
	assert.NoError(t, p.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("u1", "março", amqp.ReasonReset)))
	assert.Empty(t, n.sent)
	assert.Zero(t, rows.Len())
}

func TestAlertProcessor_NotifierFailureIsRetried(t *testing.T) {
	p, store, n, rows := newAlertFixture(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u1", criticalDoc()))
	n.err = errors.New("smtp down")

	msg := amqp.NewLedgerChangedMessage("u1", "2026-03", amqp.ReasonEntryAdded)
	err := p.HandleLedgerChanged(ctx, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Zero(t, rows.Len(), "nothing is exported before the alert goes out")

	n.err = nil
	require.NoError(t, p.HandleLedgerChanged(ctx, msg))
	assert.Len(t, n.sent, 1, "a failed mail is not remembered as sent")
	assert.Equal(t, 1, rows.Len(), "the redelivery exports exactly one row")
}

type flakyExporter struct {
	fails int
	rows  []sheets.SummaryRow
}

func (e *flakyExporter) AppendSummary(_ context.Context, row sheets.SummaryRow) (string, error) {
	if e.fails > 0 {
		e.fails--
		return "", errors.New("quota exceeded")
	}
	e.rows = append(e.rows, row)
	return "A2", nil
}

func TestAlertProcessor_ExportFailureDoesNotMailTwice(t *testing.T) {
	store := storage.NewMemoryStore()
	n := &fakeNotifier{}
	exp := &flakyExporter{fails: 1}
	p := NewAlertProcessor(store, nil, WithNotifier(n), WithSummaryExport(exp))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "u1", criticalDoc()))

	msg := amqp.NewLedgerChangedMessage("u1", "2026-03", amqp.ReasonEntryAdded)
	err := p.HandleLedgerChanged(ctx, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	require.NoError(t, p.HandleLedgerChanged(ctx, msg))
	assert.Len(t, n.sent, 1)
	assert.Len(t, exp.rows, 1)
}
