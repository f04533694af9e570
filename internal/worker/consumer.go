package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/log"
)

// LedgerConsumer is implemented by *amqp.Client.
type LedgerConsumer interface {
	ConsumeLedgerChanged(ctx context.Context, handler amqp.LedgerChangedHandler) error
}

// RunLedgerConsumer feeds ledger-change events to handler until ctx is
// cancelled. Cancellation is a clean stop and returns nil.
func RunLedgerConsumer(ctx context.Context, consumer LedgerConsumer, handler amqp.LedgerChangedHandler, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentWorker)

	var handled, failed atomic.Int64
	counting := func(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
		err := handler(ctx, msg)
		if err != nil {
			failed.Add(1)
		} else {
			handled.Add(1)
		}
		return err
	}

	logger.InfoContext(ctx, "Consuming ledger changes")
	err := consumer.ConsumeLedgerChanged(ctx, counting)
	logger.InfoContext(ctx, "Ledger consumer stopped", "handled", handled.Load(), "failed", failed.Load())

	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
