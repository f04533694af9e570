package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zoeplatform/zoefinan/internal/amqp"
	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	"github.com/zoeplatform/zoefinan/internal/storage"
)

var errAlreadyMaterialized = errors.New("month already materialized")

// RolloverResult counts what one rollover run did.
type RolloverResult struct {
	Month        core.MonthKey `json:"month" yaml:"month"`
	Checked      int           `json:"checked" yaml:"checked"`
	Materialized int           `json:"materialized" yaml:"materialized"`
	Skipped      int           `json:"skipped" yaml:"skipped"`
	Failed       int           `json:"failed" yaml:"failed"`
}

// RolloverProcessor copies the account defaults into the current month for
// every user that has not recorded anything in it yet.
type RolloverProcessor struct {
	store       storage.DocumentStore
	months      *core.MonthKeyService
	events      EventPublisher
	concurrency int
	logger      *log.Logger
}

func NewRolloverProcessor(store storage.DocumentStore, months *core.MonthKeyService, events EventPublisher, concurrency int, logger *log.Logger) *RolloverProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RolloverProcessor{
		store:       store,
		months:      months,
		events:      events,
		concurrency: concurrency,
		logger:      logger.WithComponent(log.ComponentRollover),
	}
}

// Run materializes the current month. Per-user failures are logged and
// counted; only listing the users can fail the run.
func (p *RolloverProcessor) Run(ctx context.Context) (RolloverResult, error) {
	month := p.months.CurrentMonthKey()
	result := RolloverResult{Month: month}

	uids, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("list users: %w", err)
	}

	p.logger.InfoContext(ctx, "Starting month rollover",
		log.FieldMonth, string(month),
		log.FieldCount, len(uids),
		"concurrency", p.concurrency)

	var materialized, skipped, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, uid := range uids {
		g.Go(func() error {
			done, err := p.materialize(gctx, uid, month)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				p.logger.ErrorContext(gctx, "Failed to roll over user",
					log.FieldUserID, uid,
					log.FieldMonth, string(month),
					log.FieldError, err)
			case done:
				atomic.AddInt64(&materialized, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Checked = len(uids)
	result.Materialized = int(materialized)
	result.Skipped = int(skipped)
	result.Failed = int(failed)

	p.logger.InfoContext(ctx, "Month rollover complete",
		log.FieldMonth, string(month),
		"materialized", result.Materialized,
		"skipped", result.Skipped,
		"failed", result.Failed)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// materialize reports false when the month already had a bucket.
func (p *RolloverProcessor) materialize(ctx context.Context, uid string, month core.MonthKey) (bool, error) {
	_, err := p.store.Update(ctx, uid, func(doc *core.UserDocument) error {
		if _, ok := doc.Bucket(month); ok {
			return errAlreadyMaterialized
		}
		b, _ := ResolveMonth(doc, month, FallbackFull)
		doc.SetBucket(month, b)
		return nil
	})
	if errors.Is(err, errAlreadyMaterialized) || errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if p.events != nil {
		if err := p.events.PublishLedgerChanged(ctx, uid, string(month), amqp.ReasonRollover); err != nil {
			p.logger.WarnContext(ctx, "Failed to publish rollover",
				log.FieldUserID, uid,
				log.FieldError, err)
		}
	}
	return true, nil
}
