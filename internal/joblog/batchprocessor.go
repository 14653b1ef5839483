package joblog

import (
	"context"
	"time"

	"github.com/mikestefanello/batcher"
	"go.uber.org/zap"

	"github.com/chainline/chainline/internal/logging"
	"github.com/chainline/chainline/internal/pipeline"
)

// BatchProcessorConfig configures the batch processor.
type BatchProcessorConfig struct {
	ItemCountThreshold int
	DelayThreshold     time.Duration
}

// BatchProcessor batches worker log records and writes them to the store.
// It is the LogSink wired into the worker registry: workers log
// fire-and-forget, the batcher amortizes the store writes.
type BatchProcessor struct {
	ctx     context.Context
	logger  *logging.Logger
	store   Store
	batcher *batcher.Batcher[Entry]
}

var _ pipeline.LogSink = &BatchProcessor{}

// NewBatchProcessor creates a new batch processor for worker log records.
func NewBatchProcessor(ctx context.Context, logger *logging.Logger, store Store, cfg BatchProcessorConfig) (*BatchProcessor, error) {
	bp := &BatchProcessor{
		ctx:    ctx,
		logger: logger,
		store:  store,
	}

	b, err := batcher.NewBatcher(batcher.Config[Entry]{
		GroupCountThreshold: 2,
		ItemCountThreshold:  cfg.ItemCountThreshold,
		DelayThreshold:      cfg.DelayThreshold,
		NumGoroutines:       1,
		Processor:           bp.processBatch,
	})
	if err != nil {
		return nil, err
	}

	bp.batcher = b
	return bp, nil
}

// Write adds one worker record to the current batch.
func (bp *BatchProcessor) Write(_ context.Context, rec pipeline.Record) {
	bp.batcher.Add("", Entry{
		Level:       rec.Level,
		WorkerType:  rec.WorkerType,
		InstanceID:  rec.InstanceID,
		ExecutionID: rec.ExecutionID,
		Message:     rec.Message,
		Time:        rec.Time,
	})
}

// Shutdown flushes pending entries and stops the batcher.
func (bp *BatchProcessor) Shutdown() {
	bp.batcher.Shutdown()
}

func (bp *BatchProcessor) processBatch(_ string, entries []Entry) {
	logger := bp.logger.Ctx(bp.ctx)
	if err := bp.store.InsertMany(bp.ctx, entries); err != nil {
		logger.Error("failed to insert log entries",
			zap.Error(err),
			zap.Int("entry_count", len(entries)))
		return
	}
	logger.Info("log batch persisted", zap.Int("count", len(entries)))
}
