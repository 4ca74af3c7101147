package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/jnst/chat-backend/internal/config"
	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/repository"
)

var (
	// ErrUnknownEventType is recorded when no decoder is registered for a record's type.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrMessageTimeout is recorded when publishing a record exceeds the per-message timeout.
	ErrMessageTimeout = errors.New("message processing timed out")
	// ErrHandlerPanic is recorded when a handler panics while publishing a record.
	ErrHandlerPanic = errors.New("handler panicked")
)

const releaseTimeout = 5 * time.Second

// ProcessorOption configures an OutboxProcessorImpl.
type ProcessorOption func(*OutboxProcessorImpl)

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *OutboxProcessorImpl) {
		p.logger = logger
	}
}

// WithLeaderElector makes the processor poll only while it holds leadership.
func WithLeaderElector(leader LeaderElector) ProcessorOption {
	return func(p *OutboxProcessorImpl) {
		p.leader = leader
	}
}

// WithMeterProvider sets the provider for processor metrics. The global provider is used by default.
func WithMeterProvider(provider metric.MeterProvider) ProcessorOption {
	return func(p *OutboxProcessorImpl) {
		p.meterProvider = provider
	}
}

func withSleep(sleep func(ctx context.Context, d time.Duration) error) ProcessorOption {
	return func(p *OutboxProcessorImpl) {
		p.sleep = sleep
	}
}

// OutboxProcessorImpl implements OutboxProcessor.
type OutboxProcessorImpl struct {
	outboxRepo    repository.OutboxRepository
	resolver      TypeResolver
	publisher     EventPublisher
	cfg           config.OutboxConfig
	logger        *slog.Logger
	leader        LeaderElector
	meterProvider metric.MeterProvider
	metrics       *processorMetrics
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewOutboxProcessorImpl creates a new OutboxProcessor implementation.
func NewOutboxProcessorImpl(
	outboxRepo repository.OutboxRepository,
	resolver TypeResolver,
	publisher EventPublisher,
	cfg config.OutboxConfig,
	opts ...ProcessorOption,
) (OutboxProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &OutboxProcessorImpl{
		outboxRepo: outboxRepo,
		resolver:   resolver,
		publisher:  publisher,
		cfg:        cfg,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.leader != nil && cfg.LeaderTTL <= 0 {
		return nil, errors.New("leader election needs a positive OUTBOX_LEADER_TTL")
	}

	metrics, err := newProcessorMetrics(p.meterProvider)
	if err != nil {
		return nil, err
	}

	p.metrics = metrics

	return p, nil
}

// Run polls the outbox until ctx is canceled.
func (p *OutboxProcessorImpl) Run(ctx context.Context) error {
	if !p.cfg.Enabled {
		p.logger.Info("outbox processor is disabled")

		return nil
	}

	p.logger.Info("outbox processor started",
		"batch_size", p.cfg.BatchSize,
		"parallel", p.cfg.Parallel,
		"max_parallelism", p.cfg.MaxParallelism,
	)

	if p.leader != nil {
		defer p.releaseLeadership(ctx)
	}

	for {
		delay := p.cycle(ctx)

		if ctx.Err() != nil {
			break
		}

		if delay <= 0 {
			continue
		}

		if err := p.sleep(ctx, delay); err != nil {
			break
		}
	}

	p.logger.Info("outbox processor stopped")

	return nil
}

// cycle runs one poll and returns how long to wait before the next one.
func (p *OutboxProcessorImpl) cycle(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("outbox poll cycle panicked", "panic", r)

			delay = p.cfg.ErrorRetryDelay
		}
	}()

	batchCtx := ctx

	if p.leader != nil {
		leader, err := p.leader.TryAcquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}

			p.logger.Error("failed to acquire outbox leadership", "error", err)

			return p.cfg.ErrorRetryDelay
		}

		if !leader {
			return p.cfg.EmptyQueueDelay
		}

		var release func()

		batchCtx, release = p.holdLeadership(ctx)
		defer release()
	}

	n, err := p.ProcessBatch(batchCtx)

	if ctx.Err() == nil && batchCtx.Err() != nil {
		return p.cfg.EmptyQueueDelay
	}

	switch {
	case err != nil:
		if ctx.Err() != nil {
			return 0
		}

		p.logger.Error("outbox poll failed", "error", err, "retry_in", p.cfg.ErrorRetryDelay)

		return p.cfg.ErrorRetryDelay
	case n == 0:
		return p.cfg.EmptyQueueDelay
	case n < p.cfg.BatchSize:
		return p.cfg.PartialBatchDelay
	default:
		return 0
	}
}

// ProcessBatch takes one batch and dispatches every record in it.
func (p *OutboxProcessorImpl) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()

	records, err := p.outboxRepo.TakeBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	if len(records) == 0 {
		return 0, nil
	}

	if p.cfg.Parallel && p.cfg.MaxParallelism > 1 {
		p.dispatchParallel(ctx, records)
	} else {
		p.dispatchSequential(ctx, records)
	}

	p.metrics.recordBatch(ctx, len(records), time.Since(start))

	return len(records), nil
}

func (p *OutboxProcessorImpl) dispatchSequential(ctx context.Context, records []*model.OutboxRecord) {
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}

		p.handle(ctx, rec)
	}
}

// dispatchParallel does not preserve order between records.
func (p *OutboxProcessorImpl) dispatchParallel(ctx context.Context, records []*model.OutboxRecord) {
	sem := semaphore.NewWeighted(int64(p.cfg.MaxParallelism))

	var wg sync.WaitGroup

	for _, rec := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer sem.Release(1)

			p.handle(ctx, rec)
		}()
	}

	wg.Wait()
}

func (p *OutboxProcessorImpl) handle(ctx context.Context, rec *model.OutboxRecord) {
	err := p.deliver(ctx, rec)

	// The outcome is written even when shutdown interrupted the delivery.
	markCtx := context.WithoutCancel(ctx)

	if err != nil {
		p.fail(markCtx, rec, err)

		return
	}

	if err := p.outboxRepo.MarkProcessed(markCtx, rec.ID); err != nil {
		p.logger.Error("failed to mark outbox record processed", "id", rec.ID, "error", err)

		return
	}

	p.metrics.recordProcessed(markCtx, rec.Name)
	p.logger.Debug("outbox record processed", "id", rec.ID, "event", rec.Name)
}

func (p *OutboxProcessorImpl) deliver(ctx context.Context, rec *model.OutboxRecord) error {
	decode, ok := p.resolver.Resolve(rec.Type)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, rec.Type)
	}

	evt, err := decode([]byte(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", rec.Type, err)
	}

	return p.publish(ctx, evt)
}

func (p *OutboxProcessorImpl) publish(ctx context.Context, evt model.DomainEvent) error {
	if p.cfg.MessageTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.cfg.MessageTimeout)
		defer cancel()
	}

	done := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()

		done <- p.publisher.Publish(ctx, evt)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrMessageTimeout, p.cfg.MessageTimeout)
		}

		return ctx.Err()
	}
}

func (p *OutboxProcessorImpl) fail(ctx context.Context, rec *model.OutboxRecord, cause error) {
	reason := cause.Error()

	if p.cfg.MaxAttempts > 0 && rec.Attempts+1 >= p.cfg.MaxAttempts {
		if err := p.outboxRepo.MarkDead(ctx, rec.ID, reason); err != nil {
			p.logger.Error("failed to mark outbox record dead", "id", rec.ID, "error", err)

			return
		}

		p.metrics.recordDead(ctx, rec.Name)
		p.logger.Error("outbox record moved to dead state",
			"id", rec.ID, "event", rec.Name, "attempts", rec.Attempts+1, "error", reason)

		return
	}

	if err := p.outboxRepo.MarkFailed(ctx, rec.ID, reason); err != nil {
		p.logger.Error("failed to mark outbox record failed", "id", rec.ID, "error", err)

		return
	}

	p.metrics.recordFailed(ctx, rec.Name)
	p.logger.Warn("outbox record failed",
		"id", rec.ID, "event", rec.Name, "attempts", rec.Attempts+1, "error", reason)
}

// holdLeadership renews the lease every third of its TTL while a batch runs, so
// a batch longer than the TTL keeps its lease. The returned context is canceled
// as soon as a renewal fails; records not yet started stay pending.
func (p *OutboxProcessorImpl) holdLeadership(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(p.cfg.LeaderTTL / 3)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			leader, err := p.leader.TryAcquire(ctx)

			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				p.logger.Error("failed to renew outbox leadership, stopping batch", "error", err)
			case !leader:
				p.logger.Warn("outbox leadership lost, stopping batch")
			default:
				continue
			}

			cancel()

			return
		}
	}()

	return ctx, func() {
		cancel()
		<-done
	}
}

func (p *OutboxProcessorImpl) releaseLeadership(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := p.leader.Release(releaseCtx); err != nil {
		p.logger.Warn("failed to release outbox leadership", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
