package payment

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/payment"
)

// ErrDispatcherStopped is returned by Submit after Stop
var ErrDispatcherStopped = errors.New("payment event dispatcher stopped")

// EventApplier applies a provider event
type EventApplier interface {
	Apply(ctx context.Context, evt payment.ProviderEvent) (payment.Outcome, error)
}

type dispatchJob struct {
	ctx    context.Context
	event  payment.ProviderEvent
	result chan dispatchResult
}

type dispatchResult struct {
	outcome payment.Outcome
	err     error
}

// Dispatcher serializes events per payment intent while processing different intents in
// parallel. Each intent hashes to one worker; a worker handles its queue in order.
type Dispatcher struct {
	applier EventApplier
	queues  []chan dispatchJob
	logger  *zap.Logger
	running atomic.Bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given number of workers and per-worker queue size
func NewDispatcher(applier EventApplier, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	queues := make([]chan dispatchJob, workers)
	for i := range queues {
		queues[i] = make(chan dispatchJob, queueSize)
	}
	return &Dispatcher{applier: applier, queues: queues, logger: logger}
}

// Start launches the workers
func (d *Dispatcher) Start(_ context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return nil
	}
	for i, q := range d.queues {
		d.wg.Add(1)
		go d.work(i, q)
	}
	d.logger.Info("Payment event dispatcher started", zap.Int("workers", len(d.queues)))
	return nil
}

// Stop stops accepting events, drains the queues and waits for the workers
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running.CompareAndSwap(true, false) {
		d.mu.Unlock()
		return nil
	}
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("Payment event dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues the event on its intent's worker and waits for the result
func (d *Dispatcher) Submit(ctx context.Context, evt payment.ProviderEvent) (payment.Outcome, error) {
	job := dispatchJob{ctx: ctx, event: evt, result: make(chan dispatchResult, 1)}

	d.mu.RLock()
	if !d.running.Load() {
		d.mu.RUnlock()
		return "", ErrDispatcherStopped
	}
	select {
	case d.queues[d.shard(evt.ProviderIntentID)] <- job:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return "", ctx.Err()
	}

	select {
	case res := <-job.result:
		return res.outcome, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Dispatcher) shard(providerIntentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(providerIntentID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) work(id int, queue <-chan dispatchJob) {
	defer d.wg.Done()
	for job := range queue {
		if job.ctx.Err() != nil {
			job.result <- dispatchResult{err: job.ctx.Err()}
			continue
		}
		outcome, err := d.apply(job)
		job.result <- dispatchResult{outcome: outcome, err: err}
	}
	d.logger.Debug("Dispatcher worker exited", zap.Int("worker", id))
}

func (d *Dispatcher) apply(job dispatchJob) (outcome payment.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Payment event handler panicked",
				zap.String("event_id", job.event.EventID),
				zap.Any("panic", r),
			)
			err = errors.New("payment event handler panicked")
		}
	}()
	return d.applier.Apply(job.ctx, job.event)
}
