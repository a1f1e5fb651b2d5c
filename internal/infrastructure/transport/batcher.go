package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
)

// Transport delivers one encoded batch. *Sender is the production implementation.
type Transport interface {
	Send(ctx context.Context, body []byte) error
}

// Observer receives pipeline events for self-monitoring.
type Observer interface {
	RecordsEnqueued(signal string, n int)
	FlushCompleted(signal string, records int, duration time.Duration, err error)
	PendingRecords(signal string, n int)
}

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	// Signal is the payload key: "spans", "logs" or "metrics"
	Signal        string
	BatchSize     int
	FlushInterval time.Duration
	Clock         clockz.Clock
	Logger        *zap.Logger
	Observer      Observer
}

// Batcher buffers records and ships them as {"<signal>": [...]} batches.
// A flush is triggered when the buffer reaches BatchSize, on every
// FlushInterval tick, and on Close. A failed batch is put back in front of
// whatever arrived while it was in flight, so nothing is dropped or sent twice.
// Safe for concurrent use.
type Batcher[T any] struct {
	signal    string
	batchSize int
	interval  time.Duration
	transport Transport
	clock     clockz.Clock
	logger    *zap.Logger
	observer  Observer

	mu     sync.Mutex
	buffer []T
	closed bool

	inflight  sync.WaitGroup
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewBatcher creates a batcher. Call Start to enable the periodic flush loop.
func NewBatcher[T any](transport Transport, cfg BatcherConfig) *Batcher[T] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Batcher[T]{
		signal:    cfg.Signal,
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		transport: transport,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With(zap.String("signal", cfg.Signal)),
		observer:  cfg.Observer,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the periodic flush loop. Safe to call more than once.
func (b *Batcher[T]) Start() {
	b.startOnce.Do(func() {
		go b.loop()
	})
}

func (b *Batcher[T]) loop() {
	defer close(b.done)

	for {
		select {
		case <-b.stop:
			return
		case <-b.clock.After(b.interval):
			// Failures are logged and requeued inside Flush.
			_ = b.Flush(context.Background())
		}
	}
}

// Add enqueues a record. Reaching the batch size starts a flush in the
// background; Add itself never blocks on the network. Records added after
// Close are dropped.
func (b *Batcher[T]) Add(rec T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("dropping record added after close")
		return
	}
	b.buffer = append(b.buffer, rec)
	n := len(b.buffer)
	trigger := n >= b.batchSize
	if trigger {
		b.inflight.Add(1)
	}
	b.mu.Unlock()

	if b.observer != nil {
		b.observer.RecordsEnqueued(b.signal, 1)
		b.observer.PendingRecords(b.signal, n)
	}

	if trigger {
		go func() {
			defer b.inflight.Done()
			_ = b.Flush(context.Background())
		}()
	}
}

// Pending returns the number of buffered records.
func (b *Batcher[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Flush sends everything currently buffered as one batch. It is a no-op for
// an empty buffer. On failure the batch is requeued and the error returned;
// callers that trigger flushes indirectly never see it.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	batch := b.drain()
	if len(batch) == 0 {
		return nil
	}

	body, err := sonic.Marshal(map[string][]T{b.signal: batch})
	if err != nil {
		// Records that cannot be encoded now never will be.
		b.logger.Error("dropping batch that failed to encode",
			zap.Int("records", len(batch)), zap.Error(err))
		b.report(len(batch), 0, err)
		return fmt.Errorf("encode %s batch: %w", b.signal, err)
	}

	start := b.clock.Now()
	err = b.transport.Send(ctx, body)
	elapsed := b.clock.Now().Sub(start)

	if err != nil {
		pending := b.requeue(batch)
		b.logger.Warn("flush failed, batch requeued",
			zap.Int("records", len(batch)),
			zap.Int("pending", pending),
			zap.Error(err))
		b.report(len(batch), elapsed, err)
		return fmt.Errorf("flush %s: %w", b.signal, err)
	}

	b.logger.Debug("flushed batch", zap.Int("records", len(batch)), zap.Duration("duration", elapsed))
	b.report(len(batch), elapsed, nil)
	return nil
}

// drain swaps the buffer out so records arriving during the send accumulate
// in a fresh buffer.
func (b *Batcher[T]) drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.buffer
	b.buffer = nil
	return batch
}

// requeue puts a failed batch back in front of newer arrivals.
func (b *Batcher[T]) requeue(batch []T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]T, 0, len(batch)+len(b.buffer))
	merged = append(merged, batch...)
	merged = append(merged, b.buffer...)
	b.buffer = merged
	return len(merged)
}

func (b *Batcher[T]) report(records int, elapsed time.Duration, err error) {
	if b.observer == nil {
		return
	}
	b.observer.FlushCompleted(b.signal, records, elapsed, err)
	b.observer.PendingRecords(b.signal, b.Pending())
}

// Close stops the flush loop, waits for threshold flushes already in flight,
// then performs one final flush and returns its result.
func (b *Batcher[T]) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.stop)
		b.startOnce.Do(func() { close(b.done) })
		<-b.done

		b.inflight.Wait()
		err = b.Flush(ctx)
	})
	return err
}
