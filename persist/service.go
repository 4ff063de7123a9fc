package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Committer accepts batches for durable, ordered application.
type Committer interface {
	Commit(b *Batch)
}

// Config tunes the background writer.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Service applies batches asynchronously in the order they were committed.
// Pending batches are grouped into one transaction per flush; if that
// transaction fails each batch is retried in its own transaction so one bad
// batch cannot take its neighbours down with it.
type Service struct {
	db        *gorm.DB
	ch        chan *Batch
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	stopped   bool
	batchSize int
	interval  time.Duration
	failed    atomic.Int64
	applied   atomic.Int64
	logger    *zap.Logger
}

// New creates a new persistence Service and starts its background worker.
func New(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	svc := &Service{
		db:        db,
		ch:        make(chan *Batch, 1024),
		stopCh:    make(chan struct{}),
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		logger:    logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Commit enqueues b. It blocks while the queue is full rather than drop
// writes. After Stop, batches are applied synchronously.
func (svc *Service) Commit(b *Batch) {
	if b == nil || b.Empty() {
		return
	}
	svc.mu.RLock()
	if svc.stopped {
		svc.mu.RUnlock()
		svc.applyOne(b)
		return
	}
	svc.ch <- b
	svc.mu.RUnlock()
}

// Flush waits until every batch committed before the call has been written.
func (svc *Service) Flush(ctx context.Context) error {
	marker := &Batch{done: make(chan struct{})}
	svc.mu.RLock()
	if svc.stopped {
		svc.mu.RUnlock()
		return nil
	}
	svc.ch <- marker
	svc.mu.RUnlock()
	select {
	case <-marker.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the number of applied and failed batches.
func (svc *Service) Stats() (applied, failed int64) {
	return svc.applied.Load(), svc.failed.Load()
}

// Stop flushes remaining batches and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.mu.Lock()
	if svc.stopped {
		svc.mu.Unlock()
		return
	}
	svc.stopped = true
	close(svc.stopCh)
	svc.mu.Unlock()
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	pending := make([]*Batch, 0, svc.batchSize)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		svc.applyAll(pending)
		pending = pending[:0]
	}
	take := func(b *Batch) {
		if b.done != nil {
			flush()
			close(b.done)
			return
		}
		pending = append(pending, b)
		if len(pending) >= svc.batchSize {
			flush()
		}
	}

	for {
		select {
		case b := <-svc.ch:
			take(b)
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining batches.
			for {
				select {
				case b := <-svc.ch:
					take(b)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (svc *Service) applyAll(batches []*Batch) {
	err := svc.db.Transaction(func(tx *gorm.DB) error {
		for _, b := range batches {
			if err := b.Apply(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		svc.applied.Add(int64(len(batches)))
		return
	}
	svc.logger.Warn("persist group write failed, retrying per batch",
		zap.Int("batches", len(batches)), zap.Error(err))
	for _, b := range batches {
		svc.applyOne(b)
	}
}

func (svc *Service) applyOne(b *Batch) {
	if err := svc.db.Transaction(b.Apply); err != nil {
		svc.failed.Add(1)
		svc.logger.Error("persist batch write failed",
			zap.Int("ops", b.Len()), zap.Error(err))
		return
	}
	svc.applied.Add(1)
}
