package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/guildbank/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID    string
	CharID     int64
	CharName   string
	Action     string
	Status     int
	Error      string
	IP         string
	DurationMs int
}

func (e Entry) record() *model.AuditLog {
	r := &model.AuditLog{
		TraceID:    e.TraceID,
		CharName:   e.CharName,
		Action:     e.Action,
		Status:     e.Status,
		Error:      e.Error,
		IP:         e.IP,
		DurationMs: e.DurationMs,
	}
	if e.CharID != 0 {
		id := e.CharID
		r.CharID = &id
	}
	return r
}

// Config tunes the write-behind queue. Zero fields take defaults.
type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	return c
}

// Service writes audit entries to the database in the background. Log
// never blocks a request; entries are dropped when the queue is full.
type Service struct {
	db     *gorm.DB
	cfg    Config
	queue  chan *model.AuditLog
	stop   chan struct{}
	once   sync.Once
	done   chan struct{}
	logger *zap.Logger

	written atomic.Int64
	dropped atomic.Int64
}

// New starts an audit Service.
func New(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	svc := &Service{
		db:     db,
		cfg:    cfg,
		queue:  make(chan *model.AuditLog, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go svc.run()
	return svc
}

// Log queues e for writing.
func (svc *Service) Log(e Entry) {
	select {
	case svc.queue <- e.record():
	default:
		svc.dropped.Add(1)
		svc.logger.Warn("audit queue full, dropping entry", zap.String("action", e.Action))
	}
}

// Stats returns how many entries were written and dropped so far.
func (svc *Service) Stats() (written, dropped int64) {
	return svc.written.Load(), svc.dropped.Load()
}

// Stop drains the queue and waits for the final write, or until ctx ends.
func (svc *Service) Stop(ctx context.Context) {
	svc.once.Do(func() { close(svc.stop) })
	select {
	case <-svc.done:
	case <-ctx.Done():
		svc.logger.Warn("audit stop timed out", zap.Error(ctx.Err()))
	}
}

func (svc *Service) run() {
	defer close(svc.done)
	ticker := time.NewTicker(svc.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(batch, svc.cfg.BatchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		} else {
			svc.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r := <-svc.queue:
			if batch = append(batch, r); len(batch) >= svc.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stop:
			for {
				select {
				case r := <-svc.queue:
					if batch = append(batch, r); len(batch) >= svc.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	CharID int64
	Action string
	Since  time.Time
	Limit  int
}

// Query returns the newest matching entries first. Limit is capped at 500.
func (svc *Service) Query(ctx context.Context, f Filter) ([]model.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 500
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(f.Limit)
	if f.CharID != 0 {
		q = q.Where("char_id = ?", f.CharID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var out []model.AuditLog
	return out, q.Find(&out).Error
}
