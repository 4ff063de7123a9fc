package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// Kind describes how a task repeats.
type Kind string

const (
	KindInterval Kind = "interval"
	KindDaily    Kind = "daily"
	KindOnce     Kind = "once"
)

// TaskInfo is a point-in-time view of a registered task.
type TaskInfo struct {
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run"`
	Runs    int64     `json:"runs"`
	Panics  int64     `json:"panics"`
}

// nextFunc returns when the task runs next after now, or false when it is
// finished.
type nextFunc func(now time.Time, ran bool) (time.Time, bool)

type task struct {
	name string
	kind Kind
	next nextFunc
	fn   TaskFn
	stop chan struct{}

	mu   sync.Mutex
	info TaskInfo
}

func (t *task) snapshot() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// Scheduler runs named tasks, each on its own goroutine. Adding a task
// under an existing name replaces it.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*task),
		logger: logger,
	}
}

// AddTicker runs fn every interval, first one interval from now.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.add(name, KindInterval, fn, func(now time.Time, _ bool) (time.Time, bool) {
		return now.Add(interval), true
	})
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.add(name, KindOnce, fn, func(now time.Time, ran bool) (time.Time, bool) {
		return now.Add(delay), !ran
	})
}

// AddDaily runs fn every day at hour:00 local time.
func (s *Scheduler) AddDaily(name string, hour int, fn TaskFn) {
	s.add(name, KindDaily, fn, func(now time.Time, _ bool) (time.Time, bool) {
		return now.Add(untilNext(now, hour)), true
	})
	s.logger.Info("scheduler daily task registered", zap.String("name", name), zap.Int("hour", hour))
}

// untilNext returns the wait from now to the next hour:00.
func untilNext(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (s *Scheduler) add(name string, kind Kind, fn TaskFn, next nextFunc) {
	t := &task{
		name: name,
		kind: kind,
		next: next,
		fn:   fn,
		stop: make(chan struct{}),
		info: TaskInfo{Name: name, Kind: kind},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.tasks[name]; ok {
		close(old.stop)
	}
	s.tasks[name] = t
	s.wg.Add(1)
	go s.loop(t)
}

func (s *Scheduler) loop(t *task) {
	defer s.wg.Done()
	ran := false
	for {
		at, ok := t.next(time.Now(), ran)
		if !ok {
			s.forget(t)
			return
		}
		t.mu.Lock()
		t.info.NextRun = at
		t.mu.Unlock()

		timer := time.NewTimer(time.Until(at))
		select {
		case <-timer.C:
		case <-t.stop:
			timer.Stop()
			return
		}
		s.run(t)
		ran = true
	}
}

func (s *Scheduler) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			t.mu.Lock()
			t.info.Panics++
			t.mu.Unlock()
			s.logger.Error("scheduler task panicked",
				zap.String("task", t.name),
				zap.Any("recover", r),
				zap.Stack("stack"))
		}
	}()
	t.mu.Lock()
	t.info.LastRun = time.Now()
	t.info.Runs++
	t.mu.Unlock()
	t.fn()
}

// forget drops a finished task unless its name was re-registered.
func (s *Scheduler) forget(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[t.name] == t {
		delete(s.tasks, t.name)
	}
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		close(t.stop)
		delete(s.tasks, name)
	}
}

// Stop cancels every task and waits for running ones to return. Tasks
// added afterwards are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		for name, t := range s.tasks {
			close(t.stop)
			delete(s.tasks, name)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Names returns the registered task names in order.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns a snapshot of every registered task, ordered by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	list := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(list))
	for _, t := range list {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
