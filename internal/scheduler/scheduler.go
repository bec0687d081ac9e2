// Package scheduler refreshes every tracked item on a fixed period from one
// long-lived background goroutine.
//
// The scheduler never sees the live table. The owner publishes immutable
// snapshots with Publish, and each cycle works on the snapshot current when
// the cycle starts. A cycle fetches items one at a time, notifies on change,
// and delivers its whole result set as a single Batch on a channel the owner
// drains without blocking.
//
// The period is read once when the scheduler is armed. Changing the
// configured period takes effect on the next process start.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/valuewatch/internal/fetch"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

// DefaultPeriod is the refresh period used when none is configured.
const DefaultPeriod = model.DefaultRefreshPeriod

// ErrAlreadyArmed is returned by Arm when the timer goroutine is running.
var ErrAlreadyArmed = errors.New("scheduler: already armed")

// State is the scheduler's lifecycle position.
type State int32

const (
	Idle    State = iota // no timer registered
	Armed                // timer registered, waiting for the next tick
	Running              // a cycle is in progress
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Notifier is told about each value change detected during a cycle.
// Delivery is best effort; the scheduler ignores failures.
type Notifier interface {
	Notify(name, oldValue, newValue string)
}

// ChangeNotifier is an optional extension of Notifier. When the configured
// notifier implements it, the scheduler calls NotifyChange instead of Notify
// so the receiver also learns the item ID and the observation time.
type ChangeNotifier interface {
	NotifyChange(ch model.ValueChange)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(name, oldValue, newValue string)

// Notify calls f.
func (f NotifierFunc) Notify(name, oldValue, newValue string) { f(name, oldValue, newValue) }

// Result is one successfully fetched value.
type Result struct {
	ID    model.ItemID
	Value string
}

// Batch is everything one cycle produced. Items whose fetch failed are not
// in Results, so applying the batch leaves their rows untouched.
type Batch struct {
	Cycle      uint64
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
	Changed    int
	Failed     int
}

// Stats are point-in-time counters.
type Stats struct {
	Cycles        uint64
	Changes       uint64
	Failures      uint64
	LastCycleAt   time.Time
	LastCycleTook time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPeriod sets the interval between cycles. Non-positive values keep
// DefaultPeriod.
func WithPeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithRedraw sets the callback that wakes the presentation loop after a
// batch is delivered.
func WithRedraw(fn func()) Option {
	return func(s *Scheduler) { s.redraw = fn }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for batch timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithQueueSize sets how many undelivered batches may wait in the channel.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// Scheduler runs refresh cycles on a ticker.
type Scheduler struct {
	fetcher   fetch.Fetcher
	notifier  Notifier
	redraw    func()
	logger    *log.Logger
	now       func() time.Time
	period    time.Duration
	queueSize int

	batches  chan Batch
	snapshot atomic.Pointer[[]model.TrackedItem]
	state    atomic.Int32
	cycle    atomic.Uint64

	mu      sync.Mutex
	armed   bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New creates an idle scheduler. Call Arm to start the timer.
func New(f fetch.Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:   f,
		logger:    log.Default(),
		now:       time.Now,
		period:    DefaultPeriod,
		queueSize: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.batches = make(chan Batch, s.queueSize)
	empty := []model.TrackedItem{}
	s.snapshot.Store(&empty)
	return s
}

// Period returns the interval the scheduler was configured with.
func (s *Scheduler) Period() time.Duration { return s.period }

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Publish replaces the snapshot used by future cycles. The slice is copied,
// so the caller may keep mutating its own table.
func (s *Scheduler) Publish(items []model.TrackedItem) {
	snap := model.Snapshot(items)
	if snap == nil {
		snap = []model.TrackedItem{}
	}
	s.snapshot.Store(&snap)
}

// Batches returns the receiving end of the batch channel.
func (s *Scheduler) Batches() <-chan Batch { return s.batches }

// TryReceive returns a delivered batch without blocking.
func (s *Scheduler) TryReceive() (Batch, bool) {
	select {
	case b := <-s.batches:
		return b, true
	default:
		return Batch{}, false
	}
}

// Arm starts the timer goroutine. The first cycle runs one period after
// arming. Arm after Stop is a no-op.
func (s *Scheduler) Arm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.armed {
		return ErrAlreadyArmed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.armed = true
	s.state.Store(int32(Armed))

	s.wg.Add(1)
	go s.tickLoop(runCtx)

	s.logger.Printf("scheduler: armed, period %s", s.period)
	return nil
}

// Stop cancels the timer and waits for the goroutine to exit. A cycle in
// progress is abandoned at its next fetch. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.state.Store(int32(Idle))
}

// Stats returns a copy of the cycle counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch := s.RunCycle(ctx)
			if ctx.Err() != nil {
				return
			}
			if !s.deliver(ctx, batch) {
				return
			}
		}
	}
}

// RunCycle fetches every item of the current snapshot, one after another,
// and returns the batch without delivering it.
func (s *Scheduler) RunCycle(ctx context.Context) Batch {
	prev := State(s.state.Swap(int32(Running)))
	defer s.state.Store(int32(prev))

	items := *s.snapshot.Load()
	batch := Batch{
		Cycle:     s.cycle.Add(1),
		StartedAt: s.now(),
		Results:   make([]Result, 0, len(items)),
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		value, err := fetch.Run(ctx, s.fetcher, item.URL, item.Selector)
		if err != nil {
			batch.Failed++
			s.logger.Printf("scheduler: cycle %d: %s: %v", batch.Cycle, item.Name, err)
			continue
		}
		if value != item.LatestValue {
			batch.Changed++
			s.notify(model.ValueChange{
				ItemID:   item.ID,
				Name:     item.Name,
				OldValue: item.LatestValue,
				NewValue: value,
				At:       s.now(),
			})
		}
		batch.Results = append(batch.Results, Result{ID: item.ID, Value: value})
	}
	batch.FinishedAt = s.now()

	s.statsMu.Lock()
	s.stats.Cycles++
	s.stats.Changes += uint64(batch.Changed)
	s.stats.Failures += uint64(batch.Failed)
	s.stats.LastCycleAt = batch.StartedAt
	s.stats.LastCycleTook = batch.FinishedAt.Sub(batch.StartedAt)
	s.statsMu.Unlock()

	s.logger.Printf("scheduler: cycle %d: %d items, %d changed, %d failed",
		batch.Cycle, len(items), batch.Changed, batch.Failed)
	return batch
}

// deliver blocks until the batch is queued or ctx ends, then wakes the
// presentation loop.
func (s *Scheduler) deliver(ctx context.Context, batch Batch) bool {
	select {
	case s.batches <- batch:
	case <-ctx.Done():
		return false
	}
	if s.redraw != nil {
		s.redraw()
	}
	return true
}

func (s *Scheduler) notify(ch model.ValueChange) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scheduler: notifier panic for %s: %v", ch.Name, r)
		}
	}()
	if cn, ok := s.notifier.(ChangeNotifier); ok {
		cn.NotifyChange(ch)
		return
	}
	s.notifier.Notify(ch.Name, ch.OldValue, ch.NewValue)
}
