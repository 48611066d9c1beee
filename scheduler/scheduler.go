// Package scheduler admits deferred fetches and runs a bounded number of
// them at a time, highest priority first.
//
// Every Enqueue triggers a dispatch pass immediately. Every completion
// triggers one after the configured dispatch gap, which throttles bursts of
// follow-up requests. A dispatch pass admits pending items while fewer than
// the concurrency bound are running; ties in priority are broken by arrival
// order.
//
// The scheduler does not retry and does not coalesce duplicate requests for
// the same entity.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Defaults used by New.
const (
	DefaultMaxConcurrent = 3
	DefaultDispatchGap   = 100 * time.Millisecond
)

var (
	// ErrWorkPanicked is the failure recorded for a work function that
	// panicked.
	ErrWorkPanicked = errors.New("scheduler: work panicked")

	// ErrClosed is the failure recorded for requests that were still pending,
	// or enqueued, after Close.
	ErrClosed = errors.New("scheduler: closed")
)

// Work is a deferred fetch.
type Work func(ctx context.Context) (any, error)

// Observer receives queue statistics. *metrics.Collector implements it.
type Observer interface {
	ObserveQueue(running, pending int)
	ObserveDispatch(priority int, wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveQueue(int, int)               {}
func (nopObserver) ObserveDispatch(int, time.Duration) {}

// Scheduler is a priority request scheduler. All methods are safe for
// concurrent use.
type Scheduler struct {
	maxConcurrent int
	gap           time.Duration
	obs           Observer
	log           *slog.Logger
	nowFunc       func() time.Time

	mu       sync.Mutex
	queue    itemQueue
	running  int
	nextID   uint64
	inflight map[string]map[uint64]struct{}
	timers   map[*time.Timer]struct{} // pending throttled passes
	closed   bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent bounds the number of dispatched requests. Values below
// one are raised to one.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		s.maxConcurrent = max(n, 1)
	}
}

// WithDispatchGap sets the minimum delay between a completion and the
// dispatch pass it triggers. Zero dispatches immediately.
func WithDispatchGap(d time.Duration) Option {
	return func(s *Scheduler) {
		s.gap = max(d, 0)
	}
}

// WithObserver installs a queue Observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		maxConcurrent: DefaultMaxConcurrent,
		gap:           DefaultDispatchGap,
		obs:           nopObserver{},
		log:           slog.New(slog.DiscardHandler),
		nowFunc:       time.Now,
		inflight:      make(map[string]map[uint64]struct{}),
		timers:        make(map[*time.Timer]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue admits work for entity at the given priority and returns its
// Outcome. It never rejects because of queue length.
//
// ctx is handed to work once dispatched. If ctx is already done when the
// request reaches the head of the queue, the request is dropped and its
// outcome settles with ctx.Err().
func (s *Scheduler) Enqueue(ctx context.Context, entity string, priority int, work Work) *Outcome {
	out := newOutcome()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		out.settle(nil, ErrClosed)
		return out
	}
	s.nextID++
	it := &item{
		id:         s.nextID,
		entity:     entity,
		priority:   priority,
		work:       work,
		ctx:        ctx,
		outcome:    out,
		enqueuedAt: s.nowFunc(),
	}
	heap.Push(&s.queue, it)
	group, ok := s.inflight[entity]
	if !ok {
		group = make(map[uint64]struct{})
		s.inflight[entity] = group
	}
	group[it.id] = struct{}{}
	s.mu.Unlock()

	s.dispatch()
	return out
}

// dispatch runs one dispatch pass.
func (s *Scheduler) dispatch() {
	var ready, dropped []*item

	s.mu.Lock()
	for !s.closed && s.running < s.maxConcurrent && s.queue.Len() > 0 {
		it := heap.Pop(&s.queue).(*item)
		if it.ctx.Err() != nil {
			s.forget(it)
			dropped = append(dropped, it)
			continue
		}
		s.running++
		ready = append(ready, it)
	}
	running, pending := s.running, s.queue.Len()
	s.mu.Unlock()

	s.obs.ObserveQueue(running, pending)
	for _, it := range dropped {
		s.log.Debug("dropping cancelled request", "entity", it.entity, "priority", it.priority)
		it.outcome.settle(nil, it.ctx.Err())
	}
	now := s.nowFunc()
	for _, it := range ready {
		s.obs.ObserveDispatch(it.priority, now.Sub(it.enqueuedAt))
		s.log.Debug("dispatching request", "entity", it.entity, "priority", it.priority, "running", running, "pending", pending)
		go s.run(it)
	}
}

// run executes a dispatched item and schedules the follow-up pass.
func (s *Scheduler) run(it *item) {
	val, err := execute(it)
	it.outcome.settle(val, err)

	s.mu.Lock()
	s.running--
	s.forget(it)
	running, pending := s.running, s.queue.Len()
	s.mu.Unlock()
	s.obs.ObserveQueue(running, pending)

	if s.gap == 0 {
		s.dispatch()
		return
	}
	s.schedulePass()
}

// schedulePass arms a dispatch pass after the gap. The timer is tracked so
// Close can stop it.
func (s *Scheduler) schedulePass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	var tm *time.Timer
	tm = time.AfterFunc(s.gap, func() {
		s.mu.Lock()
		delete(s.timers, tm)
		s.mu.Unlock()
		s.dispatch()
	})
	s.timers[tm] = struct{}{}
}

// pendingPasses returns the number of armed throttle timers.
func (s *Scheduler) pendingPasses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// execute calls the work function, turning a panic into ErrWorkPanicked.
func execute(it *item) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = fmt.Errorf("%w: %s: %v", ErrWorkPanicked, it.entity, r)
		}
	}()
	return it.work(it.ctx)
}

// forget removes it from the per-entity bookkeeping. Must be called with
// s.mu held.
func (s *Scheduler) forget(it *item) {
	group := s.inflight[it.entity]
	delete(group, it.id)
	if len(group) == 0 {
		delete(s.inflight, it.entity)
	}
}

// Running returns the number of dispatched, unfinished requests.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending returns the number of requests waiting for a slot.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// InFlight returns the number of pending or running requests for entity.
func (s *Scheduler) InFlight(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight[entity])
}

// MaxConcurrent returns the concurrency bound.
func (s *Scheduler) MaxConcurrent() int {
	return s.maxConcurrent
}

// Close stops dispatching and the pending throttle timers. Pending requests
// settle with ErrClosed; running ones finish normally.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for tm := range s.timers {
		tm.Stop()
	}
	clear(s.timers)
	pending := s.queue
	s.queue = nil
	for _, it := range pending {
		s.forget(it)
	}
	s.mu.Unlock()

	for _, it := range pending {
		it.outcome.settle(nil, ErrClosed)
	}
}
