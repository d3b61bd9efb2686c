package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aviroy619/critical-css-service/pkg/logger"
)

// Default configuration values
const (
	DefaultMinPoolSize         = 1
	DefaultMaxPoolSize         = 3
	DefaultIdleTimeout         = 5 * time.Minute
	DefaultCreationTimeout     = 30 * time.Second
	DefaultShutdownGracePeriod = 10 * time.Second
	DefaultSweepInterval       = 10 * time.Second

	destroyTimeout = 5 * time.Second
)

// Config holds pool sizing and timing settings
type Config struct {
	MinPoolSize         int           // pre-warmed floor
	MaxPoolSize         int           // hard cap on concurrently existing workers
	IdleTimeout         time.Duration // how long a released worker may sit unused
	CreationTimeout     time.Duration // bound on worker creation and queued waits
	ShutdownGracePeriod time.Duration // time busy workers get to finish on shutdown
	SweepInterval       time.Duration // periodic idle sweep interval
}

// withDefaults fills zero values with defaults
func (c Config) withDefaults() Config {
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.CreationTimeout <= 0 {
		c.CreationTimeout = DefaultCreationTimeout
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = DefaultShutdownGracePeriod
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Stats is a point-in-time snapshot of pool counters and occupancy
type Stats struct {
	Created   int64 `json:"created"`
	Reused    int64 `json:"reused"`
	Destroyed int64 `json:"destroyed"`
	Errors    int64 `json:"errors"`
	Available int   `json:"available"`
	Busy      int   `json:"busy"`
	Waiting   int   `json:"waiting"`
	Total     int   `json:"total"`
}

// entry is a worker sitting in the available stack together with its idle
// reclamation timer. The timer is stopped the moment the worker leaves the
// stack for any reason.
type entry struct {
	worker Worker
	timer  *time.Timer
}

type waiterResult struct {
	worker Worker
	err    error
}

// waiter is a queued acquisition request. done is guarded by the pool mutex
// and guarantees a waiter is resolved at most once; ch is buffered so a
// delivery never blocks the releaser.
type waiter struct {
	ch   chan waiterResult
	done bool
}

// resolve hands a result to the waiter. Must be called with the pool mutex
// held.
func (w *waiter) resolve(wk Worker, err error) {
	if w.done {
		return
	}
	w.done = true
	w.ch <- waiterResult{worker: wk, err: err}
}

// Pool owns a bounded set of browser workers. See the package documentation
// for the ownership and ordering rules.
type Pool struct {
	cfg      Config
	launcher Launcher
	log      *logger.Logger

	mu        sync.Mutex
	available []*entry          // LIFO stack of idle, presumed-live workers
	busy      map[string]Worker // workers currently lent out, keyed by ID
	waiting   []*waiter         // FIFO queue of pending acquisitions
	reserved  int               // capacity slots held by in-flight creations
	draining  bool

	stopSweep chan struct{}
	done      chan struct{}

	created   atomic.Int64
	reused    atomic.Int64
	destroyed atomic.Int64
	failures  atomic.Int64
}

// New constructs a pool around the given launcher and starts the periodic
// idle sweep. The pool is empty until Initialize or the first Acquire.
func New(cfg Config, launcher Launcher, log *logger.Logger) *Pool {
	p := &Pool{
		cfg:       cfg.withDefaults(),
		launcher:  launcher,
		log:       log.WithComponent("pool"),
		busy:      make(map[string]Worker),
		stopSweep: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

// Initialize eagerly creates MinPoolSize workers in parallel and places them
// in the available stack. Any creation failure propagates; partial successes
// are kept, so a failed Initialize should be treated as fatal by the caller.
func (p *Pool) Initialize(ctx context.Context) error {
	n := p.cfg.MinPoolSize
	if n <= 0 {
		return nil
	}

	p.mu.Lock()
	p.reserved += n
	p.mu.Unlock()

	workers := make([]Worker, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.cfg.CreationTimeout)
			defer cancel()
			w, err := p.launcher.Launch(cctx)
			if err != nil {
				return &CreationError{Err: err}
			}
			workers[i] = w
			return nil
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.reserved -= n
	for _, w := range workers {
		if w == nil {
			continue
		}
		p.created.Add(1)
		p.pushAvailableLocked(w)
	}
	p.mu.Unlock()

	if err != nil {
		p.failures.Add(1)
		return err
	}
	p.log.Info("pool warmed", "workers", n)
	return nil
}

// Acquire returns a live worker, creating one if capacity remains. When the
// pool is saturated the caller queues FIFO behind earlier callers and is
// resolved by a future Release, or fails with ErrAcquireTimeout after the
// creation timeout. A queued acquisition is cancelled only by that timeout.
func (p *Pool) Acquire(ctx context.Context) (Worker, error) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, ErrPoolShuttingDown
	}

	// Prefer the most recently released worker: it is the warmest. Dead
	// candidates are destroyed and the next one tried; the loop is bounded
	// by the stack size.
	for len(p.available) > 0 {
		e := p.popAvailableLocked()
		if e.worker.Connected() {
			p.busy[e.worker.ID()] = e.worker
			p.reused.Add(1)
			p.mu.Unlock()
			return e.worker, nil
		}
		p.mu.Unlock()
		p.log.Warn("discarding disconnected idle worker", "worker_id", e.worker.ID())
		p.destroy(e.worker)
		p.mu.Lock()
		if p.draining {
			p.mu.Unlock()
			return nil, ErrPoolShuttingDown
		}
	}

	// Reserve the capacity slot before the slow launch so concurrent
	// acquirers cannot over-create past MaxPoolSize.
	if p.sizeLocked()+p.reserved < p.cfg.MaxPoolSize {
		return p.createLocked(ctx)
	}

	// Saturated: queue behind earlier callers.
	wt := &waiter{ch: make(chan waiterResult, 1)}
	p.waiting = append(p.waiting, wt)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.CreationTimeout)
	defer timer.Stop()

	select {
	case res := <-wt.ch:
		return res.worker, res.err
	case <-timer.C:
	}

	p.mu.Lock()
	if wt.done {
		// A handoff raced the timeout; the result is already buffered.
		p.mu.Unlock()
		res := <-wt.ch
		return res.worker, res.err
	}
	p.removeWaiterLocked(wt)
	p.mu.Unlock()
	return nil, ErrAcquireTimeout
}

// createLocked launches a new worker with a capacity slot reserved. Called
// with the mutex held; returns with it released.
func (p *Pool) createLocked(ctx context.Context) (Worker, error) {
	p.reserved++
	p.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CreationTimeout)
	w, err := p.launcher.Launch(cctx)
	cancel()

	p.mu.Lock()
	p.reserved--
	if err != nil {
		p.failures.Add(1)
		p.mu.Unlock()
		return nil, &CreationError{Err: err}
	}
	if p.draining {
		p.mu.Unlock()
		p.destroy(w)
		return nil, ErrPoolShuttingDown
	}
	p.busy[w.ID()] = w
	p.created.Add(1)
	p.mu.Unlock()
	return w, nil
}

// Release returns a worker to the pool. It never fails: a nil or untracked
// worker is a logged no-op, a dead worker is destroyed, and otherwise the
// worker is handed directly to the head waiter or parked in the available
// stack with a fresh idle timer.
func (p *Pool) Release(w Worker) {
	if w == nil {
		p.log.Warn("release called with nil worker")
		return
	}

	p.mu.Lock()
	delete(p.busy, w.ID()) // idempotent if not tracked

	if p.draining {
		// Shutdown owns teardown of everything it can still see in the
		// collections; a worker released after draining began is destroyed
		// here so each handle is closed exactly once.
		p.mu.Unlock()
		p.destroy(w)
		return
	}

	if !w.Connected() {
		p.mu.Unlock()
		p.log.Warn("released worker is disconnected, destroying", "worker_id", w.ID())
		p.destroy(w)
		return
	}

	if len(p.waiting) > 0 {
		wt := p.waiting[0]
		p.waiting = p.waiting[1:]

		// The browser process can die at any moment on its own, so check
		// liveness once more at the instant of handoff.
		if w.Connected() {
			p.busy[w.ID()] = w
			p.reused.Add(1)
			wt.resolve(w, nil)
			p.mu.Unlock()
			return
		}

		// Died during handoff: the waiter goes back to the front of the
		// queue and a replacement is attempted on its behalf. It is never
		// dropped; worst case it times out on its own.
		p.waiting = append([]*waiter{wt}, p.waiting...)
		p.mu.Unlock()
		p.destroy(w)
		go p.replaceForWaiter()
		return
	}

	p.pushAvailableLocked(w)
	p.mu.Unlock()
}

// replaceForWaiter creates a brand-new worker for the head waiter after a
// handoff candidate died. Creation failure is swallowed: the waiter stays
// queued for the next release or its own timeout.
func (p *Pool) replaceForWaiter() {
	p.mu.Lock()
	if p.draining || len(p.waiting) == 0 || p.sizeLocked()+p.reserved >= p.cfg.MaxPoolSize {
		p.mu.Unlock()
		return
	}
	p.reserved++
	p.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.Background(), p.cfg.CreationTimeout)
	w, err := p.launcher.Launch(cctx)
	cancel()

	p.mu.Lock()
	p.reserved--
	if err != nil {
		p.failures.Add(1)
		p.mu.Unlock()
		p.log.WarnWithErr("replacement worker creation failed, waiter stays queued", err)
		return
	}
	p.created.Add(1)
	if p.draining {
		p.mu.Unlock()
		p.destroy(w)
		return
	}
	if len(p.waiting) > 0 {
		wt := p.waiting[0]
		p.waiting = p.waiting[1:]
		p.busy[w.ID()] = w
		wt.resolve(w, nil)
		p.mu.Unlock()
		return
	}
	// The waiter timed out while the replacement was starting; keep the
	// worker around for the next caller.
	p.pushAvailableLocked(w)
	p.mu.Unlock()
}

// Shutdown drains the pool: new acquires fail fast, queued waiters are
// rejected, busy workers get one grace period to be released naturally, and
// every remaining handle is destroyed. Destroy failures are logged, never
// returned. Shutdown is idempotent; concurrent calls wait for the first one
// to finish.
func (p *Pool) Shutdown(opts *ShutdownOptions) {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.draining = true
	close(p.stopSweep)

	grace := p.cfg.ShutdownGracePeriod
	var onStart func(busy int, grace time.Duration)
	if opts != nil {
		if opts.GracePeriod > 0 {
			grace = opts.GracePeriod
		}
		onStart = opts.OnGracePeriodStart
	}

	// Nothing will satisfy queued callers now; fail them fast.
	for _, wt := range p.waiting {
		wt.resolve(nil, ErrPoolShuttingDown)
	}
	p.waiting = nil

	busyCount := len(p.busy)
	p.mu.Unlock()

	if busyCount > 0 {
		if onStart != nil {
			onStart(busyCount, grace)
		}
		p.log.Info("waiting for busy workers to be released", "busy", busyCount, "grace_period", grace)
		// Best-effort delay, not a synchronization primitive: wait the full
		// grace period once and take stock afterwards.
		time.Sleep(grace)
	}

	p.mu.Lock()
	victims := make([]Worker, 0, len(p.available)+len(p.busy))
	for _, e := range p.available {
		e.timer.Stop()
		victims = append(victims, e.worker)
	}
	p.available = nil
	for _, w := range p.busy {
		victims = append(victims, w)
	}
	p.busy = make(map[string]Worker)
	p.mu.Unlock()

	for _, w := range victims {
		p.destroy(w)
	}
	p.log.Info("pool shut down", "destroyed", len(victims))
	close(p.done)
}

// ShutdownOptions overrides shutdown behavior per call
type ShutdownOptions struct {
	// GracePeriod overrides the configured shutdown grace period when > 0.
	GracePeriod time.Duration

	// OnGracePeriodStart is invoked with the busy worker count and the
	// grace period right before the wait begins.
	OnGracePeriodStart func(busy int, grace time.Duration)
}

// Stats returns a point-in-time snapshot. No side effects.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Created:   p.created.Load(),
		Reused:    p.reused.Load(),
		Destroyed: p.destroyed.Load(),
		Errors:    p.failures.Load(),
		Available: len(p.available),
		Busy:      len(p.busy),
		Waiting:   len(p.waiting),
		Total:     p.sizeLocked(),
	}
}

// sizeLocked is the number of existing workers. Must hold the mutex.
func (p *Pool) sizeLocked() int {
	return len(p.available) + len(p.busy)
}

// pushAvailableLocked parks a worker on the available stack and arms its
// idle timer. Must hold the mutex.
func (p *Pool) pushAvailableLocked(w Worker) {
	e := &entry{worker: w}
	e.timer = time.AfterFunc(p.cfg.IdleTimeout, func() {
		p.reclaimIdle(e)
	})
	p.available = append(p.available, e)
}

// popAvailableLocked removes the top of the available stack and cancels its
// idle timer. Must hold the mutex with a non-empty stack.
func (p *Pool) popAvailableLocked() *entry {
	e := p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	e.timer.Stop()
	return e
}

// removeWaiterLocked removes a specific waiter without disturbing the rest
// of the queue. Must hold the mutex.
func (p *Pool) removeWaiterLocked(wt *waiter) {
	for i, cand := range p.waiting {
		if cand == wt {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			return
		}
	}
}

// reclaimIdle fires when a worker's idle timer elapses. The worker is only
// destroyed if it is still parked and removing it keeps the pool at or
// above the floor.
func (p *Pool) reclaimIdle(e *entry) {
	p.mu.Lock()
	idx := -1
	for i, cand := range p.available {
		if cand == e {
			idx = i
			break
		}
	}
	if idx < 0 || len(p.available) <= p.cfg.MinPoolSize {
		p.mu.Unlock()
		return
	}
	p.available = append(p.available[:idx], p.available[idx+1:]...)
	p.mu.Unlock()

	p.log.Debug("reclaiming idle worker", "worker_id", e.worker.ID())
	p.destroy(e.worker)
}

// sweepLoop is the safety net against idle timer drift: on every tick it
// trims any excess above the floor regardless of individual timers.
func (p *Pool) sweepLoop() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweepIdle()
		case <-p.stopSweep:
			return
		}
	}
}

func (p *Pool) sweepIdle() {
	p.mu.Lock()
	var victims []*entry
	for len(p.available) > p.cfg.MinPoolSize {
		// Trim from the bottom of the stack: coldest workers first.
		e := p.available[0]
		p.available = p.available[1:]
		e.timer.Stop()
		victims = append(victims, e)
	}
	p.mu.Unlock()

	for _, e := range victims {
		p.log.Debug("sweep reclaiming idle worker", "worker_id", e.worker.ID())
		p.destroy(e.worker)
	}
}

// destroy tears a worker down. Failures are counted and logged, never
// propagated: cleanup must not block forward progress.
func (p *Pool) destroy(w Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()

	p.destroyed.Add(1)
	if err := w.Close(ctx); err != nil {
		p.failures.Add(1)
		p.log.WarnWithErr("worker destroy failed", err, "worker_id", w.ID())
	}
}
