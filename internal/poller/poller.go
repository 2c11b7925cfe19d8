// Package poller notifies the bot endpoint on a fixed interval so the
// server-side simulation keeps moving while the phone is open.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 30 * time.Second

// Target performs a single poll. Its result is ignored beyond the error.
type Target interface {
	Poll(ctx context.Context) error
}

type TargetFunc func(ctx context.Context) error

func (f TargetFunc) Poll(ctx context.Context) error { return f(ctx) }

// ErrorSink observes failed polls. Failures are never returned to callers of
// Start or Stop.
type ErrorSink interface {
	PollFailed(err error)
}

type ErrorSinkFunc func(err error)

func (f ErrorSinkFunc) PollFailed(err error) { f(err) }

type Options struct {
	Interval time.Duration
	Clock    clockwork.Clock
	Sink     ErrorSink
	Logger   *slog.Logger
}

type Poller struct {
	target   Target
	interval time.Duration
	clock    clockwork.Clock
	sink     ErrorSink
	log      *slog.Logger

	mu     sync.Mutex
	active *Handle
}

func New(target Target, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Sink == nil {
		opts.Sink = ErrorSinkFunc(func(error) {})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		target:   target,
		interval: opts.Interval,
		clock:    opts.Clock,
		sink:     opts.Sink,
		log:      opts.Logger,
	}
}

// Start polls once right away and then on every interval until the returned
// handle is stopped or ctx ends. While a handle is active, Start returns it
// unchanged.
func (p *Poller) Start(ctx context.Context) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil && !p.active.stopped() {
		return p.active
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		owner:  p,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	ticker := p.clock.NewTicker(p.interval)
	p.active = h
	go p.run(runCtx, h, ticker)
	p.log.Info("bot poller started", "interval", p.interval.String())
	return h
}

// Stop cancels the active handle, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	h := p.active
	p.active = nil
	p.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Active reports whether a repeating timer is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && !p.active.stopped()
}

func (p *Poller) release(h *Handle) {
	p.mu.Lock()
	if p.active == h {
		p.active = nil
	}
	p.mu.Unlock()
}

func (p *Poller) run(ctx context.Context, h *Handle, ticker clockwork.Ticker) {
	defer close(h.done)
	defer ticker.Stop()

	p.tick(ctx, h)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("bot poller stopped")
			return
		case <-ticker.Chan():
			p.tick(ctx, h)
		}
	}
}

func (p *Poller) tick(ctx context.Context, h *Handle) {
	if !h.inFlight.CompareAndSwap(false, true) {
		p.log.Debug("bot poll still in flight, skipping tick")
		return
	}
	h.polls.Add(1)
	go func() {
		defer h.polls.Done()
		defer h.inFlight.Store(false)
		p.pollOnce(ctx)
	}()
}

func (p *Poller) pollOnce(ctx context.Context) {
	err := p.target.Poll(ctx)
	if err == nil {
		p.log.Debug("bot poll ok")
		return
	}
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	p.log.Warn("bot poll failed", "err", err)
	p.sink.PollFailed(err)
}

// Handle owns one running timer. The in-flight guard is per handle, so a
// poll left over from a cancelled handle never suppresses a new one.
type Handle struct {
	owner    *Poller
	cancel   context.CancelFunc
	done     chan struct{}
	polls    sync.WaitGroup
	inFlight atomic.Bool
	once     sync.Once
}

// Stop cancels the timer and waits for an in-flight poll to return. Calling
// it more than once is a no-op.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		<-h.done
		h.polls.Wait()
		h.owner.release(h)
	})
}

// Done is closed once the timer loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
