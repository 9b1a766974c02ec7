package roomsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/rooms"
	"github.com/five82/roomboard/internal/state"
)

// ErrStopped is returned once the engine loop has exited.
var ErrStopped = errors.New("sync engine stopped")

const (
	defaultRequestTimeout = 5 * time.Second
	defaultQueueSize      = 64
)

// Options tune an Engine.
type Options struct {
	RequestTimeout time.Duration // bound for every request/response call; zero uses 5s
	QueueSize      int           // pending mutations before callers block; zero uses 64
}

// Engine serializes every registry mutation through one goroutine. Network
// calls run on the caller's goroutine (or a command goroutine) and only hand
// their results to the loop.
type Engine struct {
	registry *state.Registry
	source   rooms.Source
	log      *zap.Logger
	timeout  time.Duration

	events   chan func()
	stopped  chan struct{}
	life     context.Context // cancelled when Run returns
	end      context.CancelFunc
	running  atomic.Bool
	inflight sync.WaitGroup
}

// New builds an Engine over registry and source. Run must be started before
// any other method can complete.
func New(registry *state.Registry, source rooms.Source, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	life, end := context.WithCancel(context.Background())
	return &Engine{
		registry: registry,
		source:   source,
		log:      log,
		timeout:  timeout,
		events:   make(chan func(), size),
		stopped:  make(chan struct{}),
		life:     life,
		end:      end,
	}
}

// Registry returns the registry the engine writes to.
func (e *Engine) Registry() *state.Registry {
	return e.registry
}

// Run applies queued mutations in arrival order until ctx is cancelled.
// It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("sync engine already running")
	}
	defer close(e.stopped)
	defer e.end()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-e.events:
			fn()
		}
	}
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// Wait blocks until every issued command has finished or ctx ends. Once Run
// has returned, outstanding commands finish promptly as OutcomeDiscarded.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the loop and waits for it to finish.
func (e *Engine) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case e.events <- func() { fn(); close(finished) }:
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-e.stopped:
		// fn may have run just before the loop exited.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// withTimeout bounds a request by the request timeout. The request is also
// cancelled once the loop stops, since its result could no longer be applied.
func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	stop := context.AfterFunc(e.life, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}
