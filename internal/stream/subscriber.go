package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle of the live subscription.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
	maxFrameBytes     = 512 * 1024
	closeWriteTimeout = time.Second
)

// Handler receives every text frame in receipt order. It runs on the read
// goroutine, so the next frame is not read until it returns.
type Handler func(data []byte)

// Options configure a Subscriber.
type Options struct {
	URL     string
	Handler Handler
	// OnOpen runs in its own goroutine each time a connection opens.
	// reconnect is false for the first connection only.
	OnOpen     func(reconnect bool)
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
}

// Subscriber maintains one websocket subscription and redials after it
// closes.
type Subscriber struct {
	opts  Options
	log   *zap.Logger
	state atomic.Int32
	opens atomic.Int64
}

// New validates opts and returns a Subscriber in the connecting state, which
// it keeps until Run dials. Run leaves it closed on return.
func New(opts Options) (*Subscriber, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url %q: %w", opts.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("stream url %q: scheme must be ws or wss", opts.URL)
	}
	if opts.Handler == nil {
		return nil, errors.New("stream handler required")
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Subscriber{opts: opts, log: log.With(zap.String("url", opts.URL))}
	s.state.Store(int32(StateConnecting))
	return s, nil
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Opens returns how many connections have reached the open state.
func (s *Subscriber) Opens() int64 {
	return s.opens.Load()
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// Run keeps the subscription alive until ctx is cancelled. Connection
// failures are logged and retried with capped exponential backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.setState(StateClosed)

	failures := 0
	for {
		s.setState(StateConnecting)
		opened, err := s.session(ctx)
		s.setState(StateClosed)
		if ctx.Err() != nil {
			return nil
		}

		if opened {
			failures = 0
		} else {
			failures++
		}
		wait := calculateBackoff(failures, s.opts.MinBackoff, s.opts.MaxBackoff)
		s.log.Warn("stream closed, reconnecting",
			zap.Error(err),
			zap.Int("failures", failures),
			zap.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection ends. opened reports
// whether the connection reached the open state.
func (s *Subscriber) session(ctx context.Context) (opened bool, err error) {
	conn, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial stream: %w", err)
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxFrameBytes)

	s.setState(StateOpen)
	reconnect := s.opens.Add(1) > 1
	s.log.Info("stream open", zap.Bool("reconnect", reconnect))
	if s.opts.OnOpen != nil {
		go s.opts.OnOpen(reconnect)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("unexpected stream close", zap.Error(err))
			}
			return true, fmt.Errorf("read stream: %w", err)
		}
		if kind != websocket.TextMessage {
			s.log.Warn("discarding non-text frame", zap.Int("frame_bytes", len(data)))
			continue
		}
		if len(data) == 0 {
			continue
		}
		s.opts.Handler(data)
	}
}

// calculateBackoff doubles base for each consecutive failure, capped at
// limit.
func calculateBackoff(failures int, base, limit time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	backoff := base
	for i := 0; i < failures; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	return backoff
}
