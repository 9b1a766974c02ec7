package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/config"
	"github.com/five82/roomboard/internal/rooms"
	"github.com/five82/roomboard/internal/roomsync"
	"github.com/five82/roomboard/internal/state"
	"github.com/five82/roomboard/internal/stream"
)

// Core is the running sync machinery shared by every view: one registry,
// the engine that writes to it and the live stream feeding the engine.
type Core struct {
	Registry *state.Registry
	Engine   *roomsync.Engine
	Stream   *stream.Subscriber

	log    *zap.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// commandDrainTimeout bounds how long Close waits for issued commands.
const commandDrainTimeout = 5 * time.Second

// StartCore wires the HTTP client, engine and stream subscriber from cfg and
// starts them. The initial snapshot load runs in the background; the
// registry reports Loaded once it lands. Every stream reconnect triggers
// another load.
func StartCore(ctx context.Context, cfg config.Config, log *zap.Logger) (*Core, error) {
	if log == nil {
		log = zap.NewNop()
	}

	client, err := rooms.NewClient(cfg.APIBase, cfg.RequestTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("init room client: %w", err)
	}
	streamURL, err := cfg.StreamEndpoint()
	if err != nil {
		return nil, fmt.Errorf("resolve stream url: %w", err)
	}

	registry := &state.Registry{}
	engine := roomsync.New(registry, client, log.Named("sync"), roomsync.Options{
		RequestTimeout: cfg.RequestTimeout,
	})

	runCtx, cancel := context.WithCancel(ctx)
	core := &Core{
		Registry: registry,
		Engine:   engine,
		log:      log,
		cancel:   cancel,
	}

	sub, err := stream.New(stream.Options{
		URL: streamURL,
		Handler: func(data []byte) {
			// Decode failures are logged by the engine.
			_ = engine.HandleFrame(data)
		},
		OnOpen: func(reconnect bool) {
			if reconnect {
				core.goTracked(func() { core.reload(runCtx, "stream reconnected") })
			}
		},
		MinBackoff: cfg.ReconnectMin,
		MaxBackoff: cfg.ReconnectMax,
		Logger:     log.Named("stream"),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init stream: %w", err)
	}
	core.Stream = sub

	core.goTracked(func() { _ = engine.Run(runCtx) })
	core.goTracked(func() { _ = sub.Run(runCtx) })
	core.goTracked(func() { core.reload(runCtx, "initial load") })

	log.Info("sync core started",
		zap.String("api_base", cfg.APIBase),
		zap.String("stream_url", streamURL),
		zap.Duration("request_timeout", cfg.RequestTimeout),
	)
	return core, nil
}

// Reload fetches a fresh snapshot.
func (c *Core) Reload(ctx context.Context) error {
	return c.Engine.Load(ctx)
}

// SetStatus issues a status command through the engine.
func (c *Core) SetStatus(ctx context.Context, id string, status rooms.Status) (*roomsync.Command, error) {
	return c.Engine.SetStatus(ctx, id, status)
}

// StreamState reports the live connection state.
func (c *Core) StreamState() stream.State {
	return c.Stream.State()
}

func (c *Core) reload(ctx context.Context, reason string) {
	if err := c.Engine.Load(ctx); err != nil {
		c.log.Warn("snapshot reload failed", zap.String("reason", reason), zap.Error(err))
	}
}

// goTracked runs fn in a goroutine that Close waits for. Nothing starts
// once Close has begun.
func (c *Core) goTracked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Close stops the stream and the engine, then waits for them, for any
// reload in progress and for issued commands to finish.
func (c *Core) Close() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), commandDrainTimeout)
	defer cancel()
	if err := c.Engine.Wait(ctx); err != nil {
		c.log.Warn("commands still running after close", zap.Error(err))
	}
}
