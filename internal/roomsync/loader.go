package roomsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Load fetches the full collection and replaces the registry with it. On any
// failure the registry keeps its rooms, the failure is recorded and returned.
// Load is safe to call at any time and from any goroutine.
func (e *Engine) Load(ctx context.Context) error {
	if e.life.Err() != nil {
		return fmt.Errorf("load snapshot: %w", ErrStopped)
	}
	reqCtx, cancel := e.withTimeout(ctx)
	list, err := e.source.FetchRooms(reqCtx)
	cancel()
	if err != nil {
		e.log.Warn("snapshot load failed", zap.Error(err))
		if rerr := e.do(func() { e.registry.RecordFailure(err) }); rerr != nil {
			return errors.Join(fmt.Errorf("load snapshot: %w", err), rerr)
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	var applyErr error
	if err := e.do(func() { applyErr = e.registry.ReplaceAll(list) }); err != nil {
		e.log.Debug("snapshot dropped, engine stopped", zap.Int("rooms", len(list)))
		return fmt.Errorf("load snapshot: %w", err)
	}
	if applyErr != nil {
		e.log.Warn("snapshot rejected", zap.Error(applyErr))
		_ = e.do(func() { e.registry.RecordFailure(applyErr) })
		return fmt.Errorf("load snapshot: %w", applyErr)
	}

	e.log.Info("snapshot applied", zap.Int("rooms", len(list)))
	return nil
}
