package roomsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/rooms"
)

// ErrAmbiguousResult marks a command response without a usable room payload.
var ErrAmbiguousResult = errors.New("ambiguous command result")

// Outcome describes how a status command ended.
type Outcome int

const (
	OutcomePending      Outcome = iota
	OutcomeReconciled           // server confirmed a status, applied to the room
	OutcomeResynced             // result unusable, full snapshot reloaded
	OutcomeResyncFailed         // result unusable and the reload failed too
	OutcomeDiscarded            // engine stopped before the result could be applied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReconciled:
		return "reconciled"
	case OutcomeResynced:
		return "resynced"
	case OutcomeResyncFailed:
		return "resync failed"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "pending"
	}
}

// Command tracks one status change sent to the server.
type Command struct {
	RoomID string
	Status rooms.Status

	done      chan struct{}
	outcome   Outcome
	confirmed rooms.Status
	err       error
}

// Done is closed once the command has been reconciled or resynced.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the command finishes or ctx ends.
func (c *Command) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		return c.outcome, c.err
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// Confirmed returns the status the server reported. It is empty unless the
// outcome is OutcomeReconciled.
func (c *Command) Confirmed() rooms.Status {
	select {
	case <-c.done:
		return c.confirmed
	default:
		return ""
	}
}

func (c *Command) finish(outcome Outcome, confirmed rooms.Status, err error) {
	c.outcome = outcome
	c.confirmed = confirmed
	c.err = err
	close(c.done)
}

// SetStatus applies status to room id optimistically, then sends the change.
// It returns once the optimistic update is visible; the returned Command
// reports the reconciliation. An unknown id skips the optimistic step but
// the request is still sent.
//
// Cancelling ctx does not cancel the request; it is bounded by the request
// timeout instead. Stopping the engine cancels it and the command finishes
// as OutcomeDiscarded.
func (e *Engine) SetStatus(ctx context.Context, id string, status rooms.Status) (*Command, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("set status: %w: %q", rooms.ErrUnknownStatus, status)
	}

	cmd := &Command{RoomID: id, Status: status, done: make(chan struct{})}
	err := e.do(func() {
		if !e.registry.PatchStatus(id, status) {
			e.log.Debug("optimistic update skipped, room not loaded", zap.String("room_id", id))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}

	e.inflight.Add(1)
	go e.issue(context.WithoutCancel(ctx), cmd)
	return cmd, nil
}

func (e *Engine) issue(ctx context.Context, cmd *Command) {
	defer e.inflight.Done()

	log := e.log.With(zap.String("room_id", cmd.RoomID), zap.String("status", string(cmd.Status)))

	reqCtx, cancel := e.withTimeout(ctx)
	body, err := e.source.UpdateStatus(reqCtx, cmd.RoomID, cmd.Status)
	cancel()

	if err == nil {
		if patch, ok := rooms.DecodeCommandResult(body); ok {
			if derr := e.do(func() { e.registry.PatchStatus(patch.RoomID, patch.NewStatus) }); derr != nil {
				log.Debug("command result discarded", zap.Error(derr))
				cmd.finish(OutcomeDiscarded, "", derr)
				return
			}
			if patch.NewStatus != cmd.Status || patch.RoomID != cmd.RoomID {
				log.Info("server adjusted status",
					zap.String("confirmed_room_id", patch.RoomID),
					zap.String("confirmed_status", string(patch.NewStatus)),
				)
			}
			cmd.finish(OutcomeReconciled, patch.NewStatus, nil)
			return
		}
		err = fmt.Errorf("%w: %d bytes", ErrAmbiguousResult, len(body))
	}

	log.Warn("command result unusable, reloading snapshot", zap.Error(err))
	if lerr := e.Load(ctx); lerr != nil {
		if errors.Is(lerr, ErrStopped) {
			cmd.finish(OutcomeDiscarded, "", errors.Join(err, lerr))
			return
		}
		log.Error("fallback reload failed", zap.Error(lerr))
		cmd.finish(OutcomeResyncFailed, "", errors.Join(err, lerr))
		return
	}
	cmd.finish(OutcomeResynced, "", err)
}
