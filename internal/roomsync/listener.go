package roomsync

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/five82/roomboard/internal/rooms"
)

// HandleFrame decodes one live-stream frame and applies it. Frames that do
// not decode are logged and dropped; the registry is left alone and the
// caller keeps reading.
func (e *Engine) HandleFrame(data []byte) error {
	note, err := rooms.DecodeNotification(data)
	if err != nil {
		e.log.Warn("discarding stream frame", zap.Error(err), zap.Int("frame_bytes", len(data)))
		return err
	}
	return e.Apply(note)
}

// Apply applies a decoded notification on the engine loop.
func (e *Engine) Apply(note rooms.Notification) error {
	var applyErr error
	err := e.do(func() {
		switch n := note.(type) {
		case rooms.FullReplace:
			applyErr = e.registry.ReplaceAll(n.Rooms)
			if applyErr == nil {
				e.log.Debug("full replace applied", zap.Int("rooms", len(n.Rooms)))
			}
		case rooms.StatusPatch:
			if !e.registry.PatchStatus(n.RoomID, n.NewStatus) {
				e.log.Debug("status patch for unknown room ignored",
					zap.String("room_id", n.RoomID),
					zap.String("status", string(n.NewStatus)),
				)
			}
		default:
			applyErr = fmt.Errorf("%w: %T", rooms.ErrUnrecognized, note)
		}
	})
	if err != nil {
		return err
	}
	if applyErr != nil {
		e.log.Warn("discarding notification", zap.Error(applyErr))
	}
	return applyErr
}
