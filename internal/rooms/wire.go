package rooms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// TypeStatusUpdate is the discriminant of a status patch frame.
const TypeStatusUpdate = "ROOM_STATUS_UPDATE"

var (
	// ErrMalformed marks a payload that is not parseable JSON.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnrecognized marks a parseable payload matching no known variant.
	ErrUnrecognized = errors.New("unrecognized payload")
	// ErrInvalidSnapshot marks a collection that cannot seed the registry.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrUnknownStatus marks a status outside the defined set.
	ErrUnknownStatus = errors.New("unknown status")
)

var validate = validator.New()

// Notification is a decoded live-stream frame: FullReplace or StatusPatch.
type Notification interface {
	notification()
}

// FullReplace replaces the whole registry, keeping the given order.
type FullReplace struct {
	Rooms []Room
}

// StatusPatch updates the status of one room.
type StatusPatch struct {
	RoomID    string `validate:"required"`
	NewStatus Status `validate:"required,oneof=AVAILABLE GUIDING CONTRACTED"`
}

func (FullReplace) notification() {}
func (StatusPatch) notification() {}

// StatusUpdateMessage is the wire form of a status patch frame.
type StatusUpdateMessage struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id"`
	NewStatus Status `json:"new_status"`
}

// NewStatusUpdateMessage builds the frame broadcast after a status change.
func NewStatusUpdateMessage(id string, status Status) StatusUpdateMessage {
	return StatusUpdateMessage{Type: TypeStatusUpdate, RoomID: id, NewStatus: status}
}

// DecodeNotification classifies one raw frame. A JSON array of valid room
// records is a FullReplace; an object tagged ROOM_STATUS_UPDATE with both a
// room id and a defined status is a StatusPatch. Anything else fails with
// ErrMalformed or ErrUnrecognized.
func DecodeNotification(data []byte) (Notification, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	switch trimmed[0] {
	case '[':
		list, err := decodeRoomList(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnrecognized, err)
		}
		return FullReplace{Rooms: list}, nil
	case '{':
		var msg StatusUpdateMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnrecognized, err)
		}
		if msg.Type != TypeStatusUpdate {
			return nil, fmt.Errorf("%w: type %q", ErrUnrecognized, msg.Type)
		}
		patch := StatusPatch{RoomID: msg.RoomID, NewStatus: msg.NewStatus}
		if err := validate.Struct(patch); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnrecognized, err)
		}
		return patch, nil
	default:
		return nil, fmt.Errorf("%w: not an array or object", ErrUnrecognized)
	}
}

// DecodeSnapshot parses a GET /rooms body. The payload must be a JSON array
// of valid rooms with unique ids; nothing is returned otherwise.
func DecodeSnapshot(data []byte) ([]Room, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	return decodeRoomList(trimmed)
}

func decodeRoomList(data []byte) ([]Room, error) {
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: payload is not a sequence", ErrInvalidSnapshot)
	}
	var list []Room
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if err := ValidateRooms(list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []Room{}
	}
	return list, nil
}

type commandResponse struct {
	Message string `json:"message"`
	Room    *struct {
		ID     string `json:"id"`
		Status Status `json:"status"`
	} `json:"room"`
}

// DecodeCommandResult extracts the confirmed (id, status) pair from a
// POST /rooms/{id}/status body. ok is false for any other shape, including
// error bodies, a missing room, a missing id or status, or an undefined
// status value.
func DecodeCommandResult(data []byte) (StatusPatch, bool) {
	var resp commandResponse
	if err := json.Unmarshal(bytes.TrimSpace(data), &resp); err != nil || resp.Room == nil {
		return StatusPatch{}, false
	}
	patch := StatusPatch{RoomID: resp.Room.ID, NewStatus: resp.Room.Status}
	if err := validate.Struct(patch); err != nil {
		return StatusPatch{}, false
	}
	return patch, true
}
