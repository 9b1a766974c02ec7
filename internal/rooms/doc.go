// Package rooms defines the room data model, the wire formats of the room API
// and an HTTP client for it.
//
// # Data Model
//
// A Room is identified by its ID; Name, Address and Status may change. Status
// is one of AVAILABLE, GUIDING or CONTRACTED. Anything else is rejected at the
// boundary so that the registry never holds an undefined status.
//
// # Wire Formats
//
// The request/response API exposes two calls:
//
//   - GET /rooms: JSON array of rooms in display order
//   - POST /rooms/{id}/status with {"new_status": S}: {"room": Room} on success,
//     any other shape otherwise
//
// The live stream delivers UTF-8 text frames that are either a full JSON array
// of rooms or an object:
//
//	{"type": "ROOM_STATUS_UPDATE", "room_id": "...", "new_status": "GUIDING"}
//
// DecodeNotification parses a frame into the tagged variants FullReplace and
// StatusPatch. Frames that fail to parse return ErrMalformed; frames that parse
// but match neither variant return ErrUnrecognized. DecodeCommandResult
// reports whether a command response carries a usable (id, status) pair.
//
// # Client
//
// Client wraps a resty client with a base URL, a request timeout and JSON
// headers. FetchRooms validates the body as a snapshot before returning it.
// UpdateStatus returns the raw body so that the caller can decide between
// reconciliation and a full reload.
package rooms
