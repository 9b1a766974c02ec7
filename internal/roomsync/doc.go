// Package roomsync keeps the room registry consistent with the server.
//
// An Engine owns a single loop goroutine (Run). Every registry mutation is a
// closure executed on that loop in arrival order: snapshot results (Load),
// live-stream frames (HandleFrame) and both halves of a status command
// (SetStatus). Network calls never run on the loop, so frames keep applying
// while a command is in flight.
//
// A status command patches the registry before the request is sent. A
// response carrying {"room": {"id", "status"}} is applied as a second patch.
// Any other response, an HTTP error or a timeout triggers a full Load.
//
// Messages carry no sequence numbers: whatever reaches the loop last wins.
package roomsync
