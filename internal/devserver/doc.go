// Package devserver is a small in-memory room server for local development
// and end-to-end tests.
//
// Routes:
//
//	GET  /rooms                  ordered JSON array of rooms
//	POST /rooms/{id}/status      {"new_status": S} -> {"message", "room"}
//	GET  /ws/rooms/status        websocket; receives ROOM_STATUS_UPDATE
//	                             objects and, after Replace, full arrays
//
// Unknown ids answer 404 and undefined statuses 422, both with a
// {"detail": ...} body.
package devserver
