// Package stream subscribes to the server's live room-status websocket.
//
// A Subscriber forwards each text frame to its Handler in receipt order and
// redials with capped exponential backoff after the connection ends. Every
// open after the first is reported through OnOpen so the caller can reload
// whatever it missed while disconnected.
package stream
