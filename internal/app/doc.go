// Package app is the composition root for roomboard.
//
// # Overview
//
// Run loads configuration and preferences, opens the JSON log, starts the
// sync Core and hands it to the TUI. Core is usable on its own (the
// end-to-end tests drive it against internal/devserver).
//
// # Data Flow
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()      file + ROOMBOARD_* overrides
//	       ├─────> prefs.Load()       theme and default view
//	       ├─────> logging.New()      JSON log file
//	       ├─────> StartCore()
//	       │        ├─> rooms.NewClient()   GET /rooms, POST status
//	       │        ├─> roomsync.Engine     mutation loop
//	       │        ├─> stream.Subscriber   websocket frames -> HandleFrame
//	       │        └─> initial Load()
//	       └─────> ui.Run()           blocks until quit
//
// Every stream reconnect after the first connection triggers a full Load,
// since status patches sent while disconnected are gone.
//
// # Error Handling
//
// Fatal (returned from Run): invalid configuration, an unusable API base or
// stream URL, a log file that cannot be opened, the TUI failing to start.
//
// Recoverable (logged, registry records the failure): snapshot loads,
// dropped stream connections, unusable command results.
package app
