// Package config loads roomboard's connection and logging settings.
//
// # Resolution Order
//
//  1. Hardcoded defaults
//  2. ~/.config/roomboard/config.toml, or the path passed to Load
//  3. ROOMBOARD_* environment variables
//
// A missing config file is not an error. Blank values at any layer leave the
// layer below in place.
//
// # Default Values
//
//   - API base: http://127.0.0.1:8000
//   - Stream URL: derived from the API base (ws/wss + /ws/rooms/status)
//   - Request timeout: 5s
//   - Reconnect backoff: 1s doubling up to 30s
//   - Log level: info
//   - Log file: ~/.local/state/roomboard/roomboard.log
//
// # TOML Format
//
//	api_base = "http://127.0.0.1:8000"
//	stream_url = "ws://127.0.0.1:8000/ws/rooms/status"
//	request_timeout = "5s"
//	reconnect_min = "1s"
//	reconnect_max = "30s"
//	log_level = "info"
//	log_file = "~/.local/state/roomboard/roomboard.log"
//
// Durations use Go duration syntax and must be positive. Every validation
// error names the key that failed. Tilde expansion is performed for the
// config path and log_file.
//
// # Environment
//
//	ROOMBOARD_API_BASE, ROOMBOARD_STREAM_URL, ROOMBOARD_REQUEST_TIMEOUT,
//	ROOMBOARD_RECONNECT_MIN, ROOMBOARD_RECONNECT_MAX, ROOMBOARD_LOG_LEVEL,
//	ROOMBOARD_LOG_FILE
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return fmt.Errorf("load config: %w", err)
//	}
//	streamURL, err := cfg.StreamEndpoint()
package config
