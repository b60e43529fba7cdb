// Package config loads runtime configuration for the Goalie CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the Goalie API
//	-d string   path of the local session database
//	-t int      request timeout (seconds)
//	-i int      session check interval (seconds)
//	-l string   log level: debug, info, warn, error
//	-b string   log backend: slog or zap
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "10s" or integer
// nanoseconds:
//
//	{
//	  "server_url": "https://api.goalie.example",
//	  "database_path": "/home/ada/.goalie/session.db",
//	  "request_timeout": "10s",
//	  "session_check_interval": "1m",
//	  "log_level": "info",
//	  "log_backend": "zap"
//	}
package config
