package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/goalie/internal/flagx"
)

// parseFlags overlays cfg with the flags it owns:
//
//	-a string   base URL of the Goalie API
//	-d string   path of the local session database
//	-t int      request timeout (seconds)
//	-i int      session check interval (seconds), 0 disables it
//	-l string   log level
//	-b string   log backend (slog or zap)
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-t", "-i", "-l", "-b"})

	fs := flag.NewFlagSet("goalie", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the Goalie API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local session database")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	interval := fs.Int("i", int(cfg.SessionCheckInterval.Seconds()), "session check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogBackend, "b", cfg.LogBackend, "log backend (slog or zap)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if *timeout <= 0 {
		return fmt.Errorf("invalid flags: request timeout must be positive, got %d", *timeout)
	}
	if *interval < 0 {
		return fmt.Errorf("invalid flags: session check interval must not be negative, got %d", *interval)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
	cfg.SessionCheckInterval = time.Duration(*interval) * time.Second
	return nil
}
