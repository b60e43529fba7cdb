package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the Goalie CLI.
type Config struct {
	// ServerURL is the base URL of the Goalie API.
	ServerURL string
	// DatabasePath is the SQLite file holding the stored session.
	DatabasePath string
	// RequestTimeout bounds every API request.
	RequestTimeout time.Duration
	// SessionCheckInterval is how often an authenticated session is
	// re-validated in the background. Zero disables the check.
	SessionCheckInterval time.Duration
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogBackend selects the logger implementation: slog or zap.
	LogBackend string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8000"
	c.DatabasePath = "goalie.db"
	c.RequestTimeout = 10 * time.Second
	c.SessionCheckInterval = time.Minute
	c.LogLevel = "info"
	c.LogBackend = "slog"
}

// LoadConfig applies defaults, then the JSON file named by -c/-config, then
// command-line flags. Later sources take precedence.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
