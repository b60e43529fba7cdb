package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/goalie/internal/flagx"
	"github.com/dmitrijs2005/goalie/internal/timex"
)

// jsonConfig mirrors Config for decoding. Absent fields keep the value
// already in Config.
type jsonConfig struct {
	ServerURL            *string         `json:"server_url"`
	DatabasePath         *string         `json:"database_path"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	SessionCheckInterval *timex.Duration `json:"session_check_interval"`
	LogLevel             *string         `json:"log_level"`
	LogBackend           *string         `json:"log_backend"`
}

// parseJSON overlays cfg with the file given by -c or -config in args. It does
// nothing when neither flag is present.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.SessionCheckInterval != nil {
		cfg.SessionCheckInterval = jc.SessionCheckInterval.Duration
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
	if jc.LogBackend != nil {
		cfg.LogBackend = *jc.LogBackend
	}
	return nil
}
