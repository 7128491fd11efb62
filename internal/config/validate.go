package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for errors. Call after applyDefaults.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.URL == "" {
		errs = append(errs, "server.url is required")
	} else if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		errs = append(errs, "server.url must be a ws:// or wss:// URL")
	}

	if c.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "reconnect.max_attempts must be at least 1")
	}
	if c.Reconnect.BaseDelay <= 0 {
		errs = append(errs, "reconnect.base_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		errs = append(errs, "reconnect.max_delay must be >= reconnect.base_delay")
	}

	if c.Audit.Enabled {
		if c.Audit.Database.Host == "" {
			errs = append(errs, "audit.database.host is required when audit is enabled")
		}
		if c.Audit.Database.Name == "" {
			errs = append(errs, "audit.database.name is required when audit is enabled")
		}
		if c.Audit.Database.User == "" {
			errs = append(errs, "audit.database.user is required when audit is enabled")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
