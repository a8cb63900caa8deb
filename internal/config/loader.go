package config

import (
	"fmt"
	"os"

	"github.com/Typewise/mcp-chaos-rig/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Load builds the startup configuration: defaults, overlaid with the yaml
// file at path when one is given. A missing file with an explicit path is an
// error; an empty path just means defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if !ValidAuthMode(cfg.AuthMode) {
		return cfg, fmt.Errorf("config file %s: invalid auth mode %q", path, cfg.AuthMode)
	}
	if !ValidRejectMode(cfg.RejectSharedSecret) {
		return cfg, fmt.Errorf("config file %s: invalid rejectSharedSecret %q", path, cfg.RejectSharedSecret)
	}
	if !ValidRejectMode(cfg.RejectDelegatedFlow) {
		return cfg, fmt.Errorf("config file %s: invalid rejectDelegatedFlow %q", path, cfg.RejectDelegatedFlow)
	}
	if cfg.AccessTokenTTLSeconds <= 0 {
		return cfg, fmt.Errorf("config file %s: accessTokenTtlSeconds must be positive", path)
	}

	// File values get the same normalization the runtime setters apply, so
	// a config file cannot produce a state the control API could not.
	cfg.Slow = cfg.Slow.clamped()
	cfg.Flaky = cfg.Flaky.clamped()

	logging.Info("Config", "loaded configuration from %s", path)
	return cfg, nil
}
