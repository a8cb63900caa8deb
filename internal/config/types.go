package config

// AuthMode selects how the rig authenticates inbound MCP requests.
type AuthMode string

const (
	// AuthModeNone lets every request through.
	AuthModeNone AuthMode = "none"
	// AuthModeSharedSecret requires a bearer token equal to the configured
	// shared secret.
	AuthModeSharedSecret AuthMode = "shared-secret"
	// AuthModeDelegated requires a token issued by the rig's own
	// authorization-code flow.
	AuthModeDelegated AuthMode = "delegated-flow"
)

// ValidAuthMode reports whether m is one of the known auth modes.
func ValidAuthMode(m AuthMode) bool {
	switch m {
	case AuthModeNone, AuthModeSharedSecret, AuthModeDelegated:
		return true
	}
	return false
}

// RejectMode is a forced-failure toggle for an authentication mode,
// independent of real credential validation.
type RejectMode string

const (
	// RejectNone disables the forced failure.
	RejectNone RejectMode = "none"
	// RejectUnauthorized forces a 401 before credentials are inspected.
	RejectUnauthorized RejectMode = "unauthorized"
	// RejectServerError forces a 500 before credentials are inspected.
	RejectServerError RejectMode = "server-error"
)

// ValidRejectMode reports whether m is one of the known reject modes.
func ValidRejectMode(m RejectMode) bool {
	switch m {
	case RejectNone, RejectUnauthorized, RejectServerError:
		return true
	}
	return false
}

// SlowConfig controls artificial latency applied to every inbound request.
type SlowConfig struct {
	Enabled    bool `yaml:"enabled"`
	MinDelayMs int  `yaml:"minDelayMs"`
	MaxDelayMs int  `yaml:"maxDelayMs"`
}

// clamped normalizes the delay bounds: negative delays become zero and the
// maximum is raised to the minimum. Every write path goes through this so
// min <= max holds no matter where the values came from.
func (c SlowConfig) clamped() SlowConfig {
	if c.MinDelayMs < 0 {
		c.MinDelayMs = 0
	}
	if c.MaxDelayMs < 0 {
		c.MaxDelayMs = 0
	}
	if c.MaxDelayMs < c.MinDelayMs {
		c.MaxDelayMs = c.MinDelayMs
	}
	return c
}

// FlakyConfig controls probabilistic failure of tool invocations.
type FlakyConfig struct {
	Enabled        bool `yaml:"enabled"`
	FailurePercent int  `yaml:"failurePercent"`
}

// clamped bounds the failure percentage into [0,100].
func (c FlakyConfig) clamped() FlakyConfig {
	if c.FailurePercent < 0 {
		c.FailurePercent = 0
	}
	if c.FailurePercent > 100 {
		c.FailurePercent = 100
	}
	return c
}

// Config is the full runtime configuration of the rig. A single instance
// lives in the Store for the process lifetime; everything in it can be
// mutated through the control API.
type Config struct {
	AuthMode              AuthMode   `yaml:"authMode"`
	SharedSecret          string     `yaml:"sharedSecret"`
	RejectSharedSecret    RejectMode `yaml:"rejectSharedSecret"`
	RejectDelegatedFlow   RejectMode `yaml:"rejectDelegatedFlow"`
	Slow                  SlowConfig `yaml:"slow"`
	AccessTokenTTLSeconds int        `yaml:"accessTokenTtlSeconds"`
	RejectRefresh         bool       `yaml:"rejectRefresh"`
	Flaky                 FlakyConfig `yaml:"flaky"`

	// ToolEnabled and ToolVersion are keyed by capability name. Entries are
	// seeded from the declared tool catalog at boot; the yaml file may
	// override individual entries.
	ToolEnabled map[string]bool   `yaml:"toolEnabled,omitempty"`
	ToolVersion map[string]string `yaml:"toolVersion,omitempty"`
}

// Default returns the configuration the rig starts with when no config file
// is given: auth disabled, no chaos, one hour token lifetime.
func Default() Config {
	return Config{
		AuthMode:            AuthModeNone,
		SharedSecret:        "chaos-secret",
		RejectSharedSecret:  RejectNone,
		RejectDelegatedFlow: RejectNone,
		Slow: SlowConfig{
			Enabled:    false,
			MinDelayMs: 250,
			MaxDelayMs: 2000,
		},
		AccessTokenTTLSeconds: 3600,
		RejectRefresh:         false,
		Flaky: FlakyConfig{
			Enabled:        false,
			FailurePercent: 50,
		},
		ToolEnabled: map[string]bool{},
		ToolVersion: map[string]string{},
	}
}
