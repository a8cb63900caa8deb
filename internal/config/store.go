package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/Typewise/mcp-chaos-rig/pkg/logging"
)

// ChangeKind classifies a tool-changed notification.
type ChangeKind string

const (
	// ChangeToggle means the tool's enabled flag changed; the value is
	// "true" or "false".
	ChangeToggle ChangeKind = "toggle"
	// ChangeVersion means the tool's active version changed; the value is
	// the new version tag.
	ChangeVersion ChangeKind = "version"
)

// Observer receives configuration change notifications. Notifications are
// delivered synchronously, in subscription order, before the triggering
// setter returns, so an observer that has seen the setter return is
// guaranteed the change has been applied everywhere.
type Observer interface {
	// OnAuthChanged fires when the authentication mode changes.
	OnAuthChanged()
	// OnToolChanged fires when a tool's enabled flag or active version
	// changes.
	OnToolChanged(name string, kind ChangeKind, value string)
}

// ToolInfo describes a capability declared in the tool catalog: the version
// tags it ships and which one is active when nothing else is configured.
type ToolInfo struct {
	Versions       []string
	DefaultVersion string
}

// Store holds the single mutable Config instance and fans out change
// notifications. It is the ground truth for every toggle in the rig; no
// component mutates configuration except through its setters.
type Store struct {
	mu        sync.RWMutex
	cfg       Config
	tools     map[string]ToolInfo
	observers []Observer
}

// NewStore wraps cfg in a Store. The caller declares the tool catalog with
// DeclareTool before the rig starts serving, so that tool setters have a
// ground truth to validate against.
func NewStore(cfg Config) *Store {
	if cfg.ToolEnabled == nil {
		cfg.ToolEnabled = map[string]bool{}
	}
	if cfg.ToolVersion == nil {
		cfg.ToolVersion = map[string]string{}
	}
	return &Store{
		cfg:   cfg,
		tools: map[string]ToolInfo{},
	}
}

// DeclareTool registers a capability with the store. Tools default to
// enabled at their default version unless the startup configuration says
// otherwise.
func (s *Store) DeclareTool(name string, versions []string, defaultVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools[name] = ToolInfo{Versions: versions, DefaultVersion: defaultVersion}
	if _, ok := s.cfg.ToolEnabled[name]; !ok {
		s.cfg.ToolEnabled[name] = true
	}
	if _, ok := s.cfg.ToolVersion[name]; !ok {
		s.cfg.ToolVersion[name] = defaultVersion
	}
}

// Subscribe registers an observer. Not safe to call concurrently with
// setters; subscription happens during bootstrap.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Snapshot returns a copy of the current configuration, including copies of
// the tool maps.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.cfg
	cfg.ToolEnabled = make(map[string]bool, len(s.cfg.ToolEnabled))
	for k, v := range s.cfg.ToolEnabled {
		cfg.ToolEnabled[k] = v
	}
	cfg.ToolVersion = make(map[string]string, len(s.cfg.ToolVersion))
	for k, v := range s.cfg.ToolVersion {
		cfg.ToolVersion[k] = v
	}
	return cfg
}

// DeclaredTools returns the declared tool catalog.
func (s *Store) DeclaredTools() map[string]ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ToolInfo, len(s.tools))
	for k, v := range s.tools {
		out[k] = v
	}
	return out
}

// AuthMode returns the active authentication mode.
func (s *Store) AuthMode() AuthMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.AuthMode
}

// SharedSecret returns the expected bearer value for shared-secret mode.
func (s *Store) SharedSecret() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.SharedSecret
}

// RejectSharedSecret returns the forced-failure toggle for shared-secret mode.
func (s *Store) RejectSharedSecret() RejectMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.RejectSharedSecret
}

// RejectDelegatedFlow returns the forced-failure toggle for delegated-flow mode.
func (s *Store) RejectDelegatedFlow() RejectMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.RejectDelegatedFlow
}

// Slow returns the artificial latency settings.
func (s *Store) Slow() SlowConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Slow
}

// Flaky returns the probabilistic failure settings.
func (s *Store) Flaky() FlakyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Flaky
}

// AccessTokenTTL returns the configured access token lifetime.
func (s *Store) AccessTokenTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.cfg.AccessTokenTTLSeconds) * time.Second
}

// RejectRefresh reports whether refresh-token exchange is force-failed.
func (s *Store) RejectRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.RejectRefresh
}

// ToolEnabled reports whether the named tool is currently enabled. Unknown
// tools are disabled.
func (s *Store) ToolEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ToolEnabled[name]
}

// ToolVersion returns the active version tag for the named tool.
func (s *Store) ToolVersion(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ToolVersion[name]
}

// SetAuthMode switches the authentication mode and notifies observers, which
// force-closes every open session. Invalid modes are rejected.
func (s *Store) SetAuthMode(mode AuthMode) error {
	if !ValidAuthMode(mode) {
		return fmt.Errorf("invalid auth mode %q", mode)
	}

	s.mu.Lock()
	s.cfg.AuthMode = mode
	observers := s.observerList()
	s.mu.Unlock()

	logging.Info("Config", "auth mode set to %s", mode)
	for _, o := range observers {
		o.OnAuthChanged()
	}
	return nil
}

// SetSharedSecret replaces the expected bearer value for shared-secret mode.
func (s *Store) SetSharedSecret(secret string) {
	s.mu.Lock()
	s.cfg.SharedSecret = secret
	s.mu.Unlock()

	logging.Info("Config", "shared secret updated")
}

// SetRejectMode sets the forced-failure toggle for the given auth mode.
// Only shared-secret and delegated-flow carry a reject toggle.
func (s *Store) SetRejectMode(target AuthMode, mode RejectMode) error {
	if !ValidRejectMode(mode) {
		return fmt.Errorf("invalid reject mode %q", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch target {
	case AuthModeSharedSecret:
		s.cfg.RejectSharedSecret = mode
	case AuthModeDelegated:
		s.cfg.RejectDelegatedFlow = mode
	default:
		return fmt.Errorf("auth mode %q has no reject toggle", target)
	}

	logging.Info("Config", "reject mode for %s set to %s", target, mode)
	return nil
}

// SetSlow updates the artificial latency settings. Negative delays clamp to
// zero; the maximum clamps up to the minimum.
func (s *Store) SetSlow(enabled bool, minDelayMs, maxDelayMs int) {
	slow := SlowConfig{Enabled: enabled, MinDelayMs: minDelayMs, MaxDelayMs: maxDelayMs}.clamped()

	s.mu.Lock()
	s.cfg.Slow = slow
	s.mu.Unlock()

	logging.Info("Config", "slow mode enabled=%t min=%dms max=%dms", enabled, slow.MinDelayMs, slow.MaxDelayMs)
}

// SetFlaky updates the probabilistic failure settings, clamping the percent
// into [0,100].
func (s *Store) SetFlaky(enabled bool, failurePercent int) {
	flaky := FlakyConfig{Enabled: enabled, FailurePercent: failurePercent}.clamped()

	s.mu.Lock()
	s.cfg.Flaky = flaky
	s.mu.Unlock()

	logging.Info("Config", "flaky mode enabled=%t percent=%d", enabled, flaky.FailurePercent)
}

// SetAccessTokenTTL sets the lifetime applied to tokens minted from now on.
// Already-issued tokens keep their original expiry.
func (s *Store) SetAccessTokenTTL(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("access token ttl must be positive, got %d", seconds)
	}

	s.mu.Lock()
	s.cfg.AccessTokenTTLSeconds = seconds
	s.mu.Unlock()

	logging.Info("Config", "access token ttl set to %ds", seconds)
	return nil
}

// SetRejectRefresh toggles unconditional refresh-exchange failure.
func (s *Store) SetRejectRefresh(reject bool) {
	s.mu.Lock()
	s.cfg.RejectRefresh = reject
	s.mu.Unlock()

	logging.Info("Config", "reject refresh set to %t", reject)
}

// SetToolEnabled toggles a declared tool and notifies observers, which apply
// the change to every live session. Unknown tools are rejected.
func (s *Store) SetToolEnabled(name string, enabled bool) error {
	s.mu.Lock()
	if _, ok := s.tools[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown tool %q", name)
	}
	s.cfg.ToolEnabled[name] = enabled
	observers := s.observerList()
	s.mu.Unlock()

	value := "false"
	if enabled {
		value = "true"
	}
	logging.Info("Config", "tool %s enabled=%t", name, enabled)
	for _, o := range observers {
		o.OnToolChanged(name, ChangeToggle, value)
	}
	return nil
}

// SetToolVersion switches a tool to one of its declared versions and
// notifies observers. Tools that declare a single version cannot be
// re-versioned.
func (s *Store) SetToolVersion(name, version string) error {
	s.mu.Lock()
	info, ok := s.tools[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown tool %q", name)
	}
	if len(info.Versions) < 2 {
		s.mu.Unlock()
		return fmt.Errorf("tool %q does not declare multiple versions", name)
	}
	valid := false
	for _, v := range info.Versions {
		if v == version {
			valid = true
			break
		}
	}
	if !valid {
		s.mu.Unlock()
		return fmt.Errorf("tool %q has no version %q", name, version)
	}
	s.cfg.ToolVersion[name] = version
	observers := s.observerList()
	s.mu.Unlock()

	logging.Info("Config", "tool %s version set to %s", name, version)
	for _, o := range observers {
		o.OnToolChanged(name, ChangeVersion, version)
	}
	return nil
}

// observerList copies the observer slice. Callers must hold the lock.
// Notifications run after the lock is released so observers can call
// getters without deadlocking, while still completing before the setter
// returns.
func (s *Store) observerList() []Observer {
	out := make([]Observer, len(s.observers))
	copy(out, s.observers)
	return out
}
