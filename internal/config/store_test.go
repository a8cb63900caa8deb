package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver records notifications in arrival order.
type recordingObserver struct {
	label  string
	events *[]string
}

func (r *recordingObserver) OnAuthChanged() {
	*r.events = append(*r.events, r.label+":auth")
}

func (r *recordingObserver) OnToolChanged(name string, kind ChangeKind, value string) {
	*r.events = append(*r.events, r.label+":"+name+":"+string(kind)+":"+value)
}

func newTestStore() *Store {
	s := NewStore(Default())
	s.DeclareTool("echo", []string{"v1", "v2"}, "v1")
	s.DeclareTool("sum", []string{"v1"}, "v1")
	return s
}

func TestStoreDeclareToolSeedsConfig(t *testing.T) {
	s := newTestStore()

	assert.True(t, s.ToolEnabled("echo"))
	assert.Equal(t, "v1", s.ToolVersion("echo"))
	assert.False(t, s.ToolEnabled("never-declared"))
}

func TestStoreSetAuthMode(t *testing.T) {
	s := newTestStore()

	var events []string
	s.Subscribe(&recordingObserver{label: "a", events: &events})
	s.Subscribe(&recordingObserver{label: "b", events: &events})

	require.NoError(t, s.SetAuthMode(AuthModeSharedSecret))
	assert.Equal(t, AuthModeSharedSecret, s.AuthMode())

	// Delivered synchronously, in subscription order, before the setter
	// returned.
	assert.Equal(t, []string{"a:auth", "b:auth"}, events)

	assert.Error(t, s.SetAuthMode(AuthMode("bogus")))
	assert.Equal(t, AuthModeSharedSecret, s.AuthMode())
}

func TestStoreToolNotifications(t *testing.T) {
	s := newTestStore()

	var events []string
	s.Subscribe(&recordingObserver{label: "o", events: &events})

	require.NoError(t, s.SetToolEnabled("echo", false))
	require.NoError(t, s.SetToolEnabled("echo", true))
	require.NoError(t, s.SetToolVersion("echo", "v2"))

	assert.Equal(t, []string{
		"o:echo:toggle:false",
		"o:echo:toggle:true",
		"o:echo:version:v2",
	}, events)
	assert.Equal(t, "v2", s.ToolVersion("echo"))
}

func TestStoreToolValidation(t *testing.T) {
	s := newTestStore()

	assert.Error(t, s.SetToolEnabled("nope", true), "unknown tool must be rejected")
	assert.Error(t, s.SetToolVersion("nope", "v1"), "unknown tool must be rejected")
	assert.Error(t, s.SetToolVersion("sum", "v2"), "single-version tool cannot be re-versioned")
	assert.Error(t, s.SetToolVersion("echo", "v9"), "undeclared version tag must be rejected")
}

func TestStoreSlowClamping(t *testing.T) {
	s := newTestStore()

	s.SetSlow(true, -50, -10)
	slow := s.Slow()
	assert.True(t, slow.Enabled)
	assert.Equal(t, 0, slow.MinDelayMs)
	assert.Equal(t, 0, slow.MaxDelayMs)

	s.SetSlow(true, 500, 100)
	slow = s.Slow()
	assert.Equal(t, 500, slow.MinDelayMs)
	assert.Equal(t, 500, slow.MaxDelayMs, "max clamps up to min")
}

func TestStoreFlakyClamping(t *testing.T) {
	s := newTestStore()

	s.SetFlaky(true, 250)
	assert.Equal(t, 100, s.Flaky().FailurePercent)

	s.SetFlaky(true, -5)
	assert.Equal(t, 0, s.Flaky().FailurePercent)
}

func TestStoreAccessTokenTTL(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.SetAccessTokenTTL(120))
	assert.Equal(t, float64(120), s.AccessTokenTTL().Seconds())
	assert.Error(t, s.SetAccessTokenTTL(0))
	assert.Error(t, s.SetAccessTokenTTL(-10))
}

func TestStoreRejectModes(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.SetRejectMode(AuthModeSharedSecret, RejectUnauthorized))
	assert.Equal(t, RejectUnauthorized, s.RejectSharedSecret())
	assert.Equal(t, RejectNone, s.RejectDelegatedFlow())

	require.NoError(t, s.SetRejectMode(AuthModeDelegated, RejectServerError))
	assert.Equal(t, RejectServerError, s.RejectDelegatedFlow())

	assert.Error(t, s.SetRejectMode(AuthModeNone, RejectUnauthorized))
	assert.Error(t, s.SetRejectMode(AuthModeSharedSecret, RejectMode("sometimes")))
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := newTestStore()

	snap := s.Snapshot()
	snap.ToolEnabled["echo"] = false
	snap.AuthMode = AuthModeDelegated

	assert.True(t, s.ToolEnabled("echo"), "mutating a snapshot must not touch the store")
	assert.Equal(t, AuthModeNone, s.AuthMode())
}

func TestLoadDefaultsWithoutPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, AuthModeNone, cfg.AuthMode)
	assert.Equal(t, 3600, cfg.AccessTokenTTLSeconds)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.yaml")
	data := []byte("authMode: shared-secret\nsharedSecret: hunter2\nslow:\n  enabled: true\n  minDelayMs: 10\n  maxDelayMs: 20\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AuthModeSharedSecret, cfg.AuthMode)
	assert.Equal(t, "hunter2", cfg.SharedSecret)
	assert.True(t, cfg.Slow.Enabled)
	assert.Equal(t, 3600, cfg.AccessTokenTTLSeconds, "unset fields keep defaults")
}

func TestLoadClampsChaosValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.yaml")
	data := []byte("slow:\n  enabled: true\n  minDelayMs: 100\n  maxDelayMs: 50\nflaky:\n  enabled: true\n  failurePercent: 150\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Slow.MinDelayMs)
	assert.Equal(t, 100, cfg.Slow.MaxDelayMs, "max clamps up to min, as SetSlow does")
	assert.Equal(t, 100, cfg.Flaky.FailurePercent)

	data = []byte("slow:\n  minDelayMs: -5\n  maxDelayMs: -1\nflaky:\n  failurePercent: -20\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Slow.MinDelayMs)
	assert.Zero(t, cfg.Slow.MaxDelayMs)
	assert.Zero(t, cfg.Flaky.FailurePercent)
}

func TestLoadRejectsInvalidEnums(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte("authMode: kerberos\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
