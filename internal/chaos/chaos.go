// Package chaos implements the rig's fault injector: artificial request
// latency and probabilistic tool failure, both driven by the live
// configuration.
//
// The injector is stateless; every call reads the configuration store, so a
// control-API change takes effect on the very next request. Latency and
// failure are rolled independently and may compound: a request can be both
// slowed at the transport and failed at the tool.
package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Typewise/mcp-chaos-rig/internal/config"
)

// Injector applies configured latency and failure rolls.
type Injector struct {
	store *config.Store

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an injector reading from store, seeded from the clock.
func New(store *config.Store) *Injector {
	return NewWithSeed(store, time.Now().UnixNano())
}

// NewWithSeed creates an injector with a fixed seed, for deterministic tests.
func NewWithSeed(store *config.Store, seed int64) *Injector {
	return &Injector{
		store: store,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Delay suspends the caller for a uniformly distributed duration in
// [minDelayMs, maxDelayMs] when slow mode is enabled, returning early if the
// context is canceled. With slow mode disabled it returns immediately.
func (i *Injector) Delay(ctx context.Context) error {
	slow := i.store.Slow()
	if !slow.Enabled {
		return nil
	}

	d := i.pickDelay(slow)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RollFailure reports whether this invocation should fail, with probability
// failurePercent/100. Each call rolls independently.
func (i *Injector) RollFailure() bool {
	flaky := i.store.Flaky()
	if !flaky.Enabled {
		return false
	}
	if flaky.FailurePercent <= 0 {
		return false
	}
	if flaky.FailurePercent >= 100 {
		return true
	}

	i.mu.Lock()
	roll := i.rng.Intn(100)
	i.mu.Unlock()
	return roll < flaky.FailurePercent
}

// pickDelay draws a duration uniformly from [min, max] inclusive.
func (i *Injector) pickDelay(slow config.SlowConfig) time.Duration {
	spread := slow.MaxDelayMs - slow.MinDelayMs

	i.mu.Lock()
	ms := slow.MinDelayMs
	if spread > 0 {
		ms += i.rng.Intn(spread + 1)
	}
	i.mu.Unlock()

	return time.Duration(ms) * time.Millisecond
}
