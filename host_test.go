package tickrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHost_SchedulersShareLoop verifies host-created schedulers run and tear down together
// Given: A host with two schedulers
// When: Work is queued on both and the host shuts down
// Then: Both ran on the loop and both are disposed afterwards
func TestHost_SchedulersShareLoop(t *testing.T) {
	// Arrange
	host := NewHost(HostConfig{TickInterval: time.Millisecond, DefaultTimeLimit: time.Minute})
	a := host.NewScheduler("a")
	b := host.NewScheduler("b")
	require.Equal(t, 2, host.Registry().Len())

	ranA := make(chan struct{})
	ranB := make(chan struct{})
	a.EnqueueAction(func(ctx context.Context) { close(ranA) })
	b.EnqueueAction(func(ctx context.Context) { close(ranB) })

	// Act
	for _, ch := range []chan struct{}{ranA, ranB} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not run on the host loop")
		}
	}
	host.Shutdown()
	host.Shutdown()

	// Assert
	assert.True(t, a.IsDisposed())
	assert.True(t, b.IsDisposed())
	assert.Equal(t, 0, host.Registry().Len())
	assert.True(t, host.Loop().IsClosed())
	assert.Equal(t, time.Minute, a.DefaultTimeLimit())
}

func TestHost_SchedulerConfigDefaults(t *testing.T) {
	host := NewHost(HostConfig{AbortOnTimeout: true, TimeoutSilently: true, HistorySize: 7})
	defer host.Shutdown()

	cfg := host.SchedulerConfig("x")

	assert.Equal(t, "x", cfg.Name)
	assert.True(t, cfg.AbortOnTimeout)
	assert.True(t, cfg.TimeoutSilently)
	assert.Equal(t, 7, cfg.HistorySize)
	assert.Same(t, host.Registry(), cfg.Registry)
	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Metrics)
	assert.NotNil(t, cfg.Clock)
}

// TestHost_RegistryIsForced verifies callers cannot detach a scheduler from host teardown
func TestHost_RegistryIsForced(t *testing.T) {
	host := NewHost(HostConfig{})
	cfg := DefaultSchedulerConfig()
	cfg.Name = "custom"
	cfg.Registry = NewRegistry(nil)

	s := host.NewSchedulerWithConfig(cfg)
	anon := host.NewSchedulerWithConfig(nil)
	host.Shutdown()

	assert.True(t, s.IsDisposed())
	assert.True(t, anon.IsDisposed())
	assert.Equal(t, 0, cfg.Registry.Len())
}
