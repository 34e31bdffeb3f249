package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/config"
)

func TestEngineRunsToCompletion(t *testing.T) {
	m := newTestModel(t, nil, func(c *config.Config) {
		c.Run.Steps = 4
		c.Run.ReportEvery = 2
	})
	eng := NewEngine(m)
	ticks, reports := 0, 0
	eng.OnTick = func(*Snapshot) { ticks++ }
	eng.OnReport = func(s *Snapshot) {
		reports++
		m.Report(s)
	}

	require.NoError(t, eng.Run(context.Background()))

	assert.Equal(t, 4, m.Env.Tick)
	assert.Equal(t, 4, ticks)
	assert.Equal(t, 2, reports)
	assert.False(t, eng.Running())
}

func TestEngineStop(t *testing.T) {
	m := newTestModel(t, nil, func(c *config.Config) {
		c.Run.Steps = 1000
		c.Run.TickInterval = time.Hour
	})
	eng := NewEngine(m)

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()
	require.Eventually(t, func() bool { return m.Snapshot().Tick == 1 }, 5*time.Second, 5*time.Millisecond)

	eng.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, 1, m.Env.Tick)
}

func TestEngineHonoursContext(t *testing.T) {
	m := newTestModel(t, nil, func(c *config.Config) { c.Run.Steps = 1000 })
	eng := NewEngine(m)
	require.NoError(t, eng.SetSpeed(0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, eng.Run(ctx))
	assert.Zero(t, m.Env.Tick, "paused engine does not step")
}

func TestSetSpeed(t *testing.T) {
	eng := NewEngine(newTestModel(t, nil, nil))
	assert.Equal(t, 1.0, eng.Speed())
	require.NoError(t, eng.SetSpeed(4))
	assert.Equal(t, 4.0, eng.Speed())
	assert.Error(t, eng.SetSpeed(-1))
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Week 1, 2024", SimTime(2024, 0))
	assert.Equal(t, "Week 52, 2024", SimTime(2024, 51))
	assert.Equal(t, "Week 1, 2025", SimTime(2024, 52))
}
