package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TicksPerYear is the number of weekly ticks in a simulated year.
const TicksPerYear = 52

// Engine drives a Model forward against the wall clock.
type Engine struct {
	Model    *Model
	Interval time.Duration // base tick interval, 0 runs as fast as possible

	// Callbacks, populated during setup.
	OnTick   func(s *Snapshot) // after every tick
	OnReport func(s *Snapshot) // every ReportEvery ticks

	ReportEvery int

	mu      sync.Mutex
	speed   float64 // multiplier: 1.0 = configured interval, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine for m with the run's configured interval.
func NewEngine(m *Model) *Engine {
	run := m.Env.Cfg.Run
	return &Engine{
		Model:       m,
		Interval:    run.TickInterval,
		ReportEvery: run.ReportEvery,
		speed:       1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the run.
func (e *Engine) SetSpeed(speed float64) error {
	if speed < 0 {
		return fmt.Errorf("speed %v must not be negative", speed)
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	slog.Info("simulation speed changed", "speed", speed)
	return nil
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run steps the model until it is done, Stop is called or ctx ends. It
// returns the first step error.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	m := e.Model
	slog.Info("simulation engine started", "tick", m.Env.Tick, "steps", m.Env.Cfg.Run.Steps, "speed", e.Speed())

	for !m.Done() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused, check again shortly.
			if !sleep(ctx, stop, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()
		if err := e.step(ctx); err != nil {
			return err
		}

		var wait time.Duration
		if e.Interval > 0 {
			target := time.Duration(float64(e.Interval) / speed)
			wait = target - time.Since(start)
		}
		if !sleep(ctx, stop, wait) {
			break
		}
	}

	slog.Info("simulation engine stopped", "tick", m.Env.Tick)
	return nil
}

// Stop halts a running loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// step advances the model by one tick and fires the callbacks.
func (e *Engine) step(ctx context.Context) error {
	if err := e.Model.Step(ctx); err != nil {
		return err
	}
	s := e.Model.Snapshot()
	if e.OnTick != nil {
		e.OnTick(s)
	}
	if e.ReportEvery > 0 && s.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(s)
	}
	return nil
}

// sleep waits for d and reports false if ctx or stop ended the wait.
func sleep(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// SimTime renders a tick as a calendar week.
func SimTime(startYear, tick int) string {
	return fmt.Sprintf("Week %d, %d", tick%TicksPerYear+1, startYear+tick/TicksPerYear)
}
