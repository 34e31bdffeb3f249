// Package engine advances the heating-adoption world one week at a time and
// drives it against the wall clock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/subsidy"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 200

// Event is a notable occurrence in the run.
type Event struct {
	Tick        int            `json:"tick" db:"tick"`
	Description string         `json:"description" db:"description"`
	Category    string         `json:"category" db:"category"` // "scenario", "market", "subsidy"
	Meta        map[string]any `json:"meta,omitempty" db:"-"`
}

// Collector receives every published snapshot.
type Collector interface {
	Collect(ctx context.Context, s *Snapshot) error
}

// Model holds the complete world state and runs the weekly tick.
type Model struct {
	Env       *agents.Env
	Scenario  *Scenario
	Collector Collector // optional

	spawner *agents.Spawner
	sched   *rand.Rand
	visited map[agents.AgentID]bool // owners a campaign already reached

	mu     sync.RWMutex
	last   *Snapshot
	events []Event
}

// NewModel builds and populates a world for cfg and applies the starting
// conditions of sc.
func NewModel(cfg *config.Config, sc *Scenario) (*Model, error) {
	if sc == nil {
		sc = Baseline()
	}
	streams := rng.New(cfg.Run.Seed)
	env, err := agents.NewEnv(cfg, streams, sc.Targets)
	if err != nil {
		return nil, fmt.Errorf("new environment: %w", err)
	}
	m := &Model{
		Env:      env,
		Scenario: sc,
		spawner:  agents.NewSpawner(env),
		sched:    streams.For(rng.RoleScheduler),
		visited:  make(map[agents.AgentID]bool),
	}
	if err := m.spawner.Populate(); err != nil {
		return nil, fmt.Errorf("populate: %w", err)
	}
	m.setup()
	m.publish(nil, nil)

	slog.Info("model ready",
		"scenario", sc.Name,
		"seed", streams.Root,
		"houseowners", len(env.OwnerOrder),
		"plumbers", len(env.Plumbers),
		"advisors", len(env.Advisors),
	)
	return m, nil
}

// setup applies the scenario's one-off starting conditions.
func (m *Model) setup() {
	e := m.Env
	sc := m.Scenario
	for _, k := range sc.Blocked {
		e.MarkInfeasible(k)
	}
	e.IgnoreInsulation = sc.IgnoreInsulation || sc.Perfect
	if len(sc.HeadStart) > 0 {
		for _, h := range e.OwnerOrder {
			if h.House.Heating.Kind == heating.HeatPump {
				h.HeadStart(sc.HeadStart)
			}
		}
	}
	if sc.Perfect {
		for _, h := range e.OwnerOrder {
			h.LearnEverything()
		}
	}
}

// Done reports whether the configured number of ticks has run.
func (m *Model) Done() bool {
	return m.Env.Tick >= m.Env.Cfg.Run.Steps
}

// Step advances the world by one week: the environment changes first, then
// every agent acts once, then the results are published.
func (m *Model) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.environment(); err != nil {
		return fmt.Errorf("tick %d: environment: %w", m.Env.Tick, err)
	}
	if err := m.activate(ctx); err != nil {
		return fmt.Errorf("tick %d: %w", m.Env.Tick, err)
	}

	m.Env.Tick++
	jobs, queues := m.drainDesks()
	snap := m.publish(jobs, queues)
	m.Env.Counters.TickTriggers = 0

	if m.Collector != nil {
		if err := m.Collector.Collect(ctx, snap); err != nil {
			return fmt.Errorf("tick %d: collect: %w", snap.Tick, err)
		}
	}
	return nil
}

func (m *Model) environment() error {
	m.updateAvailability()
	m.updateContracts()
	m.updatePrices()
	m.updateSubsidies()
	for _, iv := range m.Scenario.Interventions {
		m.apply(iv)
	}
	return m.changeOwnership()
}

// updateAvailability blocks every kind whose availability has run out and
// pushes idle owners of that kind into looking for a replacement.
func (m *Model) updateAvailability() {
	e := m.Env
	for _, k := range e.Kinds {
		if e.GlobalInfeasible[k] {
			continue
		}
		if e.Table.Spec(k).Availability-e.Tick > 0 {
			continue
		}
		e.MarkInfeasible(k)
		forced := 0
		for _, h := range e.OwnerOrder {
			if h.House.Heating.Kind == k && h.ForceOut() {
				forced++
			}
		}
		m.EmitEvent(Event{
			Tick:        e.Tick,
			Description: fmt.Sprintf("%s can no longer be installed", k),
			Category:    "market",
			Meta:        map[string]any{"owners": forced},
		})
	}
}

// updateContracts runs down fixed fuel-price contracts.
func (m *Model) updateContracts() {
	for _, h := range m.Env.OwnerOrder {
		cur := &h.House.Heating
		if cur.ContractTerm > 0 {
			cur.ContractTerm--
		}
	}
}

// updatePrices applies the scheduled fuel cost and emission changes due
// this tick. Owners of a changed kind get their installed system and its
// known snapshot recalculated.
func (m *Model) updatePrices() {
	e := m.Env
	if !e.Cfg.Data.Dynamic {
		return
	}
	for _, pc := range e.Cfg.Data.Schedule {
		if pc.Step != e.Tick {
			continue
		}
		k, err := heating.ParseKind(pc.System)
		if err != nil {
			continue
		}
		e.Table = e.Table.With(k, func(s *heating.Spec) {
			if pc.FuelCost != nil {
				s.FuelCost = *pc.FuelCost
			}
			if pc.Emissions != nil {
				s.Emissions = *pc.Emissions
			}
		})

		nudged := 0
		for _, h := range e.OwnerOrder {
			if h.House.Heating.Kind != k {
				continue
			}
			if pc.Emissions != nil {
				h.RefreshEmissions()
			}
			if pc.FuelCost != nil && h.RefreshFuelCost() {
				nudged++
			}
		}
		spec := e.Table.Spec(k)
		m.EmitEvent(Event{
			Tick:        e.Tick,
			Description: fmt.Sprintf("%s now costs %.3f per kWh and emits %.3f kg CO2 per kWh", k, spec.FuelCost, spec.Emissions),
			Category:    "market",
			Meta:        map[string]any{"owners": nudged},
		})
	}
}

// updateSubsidies withdraws the temporary climate-speed bonus.
func (m *Model) updateSubsidies() {
	e := m.Env
	if e.Tick != e.Cfg.Subsidies.ClimateSpeedEnd {
		return
	}
	e.Withdraw(subsidy.ClimateSpeedName)
	m.EmitEvent(Event{
		Tick:        e.Tick,
		Description: "the climate-speed subsidy ends",
		Category:    "subsidy",
	})
}

// changeOwnership hands houses to new owners. Owners waiting for an
// intermediary keep their house until the job is done.
func (m *Model) changeOwnership() error {
	e := m.Env
	p := e.Cfg.Run.OwnershipChangeProb
	if p <= 0 {
		return nil
	}
	for _, h := range slices.Clone(e.OwnerOrder) {
		if !rng.Chance(m.sched, p) || h.Pending() {
			continue
		}
		if _, err := m.spawner.Successor(h); err != nil {
			return fmt.Errorf("ownership change: %w", err)
		}
		slog.Debug("house changed hands", "owner", h.ID, "tick", e.Tick)
	}
	return nil
}

// activate runs houseowners, then plumbers, then energy advisors. Within
// each type the order is shuffled.
func (m *Model) activate(ctx context.Context) error {
	e := m.Env

	owners := slices.Clone(e.OwnerOrder)
	rng.Shuffle(m.sched, owners)
	for _, h := range owners {
		if err := h.Step(ctx); err != nil {
			return fmt.Errorf("houseowner %d: %w", h.ID, err)
		}
	}

	plumbers := slices.Clone(e.Plumbers)
	rng.Shuffle(m.sched, plumbers)
	for _, p := range plumbers {
		if err := p.Step(ctx); err != nil {
			return fmt.Errorf("plumber %d: %w", p.ID, err)
		}
	}

	advisors := slices.Clone(e.Advisors)
	rng.Shuffle(m.sched, advisors)
	for _, a := range advisors {
		if err := a.Step(ctx); err != nil {
			return fmt.Errorf("energy advisor %d: %w", a.ID, err)
		}
	}
	return nil
}

// EmitEvent records an event, dropping the oldest when the log is full.
func (m *Model) EmitEvent(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if len(m.events) > maxEvents {
		m.events = slices.Delete(m.events, 0, len(m.events)-maxEvents)
	}
}

// Events returns the retained events, oldest first.
func (m *Model) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

// Snapshot returns the most recently published snapshot. It is safe to
// call from other goroutines while the model steps.
func (m *Model) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
