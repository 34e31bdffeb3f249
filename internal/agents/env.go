package agents

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/social"
	"github.com/talgya/heatsim/internal/subsidy"
	"github.com/talgya/heatsim/internal/world"
)

// Env is the shared world every agent acts in. The engine owns it; agents
// reach each other only through it.
type Env struct {
	Cfg      *config.Config
	Table    *heating.Table
	Map      *world.Map
	Graph    *social.Graph
	Counters *Counters
	Milieus  map[MilieuKind]*Milieu

	Owners     map[AgentID]*Houseowner
	OwnerOrder []*Houseowner
	Plumbers   []*Plumber
	Advisors   []*EnergyAdvisor
	Internet   *MediaSource
	Magazine   *MediaSource

	Kinds            []heating.Kind // kinds in play
	Targets          []heating.Kind // kinds the scenario promotes
	GlobalInfeasible map[heating.Kind]bool
	Subsidies        subsidy.Catalogue    // every programme, by kind
	Distribution     map[heating.Kind]int // installed systems by kind

	// InsulationList holds the kinds plumbers refuse for poorly insulated
	// houses, unless a kind is exempt or insulation is ignored altogether.
	InsulationList   []heating.Kind
	InsulationExempt map[heating.Kind]bool
	IgnoreInsulation bool

	Tick int

	OwnerRand    *rand.Rand
	PlumberRand  *rand.Rand
	AdvisorRand  *rand.Rand
	SourceRand   *rand.Rand
	ScenarioRand *rand.Rand
	streams      rng.Streams
}

// NewEnv prepares an empty environment for cfg. Targets select the
// kinds the obstacle funnel tracks.
func NewEnv(cfg *config.Config, streams rng.Streams, targets []heating.Kind) (*Env, error) {
	table, err := cfg.HeatingTable()
	if err != nil {
		return nil, err
	}
	milieus, err := LoadMilieus(cfg.Milieus)
	if err != nil {
		return nil, err
	}
	kinds := cfg.Kinds()
	e := &Env{
		Cfg:              cfg,
		Table:            table,
		Graph:            social.NewGraph(),
		Counters:         NewCounters(targets),
		Milieus:          milieus,
		Owners:           make(map[AgentID]*Houseowner),
		Kinds:            kinds,
		Targets:          slices.Clone(targets),
		GlobalInfeasible: make(map[heating.Kind]bool),
		Subsidies:        subsidy.Organize(subsidy.Programmes(cfg.Subsidies), kinds),
		Distribution:     make(map[heating.Kind]int),
		InsulationList:   config.KindsOf(cfg.Plumber.InsulationList),
		InsulationExempt: make(map[heating.Kind]bool),
		OwnerRand:        streams.For(rng.RoleHouseownerRun),
		PlumberRand:      streams.For(rng.RolePlumberRun),
		AdvisorRand:      streams.For(rng.RoleAdvisorRun),
		SourceRand:       streams.For(rng.RoleSources),
		ScenarioRand:     streams.For(rng.RoleScenario),
		streams:          streams,
	}
	magazine, err := heating.ParseKinds(cfg.Sources.Magazine)
	if err != nil {
		return nil, fmt.Errorf("information_source.magazine: %w", err)
	}
	e.Internet = NewMediaSource(heating.SourceInternet, kinds, e)
	e.Magazine = NewMediaSource(heating.SourceMagazine, magazine, e)
	return e, nil
}

// Streams exposes the root streams for components created later.
func (e *Env) Streams() rng.Streams { return e.streams }

// DefaultSite is the reference house intermediaries and campaigns quote for.
func (e *Env) DefaultSite() heating.Site {
	p := e.Cfg.Plumber
	return heating.Site{Area: p.AssumeArea, EnergyDemand: p.AssumeEnergyDemand, HeatLoad: p.AssumeHeatLoad}
}

// Owner looks up a houseowner by ID.
func (e *Env) Owner(id AgentID) *Houseowner {
	return e.Owners[id]
}

// AddOwner registers h.
func (e *Env) AddOwner(h *Houseowner) {
	h.env = e
	e.Owners[h.ID] = h
	e.OwnerOrder = append(e.OwnerOrder, h)
	e.Graph.AddNode(uint64(h.ID))
}

// Source returns the media source of kind s, or nil for personal sources.
func (e *Env) Source(s heating.Source) *MediaSource {
	switch s {
	case heating.SourceInternet:
		return e.Internet
	case heating.SourceMagazine:
		return e.Magazine
	}
	return nil
}

// MarkInfeasible blocks kind k for the whole run and every houseowner.
func (e *Env) MarkInfeasible(k heating.Kind) {
	e.GlobalInfeasible[k] = true
	for _, h := range e.OwnerOrder {
		h.Infeasible[k] = true
	}
}

// RecordInstallation moves one unit of the installed-kind distribution.
func (e *Env) RecordInstallation(from, to heating.Kind) {
	e.Distribution[from]--
	e.Distribution[to]++
}

// generate creates a fresh snapshot of k with lifetime drawn from r.
func (e *Env) generate(k heating.Kind, r *rand.Rand) heating.System {
	return e.Table.Generate(k, r)
}

// generateFor creates and calculates a snapshot of k for site.
func (e *Env) generateFor(k heating.Kind, site heating.Site, r *rand.Rand) heating.System {
	s := e.generate(k, r)
	e.Table.Calculate(&s, site)
	return s
}
