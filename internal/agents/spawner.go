// Population spawning: houses, their installed heating, the houseowners
// living in them, the intermediaries and the influence network.
package agents

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/social"
	"github.com/talgya/heatsim/internal/world"
)

// Spawner creates the initial population and replacement owners.
type Spawner struct {
	env     *Env
	rng     *rand.Rand // owner traits
	heating *rand.Rand
	milieus *rand.Rand
}

// NewSpawner creates a spawner drawing from e's root streams.
func NewSpawner(e *Env) *Spawner {
	st := e.Streams()
	return &Spawner{
		env:     e,
		rng:     st.For(rng.RoleHouseowners),
		heating: st.For(rng.RoleHeating),
		milieus: st.For(rng.RoleMilieus),
	}
}

// Populate fills the environment: houses on the map, one owner per house,
// the advisors and plumbers, the network and the initial meetings.
func (s *Spawner) Populate() error {
	e := s.env
	cfg := e.Cfg
	st := e.Streams()

	hc := cfg.Houses
	e.Map = world.Generate(world.GenConfig{
		Count:          cfg.Run.Houseowners,
		AreaMin:        hc.AreaMin,
		AreaMax:        hc.AreaMax,
		YearMin:        hc.YearMin,
		YearMax:        hc.YearMax,
		NoiseScale:     hc.NoiseScale,
		HeatLoadFactor: hc.HeatLoadFactor,
	}, st.For(rng.RoleHouses), 0)
	houses := e.Map.Houses

	milieus := make([]*Milieu, len(houses))
	for i := range houses {
		milieus[i] = s.drawMilieu()
	}
	if err := s.distributeHeating(houses, milieus); err != nil {
		return err
	}

	nc := cfg.Network
	e.Graph = social.Build(e.Map, social.NetworkConfig{
		Radius:     nc.Radius,
		EdgeProb:   nc.EdgeProb,
		RewireProb: nc.RewireProb,
	}, st.For(rng.RoleNetwork))

	for i, house := range houses {
		s.spawnOwner(AgentID(house.ID), house, milieus[i])
	}

	start := intermediaryStart(len(houses))
	for i := range cfg.Run.Advisors {
		e.Advisors = append(e.Advisors, NewEnergyAdvisor(AgentID(start+uint64(i)), e))
	}
	for i := range cfg.Run.Plumbers {
		e.Plumbers = append(e.Plumbers, NewPlumber(AgentID(2*start+uint64(i)), e))
	}

	e.InitialMeetings()
	slog.Info("population spawned",
		"houseowners", len(e.OwnerOrder),
		"plumbers", len(e.Plumbers),
		"advisors", len(e.Advisors),
		"edges", e.Graph.EdgeCount(),
	)
	return nil
}

// intermediaryStart is the first intermediary ID: the next power of ten
// clear of the houseowner IDs.
func intermediaryStart(owners int) uint64 {
	if owners < 1 {
		return 10
	}
	exp := math.Round(math.Log10(float64(owners))) + 1
	return uint64(math.Pow(10, exp))
}

func (s *Spawner) drawMilieu() *Milieu {
	ms := sortedMilieus(s.env.Milieus)
	shares := make([]float64, len(ms))
	for i, m := range ms {
		shares[i] = m.Share
	}
	return ms[rng.WeightedIndex(s.milieus, shares)]
}

// distributeHeating draws one system per house from the configured market
// shares. Heat pumps only go to leading or mainstream households.
func (s *Spawner) distributeHeating(houses []*world.House, milieus []*Milieu) error {
	e := s.env
	kinds, shares, err := s.shares()
	if err != nil {
		return err
	}

	drawn := make(map[heating.Kind][]heating.System)
	for range houses {
		k := kinds[rng.WeightedIndex(s.heating, shares)]
		drawn[k] = append(drawn[k], s.installed(k))
	}

	var eligible, rest []int
	for i, m := range milieus {
		if m.Kind == Leading || m.Kind == Mainstream {
			eligible = append(eligible, i)
		}
	}
	rng.Shuffle(s.heating, eligible)

	assigned := make([]bool, len(houses))
	pumps := drawn[heating.HeatPump]
	n := min(len(pumps), len(eligible))
	for j := range n {
		houses[eligible[j]].Heating = pumps[j]
		assigned[eligible[j]] = true
	}
	overflow := pumps[n:]
	if len(overflow) > 0 {
		slog.Warn("not enough houses for heat pumps", "systems", len(pumps), "houses", len(eligible))
	}

	for i := range houses {
		if !assigned[i] {
			rest = append(rest, i)
		}
	}
	rng.Shuffle(s.heating, rest)
	next := 0
	for _, k := range kinds {
		pool := drawn[k]
		if k == heating.HeatPump {
			pool = overflow
		}
		for _, sys := range pool {
			houses[rest[next]].Heating = sys
			next++
		}
	}

	for _, house := range houses {
		cur := &house.Heating
		e.Table.Calculate(cur, house.Site())
		if cur.Lifetime > 0 {
			cur.Payback = cur.Price() / float64(cur.Lifetime)
		}
		cur.Investment = math.Max(cur.Price()-cur.Payback*float64(cur.Remaining()), 0)
		cur.Source = heating.SourceOwn
		e.Distribution[cur.Kind]++
	}
	return nil
}

// shares returns the configured kinds in table order with their market
// shares, which must sum to one.
func (s *Spawner) shares() ([]heating.Kind, []float64, error) {
	var kinds []heating.Kind
	var shares []float64
	total := 0.0
	for _, k := range heating.AllKinds() {
		sh, ok := s.env.Cfg.Distribution[k.String()]
		if !ok || sh.Share <= 0 {
			continue
		}
		kinds = append(kinds, k)
		shares = append(shares, sh.Share)
		total += sh.Share
	}
	if math.Abs(total-1) > 1e-6 {
		return nil, nil, invariantf("heating distribution sums to %.6f, want 1", total)
	}
	return kinds, shares, nil
}

// installed generates a system of kind k as found at the start of the run.
// Its age follows from a clipped normal installation year, wrapped into
// its lifetime.
func (s *Spawner) installed(k heating.Kind) heating.System {
	e := s.env
	sys := e.generate(k, s.heating)
	share := e.Cfg.Distribution[k.String()]
	year := math.Round(rng.TruncNormal(s.heating, share.YearMean, share.YearSD, float64(share.YearMin), float64(share.YearMax)))
	sys.Age = max(e.Cfg.Run.StartYear-int(year), 0) * 52
	if sys.Lifetime > 0 {
		sys.Age %= sys.Lifetime
	}
	return sys
}

// spawnOwner draws the traits of a new owner of house and registers it.
func (s *Spawner) spawnOwner(id AgentID, house *world.House, m *Milieu) *Houseowner {
	e := s.env
	hc := e.Cfg.Houseowner
	r := s.rng

	h := NewHouseowner(id, house, m)
	e.AddOwner(h)
	h.InitialEffort = m.Config.CognitiveResource
	h.Effort = h.InitialEffort
	h.Income = math.Ceil(rng.TruncNormal(r, m.Config.IncomeMean, m.Config.IncomeStd, hc.IncomeLower, hc.IncomeUpper))
	h.Budget = h.Income * hc.BudgetLimit
	h.RiskTolerance = s.riskTolerance(m)
	h.UncertaintyFactor = m.Config.UncertaintyFactor
	h.Prefs = drawHeatingPreferences(r, m)
	h.SourcePrefs = drawSourcePreferences(r, m)
	h.Weights = drawTPBWeights(r, m, hc)
	h.WillTakeLoans = rng.Chance(r, hc.LoanTakingProbability)
	h.InitialAspiration = hc.Aspiration
	h.InitialOverload = hc.Overload
	h.resetSearch()
	for k := range e.GlobalInfeasible {
		h.Infeasible[k] = true
	}
	h.Known = []heating.System{house.Heating.Clone()}
	h.rateAll()
	return h
}

// riskTolerance is the milieu value, or a Beta draw around it.
func (s *Spawner) riskTolerance(m *Milieu) float64 {
	hc := s.env.Cfg.Houseowner
	mean := math.Max(0, math.Min(1, m.Config.RiskTolerance))
	if !hc.RandomRiskTolerance || mean == 0 || mean == 1 {
		return mean
	}
	return math.Round(rng.BetaFromMoments(s.rng, mean, hc.RiskToleranceStd)*100) / 100
}

// Successor creates the next owner of old's house: a fresh household from
// a random milieu that takes over old's place in the network. Owners with
// a pending order are never replaced, so no job refers to a stale owner.
func (s *Spawner) Successor(old *Houseowner) (*Houseowner, error) {
	e := s.env
	if old.ConsultationOrdered || old.InstallationOrdered {
		return nil, fmt.Errorf("houseowner %d has a pending order", old.ID)
	}
	ms := sortedMilieus(e.Milieus)
	m := rng.Choice(s.milieus, ms)

	i := slices.Index(e.OwnerOrder, old)
	if i < 0 {
		return nil, fmt.Errorf("houseowner %d is not registered", old.ID)
	}
	delete(e.Owners, old.ID)
	e.OwnerOrder = slices.Delete(e.OwnerOrder, i, i+1)

	h := s.spawnOwner(old.ID, old.House, m)
	// spawnOwner appended; move the successor into its predecessor's slot.
	e.OwnerOrder = slices.Insert(e.OwnerOrder[:len(e.OwnerOrder)-1], i, h)
	for _, p := range e.owners(e.Graph.Predecessors(uint64(h.ID))) {
		p.shareSystem(h)
		p.shareSatisfaction(h)
	}
	h.ActiveTrigger = NewTrigger(TriggerOwnerChange)
	return h, nil
}
