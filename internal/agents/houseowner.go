package agents

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/subsidy"
	"github.com/talgya/heatsim/internal/world"
)

// Opinion is what a neighbour reported about the system it owns.
type Opinion struct {
	Kind         heating.Kind
	Satisfaction Satisfaction
}

// Houseowner decides when and how to replace the heating system of its
// house. Its decision runs through four stages, gated by the effort left in
// the current tick.
type Houseowner struct {
	Base
	env *Env

	House  *world.House
	Milieu *Milieu

	Prefs             [heating.NumParams]float64
	SourcePrefs       []float64 // in consultSources order
	Weights           TPBWeights
	RiskTolerance     float64
	UncertaintyFactor float64
	WillTakeLoans     bool

	Known       []heating.System
	Suitable    []heating.Kind // candidates after the affordability and risk filters
	Desired     *heating.System
	Recommended *heating.System

	Budget float64
	Income float64 // weekly savings

	Aspiration, InitialAspiration int
	Overload, InitialOverload     int

	Plumber *Plumber
	Advisor *EnergyAdvisor

	ConsultationOrdered bool
	InstallationOrdered bool
	ConsultedByAdvisor  bool
	SubsidyCurious      bool
	InstalledOnce       bool

	Infeasible  map[heating.Kind]bool
	Visited     map[AgentID]bool
	Unqualified map[AgentID]bool
	Subsidies   subsidy.Catalogue

	NeighbourSystems      map[AgentID]heating.Kind
	NeighbourSatisfaction map[AgentID]Opinion

	StageHistory string
	Waiting      int
	LastTrigger  TriggerKind
	LastSource   heating.Source

	// Suboptimality is the installed system's rating over the best rating
	// h knew of when it last judged a decision. Nil until that is defined.
	Suboptimality *float64
}

// NewHouseowner returns an idle, satisfied owner of house with empty
// knowledge. The spawner fills in the drawn traits.
func NewHouseowner(id AgentID, house *world.House, m *Milieu) *Houseowner {
	return &Houseowner{
		Base:                  Base{ID: id, Satisfaction: Satisfied},
		House:                 house,
		Milieu:                m,
		Infeasible:            make(map[heating.Kind]bool),
		Visited:               make(map[AgentID]bool),
		Unqualified:           make(map[AgentID]bool),
		Subsidies:             make(subsidy.Catalogue),
		NeighbourSystems:      make(map[AgentID]heating.Kind),
		NeighbourSatisfaction: make(map[AgentID]Opinion),
	}
}

// CustomerID implements service.Customer.
func (h *Houseowner) CustomerID() uint64 { return uint64(h.ID) }

func (h *Houseowner) rand() *rand.Rand { return h.env.OwnerRand }

// Step runs one tick of the houseowner: budget, house inspection, trigger
// handling and then either the decision loop or an idle social contact.
func (h *Houseowner) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.StageHistory = ""
	h.Effort = h.InitialEffort
	h.manageBudget()
	h.investigateHouse()
	h.triggerCheck()

	t := h.ActiveTrigger
	t.Impact(h)
	h.LastTrigger = t.Kind
	if t.Kind != TriggerNone {
		h.env.Counters.obstacleAll(ObstacleTriggered, h.ID)
	}
	h.ActiveTrigger = NewTrigger(TriggerNone)

	if h.Stage != Idle {
		if err := h.decide(); err != nil {
			return err
		}
	} else {
		h.StageHistory += "0"
		h.Waiting = 0
		h.resetSearch()
		if rng.Chance(h.rand(), h.env.Cfg.Houseowner.MeetingProb) {
			h.meetNeighbour()
		}
	}

	h.House.Heating.Age++
	if !h.ValidPosition() {
		return invariantf("houseowner %d at %s with breakpoint %s", h.ID, h.Stage, h.Breakpoint)
	}
	return nil
}

// decide loops through the stage handlers until the agent is idle or out
// of effort.
func (h *Houseowner) decide() error {
	c := h.env.Counters
	start := h.Effort
loop:
	for h.Effort > 0 && h.Stage != Idle {
		switch h.Breakpoint {
		case BreakNone:
			h.StageHistory += "1"
			h.evaluate()
			if h.Satisfaction == Satisfied {
				break loop
			}
		case Goal:
			c.obstacleAll(ObstacleDeciding, h.ID)
			h.StageHistory += "2"
			h.getData()
			if h.Effort == 0 {
				break loop
			}
			if err := h.defineChoice(); err != nil {
				return err
			}
			if h.Effort == 0 {
				break loop
			}
			if err := h.compareSystems(); err != nil {
				return err
			}
		case Behaviour:
			c.obstacleAll(ObstacleDeciding, h.ID)
			h.StageHistory += "3"
			if err := h.install(); err != nil {
				return err
			}
		case Implementation:
			c.obstacleAll(ObstacleDeciding, h.ID)
			h.StageHistory += "4"
			h.calculateSatisfaction()
		}
	}
	c.Effort.Cognitive += float64(start - h.Effort)
	return nil
}

// resetSearch restores the information-search thresholds.
func (h *Houseowner) resetSearch() {
	h.Aspiration = h.InitialAspiration
	h.Overload = h.InitialOverload
}

// manageBudget services the loan of the installed system and saves this
// week's income, capped at BudgetLimit weeks of income.
func (h *Houseowner) manageBudget() {
	cur := &h.House.Heating
	if cur.Loan != nil {
		payment := math.Floor(cur.Loan.WeeklyPayment())
		if h.Income-payment < 0 {
			slog.Debug("indebted houseowner saves nothing", "owner", h.ID, "deficit", h.Income-payment)
		}
		cur.Loan.TotalRepayment -= payment
		h.Budget -= payment
		if cur.Loan.TotalRepayment <= 0 {
			cur.Loan = nil
		}
	}
	if h.Income > 0 {
		h.Budget += h.Income
	}
	h.Budget = math.Ceil(math.Min(h.Budget, h.Income*h.env.Cfg.Houseowner.BudgetLimit))
	if h.Budget < 0 {
		slog.Debug("negative refurbishment budget", "owner", h.ID, "budget", h.Budget)
	}
}

// investigateHouse makes sure the installed kind is known and ages the
// investment.
func (h *Houseowner) investigateHouse() {
	cur := &h.House.Heating
	if heating.Index(h.Known, cur.Kind) < 0 {
		s := cur.Clone()
		s.Breakdown = false
		h.Known = append(h.Known, s)
	}
	cur.CheckPayback()
	cur.CheckBreakdown()
}

// triggerCheck raises internal triggers for an idle owner.
func (h *Houseowner) triggerCheck() {
	if h.Stage != Idle {
		return
	}
	cur := &h.House.Heating
	tc := h.env.Cfg.Triggers
	window := cur.Availability - h.env.Tick
	switch {
	case cur.Breakdown:
		h.ActiveTrigger = NewTrigger(TriggerBreakdown)
		h.env.Counters.flow(Stage1, FlowDissatisfiedBreakdown)
	case window > 0 && window < tc.AvailabilityWindow && cur.Remaining() < tc.AvailabilityLife:
		h.ActiveTrigger = NewTrigger(TriggerAvailability)
	case tc.LifetimeWarning > 0 && cur.Remaining() <= tc.LifetimeWarning && h.ActiveTrigger.Kind == TriggerNone:
		h.ActiveTrigger = NewTrigger(TriggerLifetime)
	}
}

// known returns the known snapshot of kind k, or nil. The pointer is only
// valid until Known is next appended to.
func (h *Houseowner) known(k heating.Kind) *heating.System {
	if i := heating.Index(h.Known, k); i >= 0 {
		return &h.Known[i]
	}
	return nil
}

func (h *Houseowner) isSuitable(k heating.Kind) bool {
	return slices.Contains(h.Suitable, k)
}

func (h *Houseowner) addSuitable(k heating.Kind) {
	if !h.isSuitable(k) {
		h.Suitable = append(h.Suitable, k)
	}
}

func (h *Houseowner) dropSuitable(k heating.Kind) {
	h.Suitable = slices.DeleteFunc(h.Suitable, func(s heating.Kind) bool { return s == k })
}

// rateAll refreshes the attitude of every known system and mirrors the
// installed kind's rating onto the installed system.
func (h *Houseowner) rateAll() {
	cur := &h.House.Heating
	for i := range h.Known {
		h.calculateAttitude(&h.Known[i])
		if h.Known[i].Kind == cur.Kind {
			cur.Rating = h.Known[i].Rating
		}
	}
}

// allInfeasible reports whether every kind in ks is blocked for h.
func (h *Houseowner) allInfeasible(ks []heating.Kind) bool {
	for _, k := range ks {
		if !h.Infeasible[k] {
			return false
		}
	}
	return true
}

// findPlumber picks any plumber.
func (h *Houseowner) findPlumber() {
	if len(h.env.Plumbers) > 0 {
		h.Plumber = rng.Choice(h.rand(), h.env.Plumbers)
	}
}

// findQualifiedPlumber picks a plumber who knows the desired kind. Owners
// outside the leading milieu give up after MaxUnqualifiedPlumbers misses;
// without any candidate the desired kind becomes infeasible.
func (h *Houseowner) findQualifiedPlumber() error {
	if h.Desired == nil {
		return invariantf("houseowner %d searched a plumber without a desired system", h.ID)
	}
	limit := h.env.Cfg.Houseowner.MaxUnqualifiedPlumbers
	var qualified []*Plumber
	misses := 0
	for _, p := range h.env.Plumbers {
		if h.Unqualified[p.ID] {
			continue
		}
		if p.Knows(h.Desired.Kind) {
			qualified = append(qualified, p)
			continue
		}
		misses++
		if h.Milieu.Kind != Leading && misses == limit {
			break
		}
	}
	if len(qualified) == 0 {
		h.Infeasible[h.Desired.Kind] = true
		return nil
	}
	h.Plumber = rng.Choice(h.rand(), qualified)
	return nil
}

func (h *Houseowner) findAdvisor() {
	if len(h.env.Advisors) > 0 {
		h.Advisor = rng.Choice(h.rand(), h.env.Advisors)
	}
}

// orderPlumber books a consultation with the assigned plumber.
func (h *Houseowner) orderPlumber() {
	h.Plumber.Consultation.Queue(h, 0)
	h.ConsultationOrdered = true
}

// orderAdvisor books a consultation with the assigned energy advisor.
func (h *Houseowner) orderAdvisor() {
	h.Advisor.Consultation.Queue(h, 0)
	h.ConsultedByAdvisor = true
	h.ConsultationOrdered = true
}

// orderInstallation skips the plumber consultation for owners an energy
// advisor has already briefed.
func (h *Houseowner) orderInstallation() error {
	if h.Plumber != nil && !h.Plumber.Knows(h.Desired.Kind) {
		h.Unqualified[h.Plumber.ID] = true
		h.Plumber = nil
		return nil
	}
	if h.Plumber == nil {
		if err := h.findQualifiedPlumber(); err != nil {
			return err
		}
		if h.Plumber == nil {
			return nil
		}
	}
	h.Plumber.Installation.Queue(h, h.Desired.InstallationTime)
	h.InstallationOrdered = true
	return nil
}
