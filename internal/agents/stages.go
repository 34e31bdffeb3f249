package agents

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/talgya/heatsim/internal/economy"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
)

// evaluate is stage 1: the installed system is held against the milieu's
// personal standard.
func (h *Houseowner) evaluate() {
	if !h.spend(h.env.Cfg.DecisionCosts.Evaluate) {
		return
	}
	if h.checkStandard(&h.House.Heating) {
		h.setStage(Idle)
		h.Satisfaction = Satisfied
		h.env.Counters.flow(Stage1, FlowSatisfied)
		return
	}
	h.setStage(Stage2)
	h.Satisfaction = Dissatisfied
}

// checkStandard reports whether s still meets the owner's standard.
func (h *Houseowner) checkStandard(s *heating.System) bool {
	c := h.env.Counters
	std := h.Milieu.Standard()
	remaining := s.Remaining()
	if remaining < std.Lifetime {
		c.flow(Stage1, FlowDissatisfiedAge)
		return false
	}
	canAfford := s.Age >= std.CanAffordAge

	switch h.Milieu.Kind {
	case Leading:
		if !canAfford {
			return true
		}
		for _, k := range h.Known {
			if k.Params[heating.Emissions].Value < s.Params[heating.Emissions].Value {
				c.flow(Stage1, FlowDissatisfiedMilieu)
				return false
			}
		}
	case Mainstream:
		if len(h.NeighbourSystems) == 0 {
			return true
		}
		counts := make(map[heating.Kind]int)
		for _, k := range h.NeighbourSystems {
			counts[k]++
		}
		dominant := 0
		for _, n := range counts {
			dominant = max(dominant, n)
		}
		if counts[s.Kind] < dominant && canAfford {
			c.flow(Stage1, FlowDissatisfiedMilieu)
			return false
		}
	case Traditionals:
		window := s.Availability - h.env.Tick
		if window > 0 && window < std.AvailabilityWindow && remaining < std.AvailabilityLife {
			c.flow(Stage1, FlowDissatisfiedMilieu)
			return false
		}
	}
	return true
}

// getData is the first part of stage 2: one information source is
// consulted.
func (h *Houseowner) getData() {
	switch {
	case h.Aspiration == 0:
		return
	case h.ConsultationOrdered:
		h.Effort = 0
		return
	}

	src := h.chooseSource()
	h.env.Counters.sourceCall(src, h.Milieu.Kind)
	h.LastSource = src

	cost := h.env.Cfg.DecisionCosts.GetData
	if h.Effort < cost {
		h.askNeighbours(h.Effort)
		h.Effort = 0
		return
	}

	switch src {
	case heating.SourceInternet, heating.SourceMagazine:
		h.env.Source(src).search(h, cost)
	case heating.SourcePlumber:
		h.Effort -= cost
		if h.Plumber == nil {
			h.findPlumber()
		}
		h.orderPlumber()
		h.Effort = 0
	case heating.SourceEnergyAdvisor:
		if h.Advisor == nil {
			h.findAdvisor()
		}
		h.orderAdvisor()
		h.Effort = 0
	default:
		h.askNeighbours(h.env.Cfg.Houseowner.NeighbourCoverage)
		h.Effort = 0
	}
}

// chooseSource draws a source from the owner's preferences. With a broken
// system only professionals are asked. A professional source without any
// provider falls back to the other professional, then to the neighbours.
func (h *Houseowner) chooseSource() heating.Source {
	var src heating.Source
	switch {
	case h.SubsidyCurious && len(h.env.Advisors) > 0:
		src = heating.SourceEnergyAdvisor
	case h.House.Heating.Breakdown:
		w := []float64{
			h.SourcePrefs[sourceIndex(heating.SourcePlumber)],
			h.SourcePrefs[sourceIndex(heating.SourceEnergyAdvisor)],
		}
		src = heating.SourcePlumber
		if rng.WeightedIndex(h.rand(), w) == 1 {
			src = heating.SourceEnergyAdvisor
		}
	default:
		src = consultSources[rng.WeightedIndex(h.rand(), h.SourcePrefs)]
	}

	switch {
	case src == heating.SourcePlumber && len(h.env.Plumbers) == 0:
		src = heating.SourceEnergyAdvisor
		if len(h.env.Advisors) == 0 {
			src = heating.SourceNeighbour
		}
	case src == heating.SourceEnergyAdvisor && len(h.env.Advisors) == 0:
		src = heating.SourcePlumber
		if len(h.env.Plumbers) == 0 {
			src = heating.SourceNeighbour
		}
	}
	return src
}

// defineChoice is the second part of stage 2: known systems are filtered
// by feasibility, affordability and risk into the suitable set.
func (h *Houseowner) defineChoice() error {
	c := h.env.Counters
	for _, k := range h.env.Targets {
		if h.known(k) != nil {
			c.obstacle(k, ObstacleKnowledge, h.ID)
		}
	}
	if len(h.Suitable) > 0 && h.ConsultedByAdvisor {
		for _, k := range h.Suitable {
			c.obstacle(k, ObstacleAffordability, h.ID)
			c.obstacle(k, ObstacleRiskiness, h.ID)
		}
		return nil
	}
	if !h.spend(h.env.Cfg.DecisionCosts.DefineChoice) {
		return nil
	}

	cur := &h.House.Heating
	for i := range h.Known {
		opt := &h.Known[i]
		if !opt.Subsidised {
			h.applySubsidies(opt)
		}
		h.calculateAttitude(opt)

		feasible := !h.Infeasible[opt.Kind]
		direct := opt.Price() <= h.Budget
		viaLoan := false
		if !direct {
			if err := h.findLoan(opt, false); err != nil {
				return err
			}
			viaLoan = opt.Loan != nil && economy.Affordable(opt.Price(), h.Budget, opt.Loan)
		}
		var newLoan *economy.Loan
		if viaLoan {
			newLoan = opt.Loan
		}
		delta := economy.RunningDelta(cur.Running(), opt.Running())
		sustainable := economy.Sustainable(h.Income, delta, newLoan, cur.Loan)

		outcome := DropUnsubsidised
		switch {
		case feasible && sustainable && direct:
			h.addSuitable(opt.Kind)
			outcome = TakeUnsubsidised
		case feasible && sustainable && viaLoan:
			h.addSuitable(opt.Kind)
			outcome = TakeUnsubsidisedLoan
		default:
			slog.Debug("option not suitable", "owner", h.ID, "kind", opt.Kind,
				"feasible", feasible, "affordable", direct, "loan", viaLoan, "sustainable", sustainable)
		}
		if opt.Subsidised {
			outcome += TakeSubsidised
		}
		c.dropout(opt.Kind, outcome)
	}
	for _, k := range h.Suitable {
		c.obstacle(k, ObstacleAffordability, h.ID)
	}

	for _, k := range h.Suitable {
		s := h.known(k)
		s.Riskiness = h.calculateRisk(s)
	}
	slices.SortStableFunc(h.Suitable, func(a, b heating.Kind) int {
		return cmp.Compare(h.known(b).Riskiness, h.known(a).Riskiness)
	})
	h.Suitable = slices.DeleteFunc(h.Suitable, func(k heating.Kind) bool {
		return h.known(k).Riskiness > h.RiskTolerance
	})
	for _, k := range h.Suitable {
		c.obstacle(k, ObstacleRiskiness, h.ID)
	}

	switch {
	case len(h.Suitable) > 0:
		return nil
	case cur.Breakdown && h.Recommended != nil:
		return h.fallBackOnRecommendation()
	}
	c.flow(Stage2, FlowNoSuitables)
	h.resetSearch()
	h.setStage(Idle)
	h.Effort = 0
	return nil
}

// fallBackOnRecommendation handles an owner with a broken system and no
// suitable option. An owner who cannot afford the recommendation either
// goes looking for subsidies or settles for the cheapest system it can
// finance.
func (h *Houseowner) fallBackOnRecommendation() error {
	c := h.env.Counters
	rec := h.Recommended
	if !rec.Subsidised {
		h.applySubsidies(rec)
	}
	if h.Budget >= rec.Price() {
		return nil
	}
	_, knowsSubsidies := h.Subsidies[rec.Kind]
	if !rec.Subsidised && !knowsSubsidies && !h.ConsultedByAdvisor {
		h.SubsidyCurious = true
		h.Effort = 0
		h.Aspiration = h.InitialAspiration
		return nil
	}

	c.dropout(rec.Kind, DropSubsidised)
	cheapest := -1
	for i := range h.Known {
		s := &h.Known[i]
		if h.Infeasible[s.Kind] {
			continue
		}
		if !s.Subsidised {
			h.applySubsidies(s)
		}
		if err := h.findLoan(s, true); err != nil {
			return err
		}
		if h.Budget+s.Loan.LoanAmount() < s.Price() {
			continue
		}
		if cheapest < 0 || s.Price() < h.Known[cheapest].Price() {
			cheapest = i
		}
	}
	if cheapest >= 0 {
		r := h.Known[cheapest].Clone()
		h.Recommended = &r
		return nil
	}

	slog.Warn("houseowner cannot afford any system", "owner", h.ID, "budget", h.Budget)
	c.flow(Stage2, FlowNoAffordables)
	h.resetSearch()
	h.Recommended = nil
	h.setStage(Idle)
	h.Effort = 0
	return nil
}

// rated pairs a suitable kind with its integral rating.
type rated struct {
	kind   heating.Kind
	rating float64
}

// compareSystems is the last part of stage 2: the suitable system with the
// best integral rating becomes the desired one.
func (h *Houseowner) compareSystems() error {
	cost := h.env.Cfg.DecisionCosts.Compare
	defer h.recordEvaluation()

	switch {
	case h.Effort < cost:
		h.Effort = 0
		return nil
	case len(h.Suitable) == 0:
		h.Effort -= cost
		if h.Recommended == nil {
			h.env.Counters.flow(Stage2, FlowNoSuitables)
			h.resetSearch()
			h.setStage(Idle)
			h.Effort = 0
			return nil
		}
		d := h.Recommended.Clone()
		h.Desired = &d
		h.setStage(Stage3)
		h.Aspiration = h.InitialAspiration
		h.env.Counters.flow(Stage2, FlowFoundDesired)
		return nil
	}
	h.Effort -= cost

	ratings, err := h.integralRatings()
	if err != nil {
		return err
	}
	slices.SortStableFunc(ratings, func(a, b rated) int { return cmp.Compare(a.rating, b.rating) })
	best := ratings[len(ratings)-1]
	pick := best.kind
	if len(ratings) > 1 {
		second := ratings[len(ratings)-2]
		if second.rating*h.env.Cfg.Compare.TieBreakRatio > best.rating {
			h.Effort = max(h.Effort-cost, 0)
			pick = rng.Choice(h.rand(), []heating.Kind{best.kind, second.kind})
		}
	}
	d := h.known(pick).Clone()
	h.Desired = &d

	cur := &h.House.Heating
	window := cur.Availability - h.env.Tick
	stillAvailable := !(window >= 0 && window <= h.env.Cfg.Triggers.AvailabilityWindow)
	if d.Kind == cur.Kind && !cur.Breakdown && stillAvailable {
		h.Desired = nil
		h.Suitable = nil
		h.setStage(Idle)
		h.Effort = 0
		h.resetSearch()
		h.env.Counters.flow(Stage2, FlowCurrentBest)
		return nil
	}
	h.setStage(Stage3)
	h.resetSearch()
	h.env.Counters.flow(Stage2, FlowFoundDesired)
	return nil
}

func (h *Houseowner) recordEvaluation() {
	if h.Desired != nil {
		h.env.Counters.obstacle(h.Desired.Kind, ObstacleEvaluation, h.ID)
	}
}

// integralRatings weighs attitude, social norm and perceived control of
// every suitable system.
func (h *Houseowner) integralRatings() ([]rated, error) {
	w := []float64{h.Weights.Attitude, h.Weights.SocialNorm, h.Weights.Control}
	normalise(w)
	out := make([]rated, 0, len(h.Suitable))
	for _, k := range h.Suitable {
		s := h.known(k)
		if err := h.calculateSocialNorm(s); err != nil {
			return nil, err
		}
		h.calculatePBC(s)
		out = append(out, rated{kind: k, rating: w[0]*s.Rating + w[1]*s.SocialNorm + w[2]*s.PBC})
	}
	return out, nil
}

// install is stage 3: the owner finds a qualified plumber and orders the
// job, or backs out when the desired system turns out to be out of reach.
func (h *Houseowner) install() error {
	c := h.env.Counters
	cfg := h.env.Cfg
	cur := &h.House.Heating

	switch {
	case h.Desired != nil && cur.Kind == h.Desired.Kind && cur.Age == 0:
		h.setStage(Stage4)
		h.Waiting = 0
		c.flow(Stage3, FlowInstalled)
		for _, o := range []Obstacle{ObstacleFeasibility, ObstacleAffordability, ObstacleRiskiness, ObstacleEvaluation, ObstacleKnowledge} {
			c.obstacle(cur.Kind, o, h.ID)
		}
		return nil
	case h.ConsultationOrdered || h.InstallationOrdered:
		h.Effort = 0
		h.Waiting++
		return nil
	case h.Effort < cfg.DecisionCosts.Install:
		h.Effort = 0
		return nil
	case h.Desired == nil:
		return invariantf("houseowner %d in %s without a desired system", h.ID, h.Stage)
	}
	h.Effort -= cfg.DecisionCosts.Install

	if h.Infeasible[h.Desired.Kind] {
		h.Waiting = 0
		h.dropSuitable(h.Desired.Kind)
		h.Desired = nil
		h.retreat(FlowInfeasibleToStage2, FlowInfeasibleToDrop)
		return nil
	}

	if h.Plumber == nil {
		if err := h.findQualifiedPlumber(); err != nil {
			return err
		}
		if h.Plumber == nil {
			h.Desired = nil
			h.retreat(FlowNoPlumberToStage2, FlowNoPlumberToDrop)
			return nil
		}
	}

	wait := h.Plumber.EstimateWait(h.env.Tick) + h.Plumber.Installation.Duration + h.Desired.InstallationTime
	if wait > cfg.Houseowner.MaxWaitingTime && h.Recommended == nil {
		h.Waiting = 0
		h.dropSuitable(h.Desired.Kind)
		h.Desired = nil
		h.retreat(FlowLongWaitToStage2, FlowLongWaitToDrop)
		h.Effort = 0
		return nil
	}

	if !economy.Affordable(h.Desired.Price(), h.Budget, h.Desired.Loan) {
		if err := h.findLoan(h.Desired, true); err != nil {
			return err
		}
		h.Effort = 0
		if h.Desired.Loan == nil {
			c.flow(Stage3, FlowCannotAffordFinal)
			h.setStage(Idle)
			h.resetSearch()
		}
		return nil
	}

	if h.ConsultedByAdvisor {
		if err := h.orderInstallation(); err != nil {
			return err
		}
		h.ConsultedByAdvisor = false
	} else {
		h.orderPlumber()
	}
	h.Effort = 0
	return nil
}

// retreat sends the owner back to stage 2 while suitable options remain
// and drops the decision otherwise.
func (h *Houseowner) retreat(toStage2, toDrop string) {
	if len(h.Suitable) > 0 {
		h.env.Counters.flow(Stage3, toStage2)
		h.setStage(Stage2)
		h.Aspiration = 0
		h.Overload = h.InitialOverload
		return
	}
	h.env.Counters.flow(Stage3, toDrop)
	h.setStage(Idle)
	h.resetSearch()
}

// calculateSatisfaction is stage 4: expectations are replaced by the
// installed system and compared with the runner-up.
func (h *Houseowner) calculateSatisfaction() {
	if !h.spend(h.env.Cfg.DecisionCosts.Satisfaction) {
		return
	}
	c := h.env.Counters
	cur := &h.House.Heating
	kind := cur.Kind
	if h.Desired != nil {
		kind = h.Desired.Kind
	}

	expected := 0.0
	if i := heating.Index(h.Known, kind); i >= 0 {
		expected = h.Known[i].Rating
		h.Known = slices.Delete(h.Known, i, i+1)
	}
	h.Known = append(h.Known, cur.Clone())
	h.rateAll()
	actual := cur.Rating
	h.SubsidyCurious = false
	if ratio, ok := h.optimality(); ok {
		h.Suboptimality = &ratio
		c.optimality(ratio)
	}

	ratings := make([]float64, 0, len(h.Suitable))
	for _, k := range h.Suitable {
		if k == kind {
			ratings = append(ratings, expected)
		} else if s := h.known(k); s != nil {
			ratings = append(ratings, s.Rating)
		}
	}
	slices.Sort(ratings)

	if len(ratings) > 1 && ratings[len(ratings)-2] > actual {
		h.Satisfaction = Dissatisfied
		c.flow(Stage4, FlowDissatisfied)
	} else {
		h.Satisfaction = Satisfied
		c.flow(Stage4, FlowSatisfied)
		if adoptive, err := heating.ParseKind(h.env.Cfg.Triggers.AdoptiveTrigger); err == nil && adoptive == cur.Kind {
			h.shareDecision(h.Effort)
		}
	}
	h.setStage(Idle)
	h.Effort = 0

	h.Suitable = nil
	h.Desired = nil
	h.Recommended = nil
	clear(h.Visited)
	clear(h.Unqualified)
	clear(h.Infeasible)
	for k := range h.env.GlobalInfeasible {
		h.Infeasible[k] = true
	}
	h.ConsultedByAdvisor = false
}

// optimality compares the rating of the installed system with the best
// rating among the systems h knows. It is undefined when h does not know
// its own system or the best rating is zero.
func (h *Houseowner) optimality() (float64, bool) {
	cur := h.known(h.House.Heating.Kind)
	if cur == nil {
		return 0, false
	}
	best := cur.Rating
	for _, s := range h.Known {
		best = max(best, s.Rating)
	}
	if best == 0 {
		return 0, false
	}
	return cur.Rating / best, true
}
