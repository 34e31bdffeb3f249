package agents

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/talgya/heatsim/internal/config"
	"github.com/talgya/heatsim/internal/economy"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/rng"
	"github.com/talgya/heatsim/internal/service"
	"github.com/talgya/heatsim/internal/social"
	"github.com/talgya/heatsim/internal/subsidy"
)

// Plumber consults houseowners and installs their systems. A consultation
// either briefs an owner who is still gathering information or checks and
// prices the system the owner has settled on.
type Plumber struct {
	*service.Desk[*Houseowner]
	expert

	Consultation *service.Service[*Houseowner]
	Installation *service.Service[*Houseowner]

	ClientSystems map[AgentID]heating.Kind
	SinceTraining int
}

// NewPlumber creates a plumber with the configured repertoire, quoted for
// the reference house.
func NewPlumber(id AgentID, e *Env) *Plumber {
	cfg := e.Cfg.Plumber
	var kinds []heating.Kind
	for _, k := range config.KindsOf(cfg.Known) {
		if heatingInPlay(e, k) {
			kinds = append(kinds, k)
		}
	}
	p := &Plumber{
		Desk:          intermediaryDesk(fmt.Sprintf("Plumber_%d", id), cfg.MaxConcurrentJobs, 1),
		expert:        newExpert(id, kinds, intermediaryPrefs(e, Traditionals), e, e.PlumberRand),
		ClientSystems: make(map[AgentID]heating.Kind),
	}
	p.Consultation = p.AddService("Consultation", cfg.ConsDuration, p.consult)
	p.Installation = p.AddService("Installation", cfg.InsDuration, p.install)
	return p
}

// Step deduplicates the queues, then either trains or works one pass.
// Training only happens on a quiet desk.
func (p *Plumber) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k, dup := p.duplicateKind(); dup {
		return invariantf("plumber %d knows %s twice", p.ID, k)
	}
	if n := p.RecordQueues(p.env.Tick); n > 0 {
		slog.Warn("dropped duplicate jobs", "plumber", p.ID, "count", n)
	}
	if p.SinceTraining > p.env.Cfg.Plumber.TrainingInterval && p.ActiveCount() == 0 {
		p.Train()
		p.SinceTraining = 0
		return nil
	}
	p.SinceTraining++
	return p.Work(p.env.Tick + 1)
}

// Train learns one random kind the plumber does not install yet.
func (p *Plumber) Train() {
	var unknown []heating.Kind
	for _, k := range p.env.Kinds {
		if !p.Knows(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return
	}
	p.Teach(rng.Choice(p.env.PlumberRand, unknown))
}

// Teach adds k to the repertoire. It reports false if k was known.
func (p *Plumber) Teach(k heating.Kind) bool {
	if p.Knows(k) {
		return false
	}
	p.learn(k, p.env.PlumberRand)
	p.adoptSubsidies(k)
	p.evaluateAll()
	slog.Debug("plumber trained", "plumber", p.ID, "kind", k)
	return true
}

func (p *Plumber) consult(j *service.Job[*Houseowner]) error {
	h := j.Customer
	if h.Desired == nil {
		p.brief(h)
		return nil
	}
	return p.checkDesired(h)
}

// brief shares the plumber's knowledge with an owner still looking for
// options and recommends the best of them.
func (p *Plumber) brief(h *Houseowner) {
	quotes := p.quotes(h)
	evaluate(quotes, p.Prefs)

	p.shareKnowledge(h, quotes)
	p.shareRating(h, quotes)
	p.recommend(h, quotes)
	if p.env.Cfg.Plumber.ShareSystems {
		p.shareSystems(h)
	}
	h.Aspiration = 0
	h.ConsultationOrdered = false
}

// shareKnowledge pulls h's estimates towards the plumber's quotes and adds
// the kinds h has not heard of.
func (p *Plumber) shareKnowledge(h *Houseowner, quotes []heating.System) {
	for _, q := range quotes {
		if t := h.known(q.Kind); t != nil {
			social.RelativeAgreement(q.Params, &t.Params, 1)
			continue
		}
		cp := q.Clone()
		cp.Opinions = nil
		cp.Loan = nil
		cp.Rating = 0
		cp.Source = heating.SourcePlumber
		h.Known = append(h.Known, cp)
	}
	for k, rules := range p.Subsidies {
		h.Subsidies[k] = slices.Clone(rules)
	}
	h.rateAll()
}

// recommend picks the best rated feasible quote. Kinds that need an
// insulated house are left out for badly insulated ones.
func (p *Plumber) recommend(h *Houseowner, quotes []heating.System) {
	var best *heating.System
	for i := range quotes {
		q := &quotes[i]
		if h.Infeasible[q.Kind] || needsInsulation(h, q.Kind) {
			continue
		}
		if best == nil || q.Rating > best.Rating {
			best = q
		}
	}
	if best == nil {
		return
	}
	r := best.Clone()
	r.Source = heating.SourcePlumber
	h.Recommended = &r
}

// shareSystems tells h which systems the plumber installed for h's
// influencing neighbours.
func (p *Plumber) shareSystems(h *Houseowner) {
	for _, id := range p.env.Graph.Predecessors(uint64(h.ID)) {
		if k, ok := p.ClientSystems[AgentID(id)]; ok {
			h.NeighbourSystems[AgentID(id)] = k
		}
	}
}

// checkDesired verifies the owner's choice on site and either queues the
// installation or sends the owner back.
func (p *Plumber) checkDesired(h *Houseowner) error {
	e := p.env
	d := h.Desired
	if !p.Knows(d.Kind) {
		h.Plumber = nil
		h.ConsultationOrdered = false
		h.Unqualified[p.ID] = true
		return nil
	}
	if needsInsulation(h, d.Kind) && d.Kind != h.House.Heating.Kind &&
		!e.InsulationExempt[d.Kind] && !e.IgnoreInsulation {
		h.Infeasible[d.Kind] = true
		h.ConsultationOrdered = false
		return nil
	}

	quotes := p.quotes(h)
	evaluate(quotes, p.Prefs)
	p.shareRating(h, quotes)
	if d.HeatDelivery {
		p.settle(h, p.affordable(h))
		return nil
	}

	q := quotes[heating.Index(quotes, d.Kind)]
	before := d.Price()
	d.Params[heating.Price] = heating.Estimate{Value: q.Price()}
	d.Params[heating.Opex] = heating.Estimate{Value: q.Params[heating.Opex].Value}
	d.Subsidised = false
	if rules, ok := p.Subsidies[d.Kind]; ok && e.Cfg.Plumber.ApplySubsidies {
		p.applySubsidies(h, d, rules)
	}
	if d.Loan != nil {
		if err := h.findLoan(d, true); err != nil {
			return err
		}
	}

	if d.Price() < before && economy.Affordable(d.Price(), h.Budget, d.Loan) {
		p.queueInstallation(h)
		return nil
	}
	p.settle(h, p.affordable(h))
	return nil
}

// applySubsidies deducts the subsidies the plumber knows for d, rounded up
// to whole euros.
func (p *Plumber) applySubsidies(h *Houseowner, d *heating.System, rules []subsidy.Rule) {
	total := subsidy.Total(d.Price(), rules, h.applicant(), p.env.Cfg.Subsidies)
	if total > 0 {
		d.Subsidised = true
	}
	d.Params[heating.Price].Value -= math.Ceil(total)
	d.Params[heating.Price].Uncertainty = 0
}

// affordable checks the upfront price against budget plus loan, and the
// weekly running-cost change plus instalments against income.
func (p *Plumber) affordable(h *Houseowner) bool {
	d, cur := h.Desired, &h.House.Heating
	delta := economy.RunningDelta(cur.Running(), d.Running())
	return economy.Affordable(d.Price(), h.Budget, d.Loan) &&
		economy.Sustainable(h.Income, delta, d.Loan, cur.Loan)
}

// settle queues the installation when ok and otherwise abandons the
// desired system.
func (p *Plumber) settle(h *Houseowner, ok bool) {
	if ok {
		p.queueInstallation(h)
		return
	}
	c := p.env.Counters
	h.ConsultationOrdered = false
	h.Desired = nil
	h.Aspiration = h.InitialAspiration
	if len(h.Suitable) > 0 {
		h.setStage(Stage2)
		c.flow(Stage3, FlowConsultedToStage2)
	} else {
		h.setStage(Idle)
		c.flow(Stage3, FlowConsultedToDrop)
	}
	h.Suitable = nil
}

func (p *Plumber) queueInstallation(h *Houseowner) {
	p.Installation.Queue(h, h.Desired.InstallationTime)
	h.ConsultationOrdered = false
	h.InstallationOrdered = true
}

func (p *Plumber) install(j *service.Job[*Houseowner]) error {
	h := j.Customer
	c := p.env.Counters
	d := h.Desired
	if d == nil {
		slog.Warn("installation for houseowner without a desired system", "plumber", p.ID, "owner", h.ID)
		h.InstallationOrdered = false
		return nil
	}

	if d.Kind != h.House.Heating.Kind {
		c.Changes[h.Milieu.Kind]++
	}
	p.installSystem(h)
	c.Replacements[h.Milieu.Kind]++

	h.Budget += h.House.Heating.Loan.LoanAmount()
	if h.Budget < d.Price() {
		return invariantf("plumber %d installs %s for houseowner %d: price %.0f above budget %.0f (loan %.0f)",
			p.ID, d.Kind, h.ID, d.Price(), h.Budget, h.House.Heating.Loan.LoanAmount())
	}
	h.Budget -= d.Price()
	c.Spending += d.Price()
	h.InstallationOrdered = false
	h.InstalledOnce = true
	return nil
}

// installSystem replaces h's heating with a new system of the desired kind
// at the agreed price, and books subsidy and loan effort.
func (p *Plumber) installSystem(h *Houseowner) {
	e := p.env
	c := e.Counters
	d := h.Desired
	cur := &h.House.Heating

	s := e.generateFor(d.Kind, h.House.Site(), e.PlumberRand)
	c.Effort.Subsidies += s.Price() - d.Price()
	e.RecordInstallation(cur.Kind, s.Kind)

	s.Params[heating.Price].Value = d.Price()
	s.Investment = s.Price()
	if s.Lifetime > 0 {
		s.Payback = s.Investment / float64(s.Lifetime)
	}
	s.Lifetime = d.Lifetime
	s.Opinions = maps.Clone(d.Opinions)
	s.Rating = d.Rating
	s.SocialNorm = d.SocialNorm
	s.PBC = d.PBC
	s.Subsidised = d.Subsidised
	s.Source = heating.SourceOwn
	if d.Loan != nil {
		l := *d.Loan
		s.Loan = &l
		c.Effort.Loans += l.Amount
	}

	delta := economy.RunningDelta(cur.Running(), s.Running())
	h.Income = math.Max(h.Income-math.Floor(delta), 0)
	h.House.Heating = s
	p.ClientSystems[h.ID] = s.Kind
}

// heatingInPlay reports whether k is one of the run's kinds.
func heatingInPlay(e *Env, k heating.Kind) bool {
	return slices.Contains(e.Kinds, k)
}

// intermediaryPrefs are the mean preferences of milieu m, or neutral ones
// when m is not configured.
func intermediaryPrefs(e *Env, m MilieuKind) [heating.NumParams]float64 {
	if ml, ok := e.Milieus[m]; ok {
		return meanPreferences(ml)
	}
	var out [heating.NumParams]float64
	for i := range out {
		out[i] = 0.5
	}
	return out
}
