package agents

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/service"
	"github.com/talgya/heatsim/internal/subsidy"
)

// EnergyAdvisor gives independent advice: it prices every system for the
// customer's house with all subsidies it knows plus its own bonus, and
// recommends the best one the customer can finance.
type EnergyAdvisor struct {
	*service.Desk[*Houseowner]
	expert

	Consultation *service.Service[*Houseowner]
}

// NewEnergyAdvisor creates an advisor who knows every kind in play.
func NewEnergyAdvisor(id AgentID, e *Env) *EnergyAdvisor {
	cfg := e.Cfg.EnergyAdvisor
	a := &EnergyAdvisor{
		Desk:   intermediaryDesk(fmt.Sprintf("EnergyAdvisor_%d", id), cfg.MaxConcurrentJobs, 0),
		expert: newExpert(id, e.Kinds, intermediaryPrefs(e, Leading), e, e.AdvisorRand),
	}
	a.Consultation = a.AddService("Consultation", cfg.ConsDuration, a.consult)
	return a
}

// Step deduplicates the queue and works one pass.
func (a *EnergyAdvisor) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if k, dup := a.duplicateKind(); dup {
		return invariantf("energy advisor %d knows %s twice", a.ID, k)
	}
	if n := a.RecordQueues(a.env.Tick); n > 0 {
		slog.Warn("dropped duplicate jobs", "advisor", a.ID, "count", n)
	}
	return a.Work(a.env.Tick + 1)
}

func (a *EnergyAdvisor) consult(j *service.Job[*Houseowner]) error {
	h := j.Customer
	c := a.env.Counters

	plain := a.quotes(h)
	offers := heating.CloneAll(plain)
	for i := range offers {
		a.subsidise(h, &offers[i])
	}
	evaluate(offers, a.Prefs)
	slices.SortStableFunc(offers, func(x, y heating.System) int { return cmp.Compare(y.Rating, x.Rating) })

	var financeable []heating.System
	for i := range offers {
		o := &offers[i]
		if h.Infeasible[o.Kind] {
			continue
		}
		if o.Price() > h.Budget {
			if err := h.findLoan(o, false); err != nil {
				return err
			}
		}
		affordable := o.Price() <= h.Budget
		c.dropout(o.Kind, classifyOffer(o.Subsidised, affordable, o.Loan != nil))
		if affordable || o.Loan != nil {
			financeable = append(financeable, o.Clone())
		}
	}

	if len(financeable) > 0 {
		if recs := withoutInsulationNeeds(h, slices.Clone(financeable)); len(recs) > 0 {
			r := recs[0].Clone()
			r.Source = heating.SourceEnergyAdvisor
			h.Recommended = &r
		}
		for _, s := range financeable {
			if rules, ok := a.Subsidies[s.Kind]; ok {
				h.Subsidies[s.Kind] = slices.Clone(rules)
			}
		}
	}

	a.shareKnowledge(h, plain)
	h.Aspiration = 0
	h.ConsultationOrdered = false
	h.SubsidyCurious = false
	if h.Stage == Idle {
		h.ActiveTrigger = NewTrigger(TriggerConsulted)
	}
	return nil
}

// subsidise applies every subsidy the advisor knows for s plus the
// advisor bonus on the full price.
func (a *EnergyAdvisor) subsidise(h *Houseowner, s *heating.System) {
	rules, ok := a.Subsidies[s.Kind]
	if !ok {
		return
	}
	rates := a.env.Cfg.Subsidies
	price := s.Price()
	total := subsidy.Total(price, rules, h.applicant(), rates) + rates.AdvisorBonus*price
	if total > 0 {
		s.Subsidised = true
	}
	s.Params[heating.Price] = heating.Estimate{Value: price - total}
}

// shareKnowledge replaces h's estimates with the advisor's exact quotes
// and adds the kinds h has not heard of.
func (a *EnergyAdvisor) shareKnowledge(h *Houseowner, quotes []heating.System) {
	for _, q := range quotes {
		if t := h.known(q.Kind); t != nil {
			t.Params = q.Params
			t.Subsidised = false
			t.Loan = nil
			t.Source = heating.SourceEnergyAdvisor
			continue
		}
		cp := q.Clone()
		cp.Opinions = nil
		cp.Loan = nil
		cp.Rating = 0
		cp.Source = heating.SourceEnergyAdvisor
		h.Known = append(h.Known, cp)
	}
	h.rateAll()
}

// classifyOffer is the dropout category of one priced option.
func classifyOffer(subsidised, affordable, loan bool) Dropout {
	d := DropUnsubsidised
	switch {
	case affordable:
		d = TakeUnsubsidised
	case loan:
		d = TakeUnsubsidisedLoan
	}
	if subsidised {
		d += TakeSubsidised
	}
	return d
}
