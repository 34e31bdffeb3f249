package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/service"
)

func job(h *Houseowner) *service.Job[*Houseowner] {
	return &service.Job[*Houseowner]{ID: "test", Customer: h}
}

// wealthy gives h more than any system costs.
func wealthy(h *Houseowner) {
	h.Budget = 1e7
	h.Income = 1e4
	h.House.Heating.Loan = nil
}

// ownerWithout returns the first owner whose installed kind is not k.
func ownerWithout(t *testing.T, e *Env, k heating.Kind) *Houseowner {
	t.Helper()
	for _, h := range e.OwnerOrder {
		if h.House.Heating.Kind != k {
			return h
		}
	}
	t.Fatalf("every owner has %s", k)
	return nil
}

func TestPlumberRepertoire(t *testing.T) {
	e := newTestEnv(t, nil)
	require.Len(t, e.Plumbers, 3)
	p := e.Plumbers[0]

	for _, k := range []heating.Kind{heating.Oil, heating.Gas, heating.Electricity, heating.Pellet, heating.HeatPump} {
		assert.True(t, p.Knows(k), k.String())
	}
	assert.False(t, p.Knows(heating.HeatPumpBrine))
	_, dup := p.duplicateKind()
	assert.False(t, dup)
	for _, s := range p.Known {
		assert.GreaterOrEqual(t, s.Rating, 0.0)
		assert.Less(t, s.Rating, 1.0)
	}
}

func TestPlumberBriefsUndecidedOwner(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := e.OwnerOrder[0]
	h.House.EnergyDemand = 0
	h.Desired = nil
	h.ConsultationOrdered = true

	require.NoError(t, p.consult(job(h)))

	assert.False(t, h.ConsultationOrdered)
	assert.Zero(t, h.Aspiration)
	for _, s := range p.Known {
		k := h.known(s.Kind)
		require.NotNil(t, k, s.Kind.String())
		assert.Contains(t, k.Opinions, uint64(p.ID))
	}
	require.NotNil(t, h.Recommended)
	assert.Equal(t, heating.SourcePlumber, h.Recommended.Source)
	assert.True(t, p.Knows(h.Recommended.Kind))
}

func TestPlumberUnqualifiedForDesiredKind(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := e.OwnerOrder[0]
	d := e.generateFor(heating.HeatPumpBrine, h.House.Site(), e.OwnerRand)
	h.Desired = &d
	h.Plumber = p
	h.ConsultationOrdered = true

	require.NoError(t, p.consult(job(h)))

	assert.Nil(t, h.Plumber)
	assert.True(t, h.Unqualified[p.ID])
	assert.False(t, h.ConsultationOrdered)
	assert.False(t, h.InstallationOrdered)
}

func TestPlumberRefusesUninsulatedHouse(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := ownerWithout(t, e, heating.HeatPump)
	h.House.EnergyDemand = e.Cfg.Plumber.InsulationThreshold + 50
	d := e.generateFor(heating.HeatPump, h.House.Site(), e.OwnerRand)
	h.Desired = &d

	require.NoError(t, p.consult(job(h)))

	assert.True(t, h.Infeasible[heating.HeatPump])
	assert.False(t, p.Installation.Has(h))
}

func TestPlumberInstallsRegardlessOfInsulationWhenExempt(t *testing.T) {
	e := newTestEnv(t, nil)
	e.InsulationExempt[heating.HeatPump] = true
	p := e.Plumbers[0]
	h := ownerWithout(t, e, heating.HeatPump)
	wealthy(h)
	h.House.EnergyDemand = e.Cfg.Plumber.InsulationThreshold + 50
	d := e.generateFor(heating.HeatPump, h.House.Site(), e.OwnerRand)
	h.Desired = &d

	require.NoError(t, p.consult(job(h)))

	assert.False(t, h.Infeasible[heating.HeatPump])
	assert.True(t, p.Installation.Has(h))
	assert.True(t, h.InstallationOrdered)
}

func TestPlumberQueuesAffordableInstallation(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := ownerWithout(t, e, heating.Pellet)
	wealthy(h)
	d := e.generateFor(heating.Pellet, h.House.Site(), e.OwnerRand)
	h.Desired = &d
	h.ConsultationOrdered = true

	require.NoError(t, p.consult(job(h)))

	assert.True(t, p.Installation.Has(h))
	assert.True(t, h.InstallationOrdered)
	assert.False(t, h.ConsultationOrdered)
	assert.Zero(t, h.Desired.Params[heating.Price].Uncertainty)
}

func TestPlumberSendsBackUnaffordableOwner(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := ownerWithout(t, e, heating.Pellet)
	h.Budget = 0
	h.Income = 0
	d := e.generateFor(heating.Pellet, h.House.Site(), e.OwnerRand)
	d.Params[heating.Price].Value = 0
	h.Desired = &d
	h.Suitable = []heating.Kind{heating.Pellet, heating.Gas}
	h.setStage(Stage3)

	require.NoError(t, p.consult(job(h)))

	assert.False(t, p.Installation.Has(h))
	assert.Nil(t, h.Desired)
	assert.Nil(t, h.Suitable)
	assert.Equal(t, Stage2, h.Stage)
	assert.Equal(t, 1, e.Counters.StageFlows[Stage3][FlowConsultedToStage2])
}

func TestPlumberInstallReplacesSystem(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := ownerWithout(t, e, heating.Pellet)
	wealthy(h)
	before := h.House.Heating.Kind
	counts := map[heating.Kind]int{before: e.Distribution[before], heating.Pellet: e.Distribution[heating.Pellet]}

	d := e.generateFor(heating.Pellet, h.House.Site(), e.OwnerRand)
	h.Desired = &d
	h.InstallationOrdered = true
	budget := h.Budget

	require.NoError(t, p.install(job(h)))

	cur := h.House.Heating
	assert.Equal(t, heating.Pellet, cur.Kind)
	assert.Equal(t, heating.SourceOwn, cur.Source)
	assert.Zero(t, cur.Age)
	assert.InDelta(t, d.Price(), cur.Price(), 1e-9)
	assert.InDelta(t, budget-d.Price(), h.Budget, 1e-6)
	assert.False(t, h.InstallationOrdered)
	assert.True(t, h.InstalledOnce)
	assert.Equal(t, 1, e.Counters.Replacements[h.Milieu.Kind])
	assert.Equal(t, 1, e.Counters.Changes[h.Milieu.Kind])
	assert.Equal(t, counts[before]-1, e.Distribution[before])
	assert.Equal(t, counts[heating.Pellet]+1, e.Distribution[heating.Pellet])
	assert.Equal(t, heating.Pellet, p.ClientSystems[h.ID])
}

func TestPlumberInstallBeyondBudgetIsInvariant(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := e.OwnerOrder[0]
	h.Budget = 0
	d := e.generateFor(heating.Pellet, h.House.Site(), e.OwnerRand)
	d.Loan = nil
	h.Desired = &d

	err := p.install(job(h))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestPlumberInstallWithoutDesiredIsSkipped(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	h := e.OwnerOrder[0]
	kind := h.House.Heating.Kind
	h.InstallationOrdered = true

	require.NoError(t, p.install(job(h)))
	assert.False(t, h.InstallationOrdered)
	assert.Equal(t, kind, h.House.Heating.Kind)
}

func TestPlumberTraining(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	n := len(p.Known)

	assert.False(t, p.Teach(heating.Oil))
	assert.True(t, p.Teach(heating.HeatPumpBrine))
	assert.True(t, p.Knows(heating.HeatPumpBrine))
	assert.Len(t, p.Known, n+1)

	p.SinceTraining = e.Cfg.Plumber.TrainingInterval + 1
	require.NoError(t, p.Step(context.Background()))
	assert.Zero(t, p.SinceTraining)
	assert.Len(t, p.Known, n+2)
}

func TestPlumberDuplicateKnowledgeIsInvariant(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	p.Known = append(p.Known, p.Known[0].Clone())

	err := p.Step(context.Background())
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestAdvisorConsultation(t *testing.T) {
	e := newTestEnv(t, nil)
	require.Len(t, e.Advisors, 1)
	a := e.Advisors[0]
	h := e.OwnerOrder[0]
	wealthy(h)
	h.House.EnergyDemand = 0
	h.ConsultationOrdered = true
	h.SubsidyCurious = true

	require.NoError(t, a.consult(job(h)))

	for _, k := range e.Kinds {
		s := h.known(k)
		require.NotNil(t, s, k.String())
		assert.Equal(t, heating.SourceEnergyAdvisor, s.Source)
		assert.False(t, s.Subsidised)
		assert.Nil(t, s.Loan)
	}
	require.NotNil(t, h.Recommended)
	assert.Equal(t, heating.SourceEnergyAdvisor, h.Recommended.Source)
	assert.Zero(t, h.Aspiration)
	assert.False(t, h.ConsultationOrdered)
	assert.False(t, h.SubsidyCurious)
	assert.Equal(t, TriggerConsulted, h.ActiveTrigger.Kind)
}

func TestAdvisorRecommendsOnlyFinanceableOffers(t *testing.T) {
	e := newTestEnv(t, nil)
	a := e.Advisors[0]
	h := e.OwnerOrder[0]
	h.Budget = 0
	h.Income = 0
	h.WillTakeLoans = false
	h.Recommended = nil

	require.NoError(t, a.consult(job(h)))

	assert.Nil(t, h.Recommended)
	total := 0
	for _, m := range e.Counters.Dropouts {
		total += m[DropUnsubsidised] + m[DropSubsidised]
	}
	assert.Equal(t, len(a.Known), total)
}

func TestClassifyOffer(t *testing.T) {
	tests := []struct {
		subsidised, affordable, loan bool
		want                         Dropout
	}{
		{false, true, false, TakeUnsubsidised},
		{false, false, true, TakeUnsubsidisedLoan},
		{false, false, false, DropUnsubsidised},
		{true, true, false, TakeSubsidised},
		{true, false, true, TakeSubsidisedLoan},
		{true, false, false, DropSubsidised},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyOffer(tt.subsidised, tt.affordable, tt.loan))
	}
}

func TestEvaluateFavoursCheaperSystems(t *testing.T) {
	cheap := heating.System{Kind: heating.Gas}
	dear := heating.System{Kind: heating.Oil}
	for i := range heating.NumParams {
		cheap.Params[i].Value = 1
		dear.Params[i].Value = 2
	}
	systems := []heating.System{cheap, dear}
	var prefs [heating.NumParams]float64
	for i := range prefs {
		prefs[i] = 1
	}

	evaluate(systems, prefs)

	assert.InDelta(t, 0.5, systems[0].Rating, 1e-9)
	assert.Zero(t, systems[1].Rating)
}

func TestDeskEstimateWaitGrowsWithQueue(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.Plumbers[0]
	empty := p.EstimateWait(e.Tick)
	for _, h := range e.OwnerOrder[:10] {
		p.Consultation.Queue(h, 0)
	}
	assert.Greater(t, p.EstimateWait(e.Tick), empty)
}
