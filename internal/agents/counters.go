package agents

import (
	"maps"
	"strconv"

	"github.com/talgya/heatsim/internal/heating"
)

// Stage-flow outcomes, grouped by the stage they leave.
const (
	FlowSatisfied             = "Satisfied"
	FlowDissatisfiedAge       = "Dissatisfied_age"
	FlowDissatisfiedMilieu    = "Dissatisfied_milieu"
	FlowDissatisfiedBreakdown = "Dissatisfied_breakdown"

	FlowOverloaded    = "Overloaded"
	FlowNoAffordables = "No_affordables"
	FlowNoSuitables   = "No_suitables"
	FlowCurrentBest   = "Current_HS_best"
	FlowFoundDesired  = "Found_desired"

	FlowInfeasibleToStage2 = "Desired_infeasible_to_stage_2"
	FlowInfeasibleToDrop   = "Desired_infeasible_to_drop"
	FlowNoPlumberToStage2  = "No_plumber_found_to_stage_2"
	FlowNoPlumberToDrop    = "No_plumber_found_to_drop"
	FlowLongWaitToStage2   = "Long_waiting_time_to_stage_2"
	FlowLongWaitToDrop     = "Long_waiting_time_to_drop"
	FlowConsultedToStage2  = "Plumber_consulted_to_stage_2"
	FlowConsultedToDrop    = "Plumber_consulted_to_drop"
	FlowCannotAffordFinal  = "Cannot_afford_final"
	FlowInstalled          = "Installed"
	FlowDissatisfied       = "Dissatisfied"
)

// Dropout classifies how a system fared in the suitability filter.
type Dropout uint8

const (
	TakeUnsubsidised Dropout = iota
	TakeUnsubsidisedLoan
	DropUnsubsidised
	TakeSubsidised
	TakeSubsidisedLoan
	DropSubsidised
	numDropouts
)

var dropoutNames = [numDropouts]string{
	"Take_Unsubsidised", "Take_Unsubsidised+Loan", "Drop_Unsubsidised",
	"Take_Subsidised", "Take_Subsidised+Loan", "Drop_Subsidised",
}

func (d Dropout) String() string { return dropoutNames[d] }

// Obstacle is one step of the adoption funnel for a target system.
type Obstacle uint8

const (
	ObstacleTriggered Obstacle = iota
	ObstacleDeciding
	ObstacleKnowledge
	ObstacleAffordability
	ObstacleRiskiness
	ObstacleEvaluation
	ObstacleFeasibility
	numObstacles
)

var obstacleNames = [numObstacles]string{
	"Triggered", "Deciding", "Knowledge", "Affordability", "Riskiness", "Evaluation", "Feasibility",
}

func (o Obstacle) String() string { return obstacleNames[o] }

// Effort is spending that is not paid from the houseowner's budget.
type Effort struct {
	Subsidies float64 `json:"subsidies"`
	Loans     float64 `json:"loans"`
	Cognitive float64 `json:"cognitive"`
}

// Optimality sums how close evaluated decisions came to the best system
// the owner knew of afterwards.
type Optimality struct {
	Decisions int     `json:"decisions"`
	Optimal   int     `json:"optimal"` // the installed system rated best
	Sum       float64 `json:"sum"`
}

// Mean is the average suboptimality ratio, 0 without decisions.
func (o Optimality) Mean() float64 {
	if o.Decisions == 0 {
		return 0
	}
	return o.Sum / float64(o.Decisions)
}

// Counters aggregates everything the model reports over a run.
type Counters struct {
	StageFlows     map[Stage]map[string]int
	Dropouts       map[heating.Kind]map[Dropout]int
	Obstacles      map[heating.Kind]map[Obstacle]map[AgentID]struct{}
	SourceCalls    map[heating.Source]int
	SourceByMilieu map[MilieuKind]map[heating.Source]int
	TriggerTypes   map[TriggerKind]int
	Replacements   map[MilieuKind]int
	Changes        map[MilieuKind]int
	Effort         Effort
	Spending       float64
	Optimality     Optimality

	// TickTriggers counts triggers that moved an agent this tick.
	TickTriggers int
}

// NewCounters returns empty counters with the funnel prepared for targets.
func NewCounters(targets []heating.Kind) *Counters {
	c := &Counters{
		StageFlows:     make(map[Stage]map[string]int),
		Dropouts:       make(map[heating.Kind]map[Dropout]int),
		Obstacles:      make(map[heating.Kind]map[Obstacle]map[AgentID]struct{}),
		SourceCalls:    make(map[heating.Source]int),
		SourceByMilieu: make(map[MilieuKind]map[heating.Source]int),
		TriggerTypes:   make(map[TriggerKind]int),
		Replacements:   make(map[MilieuKind]int),
		Changes:        make(map[MilieuKind]int),
	}
	for _, s := range []Stage{Stage1, Stage2, Stage3, Stage4} {
		c.StageFlows[s] = make(map[string]int)
	}
	for _, k := range targets {
		c.Obstacles[k] = make(map[Obstacle]map[AgentID]struct{})
		for o := Obstacle(0); o < numObstacles; o++ {
			c.Obstacles[k][o] = make(map[AgentID]struct{})
		}
	}
	return c
}

func (c *Counters) flow(s Stage, outcome string) {
	c.StageFlows[s][outcome]++
}

func (c *Counters) optimality(ratio float64) {
	c.Optimality.Decisions++
	c.Optimality.Sum += ratio
	if ratio >= 1 {
		c.Optimality.Optimal++
	}
}

func (c *Counters) dropout(k heating.Kind, d Dropout) {
	if c.Dropouts[k] == nil {
		c.Dropouts[k] = make(map[Dropout]int)
	}
	c.Dropouts[k][d]++
}

// obstacle records that agent passed o for target k. Kinds that are not
// targets are ignored.
func (c *Counters) obstacle(k heating.Kind, o Obstacle, id AgentID) {
	if m, ok := c.Obstacles[k]; ok {
		m[o][id] = struct{}{}
	}
}

// obstacleAll records o for every target.
func (c *Counters) obstacleAll(o Obstacle, id AgentID) {
	for _, m := range c.Obstacles {
		m[o][id] = struct{}{}
	}
}

func (c *Counters) sourceCall(s heating.Source, m MilieuKind) {
	c.SourceCalls[s]++
	if c.SourceByMilieu[m] == nil {
		c.SourceByMilieu[m] = make(map[heating.Source]int)
	}
	c.SourceByMilieu[m][s]++
}

// ObstacleCounts reduces the funnel sets to counts.
func (c *Counters) ObstacleCounts() map[heating.Kind]map[Obstacle]int {
	out := make(map[heating.Kind]map[Obstacle]int, len(c.Obstacles))
	for k, m := range c.Obstacles {
		out[k] = make(map[Obstacle]int, len(m))
		for o, ids := range m {
			out[k][o] = len(ids)
		}
	}
	return out
}

// FlowTotals flattens stage flows into "Stage_N/Outcome" keys.
func (c *Counters) FlowTotals() map[string]int {
	out := make(map[string]int)
	for s, m := range c.StageFlows {
		for outcome, n := range m {
			out["Stage_"+strconv.Itoa(int(s))+"/"+outcome] = n
		}
	}
	return out
}

// TriggerTotals returns trigger counts keyed by tag.
func (c *Counters) TriggerTotals() map[string]int {
	out := make(map[string]int, len(c.TriggerTypes))
	for k, n := range c.TriggerTypes {
		out[k.String()] = n
	}
	return out
}

// Snapshot returns a deep copy safe to hand to readers.
func (c *Counters) Snapshot() *Counters {
	out := NewCounters(nil)
	for s, m := range c.StageFlows {
		out.StageFlows[s] = maps.Clone(m)
	}
	for k, m := range c.Dropouts {
		out.Dropouts[k] = maps.Clone(m)
	}
	for k, m := range c.Obstacles {
		out.Obstacles[k] = make(map[Obstacle]map[AgentID]struct{}, len(m))
		for o, ids := range m {
			out.Obstacles[k][o] = maps.Clone(ids)
		}
	}
	out.SourceCalls = maps.Clone(c.SourceCalls)
	for m, calls := range c.SourceByMilieu {
		out.SourceByMilieu[m] = maps.Clone(calls)
	}
	out.TriggerTypes = maps.Clone(c.TriggerTypes)
	out.Replacements = maps.Clone(c.Replacements)
	out.Changes = maps.Clone(c.Changes)
	out.Effort = c.Effort
	out.Spending = c.Spending
	out.Optimality = c.Optimality
	out.TickTriggers = c.TickTriggers
	return out
}

// Flat returns every counter as category → key → value with string keys.
// Nested keys are joined with "/".
func (c *Counters) Flat() map[string]map[string]int {
	out := map[string]map[string]int{
		"flows":        c.FlowTotals(),
		"triggers":     c.TriggerTotals(),
		"dropouts":     {},
		"obstacles":    {},
		"sources":      {},
		"replacements": {},
		"changes":      {},
		"optimality": {
			"decisions": c.Optimality.Decisions,
			"optimal":   c.Optimality.Optimal,
		},
	}
	for k, m := range c.Dropouts {
		for d, n := range m {
			out["dropouts"][k.String()+"/"+d.String()] = n
		}
	}
	for k, m := range c.ObstacleCounts() {
		for o, n := range m {
			out["obstacles"][k.String()+"/"+o.String()] = n
		}
	}
	for s, n := range c.SourceCalls {
		out["sources"][s.String()] = n
	}
	for m, calls := range c.SourceByMilieu {
		for s, n := range calls {
			out["sources"][m.String()+"/"+s.String()] = n
		}
	}
	for m, n := range c.Replacements {
		out["replacements"][m.String()] = n
	}
	for m, n := range c.Changes {
		out["changes"][m.String()] = n
	}
	return out
}
