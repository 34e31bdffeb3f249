package engine

import (
	"slices"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/service"
)

// Snapshot is the read-only state published after each tick.
type Snapshot struct {
	Tick         int                    `json:"tick"`
	Year         int                    `json:"year"`
	Stages       map[string]int         `json:"stages"`
	Distribution map[string]int         `json:"distribution"`
	Counters     *agents.Counters       `json:"-"`
	Agents       []AgentRow             `json:"-"`
	Jobs         []service.Completion   `json:"-"` // finished during this tick
	Queues       []service.QueueLength  `json:"-"`
	Backlog      map[string]DeskBacklog `json:"backlog"`
	Triggers     int                    `json:"triggers"` // triggers that moved an owner this tick
}

// AgentRow is the per-houseowner line of a snapshot.
type AgentRow struct {
	ID            agents.AgentID     `json:"id" db:"agent_id"`
	Milieu        string             `json:"milieu" db:"milieu"`
	Stage         string             `json:"stage" db:"stage"`
	Breakpoint    string             `json:"breakpoint" db:"breakpoint"`
	Trigger       string             `json:"trigger" db:"trigger"`
	Satisfaction  string             `json:"satisfaction" db:"satisfaction"`
	Heating       string             `json:"heating" db:"heating"`
	Age           int                `json:"age" db:"age"`
	Budget        float64            `json:"budget" db:"budget"`
	Suboptimality *float64           `json:"suboptimality" db:"suboptimality"` // nil before the first judged decision
	Ratings       map[string]float64 `json:"ratings" db:"-"`
}

// DeskBacklog summarises one intermediary's workload.
type DeskBacklog struct {
	Queued int `json:"queued"`
	Active int `json:"active"`
	Wait   int `json:"estimated_wait"`
}

// drainDesks collects the job and queue logs every intermediary gathered
// since the previous tick.
func (m *Model) drainDesks() ([]service.Completion, []service.QueueLength) {
	var jobs []service.Completion
	var queues []service.QueueLength
	for _, p := range m.Env.Plumbers {
		c, q := p.DrainLogs()
		jobs = append(jobs, c...)
		queues = append(queues, q...)
	}
	for _, a := range m.Env.Advisors {
		c, q := a.DrainLogs()
		jobs = append(jobs, c...)
		queues = append(queues, q...)
	}
	return jobs, queues
}

// publish builds a snapshot of the current state and makes it visible to
// readers.
func (m *Model) publish(jobs []service.Completion, queues []service.QueueLength) *Snapshot {
	e := m.Env
	s := &Snapshot{
		Tick:         e.Tick,
		Year:         e.Cfg.Run.StartYear + e.Tick/TicksPerYear,
		Stages:       make(map[string]int),
		Distribution: make(map[string]int, len(e.Distribution)),
		Counters:     e.Counters.Snapshot(),
		Agents:       make([]AgentRow, 0, len(e.OwnerOrder)),
		Jobs:         jobs,
		Queues:       queues,
		Backlog:      make(map[string]DeskBacklog, len(e.Plumbers)+len(e.Advisors)),
		Triggers:     e.Counters.TickTriggers,
	}
	for k, n := range e.Distribution {
		s.Distribution[k.String()] = n
	}
	for _, h := range e.OwnerOrder {
		s.Stages[h.Stage.String()]++
		s.Agents = append(s.Agents, agentRow(h))
	}
	for _, p := range e.Plumbers {
		s.Backlog[p.Name] = DeskBacklog{Queued: p.Queued(), Active: p.ActiveCount(), Wait: p.EstimateWait(e.Tick)}
	}
	for _, a := range e.Advisors {
		s.Backlog[a.Name] = DeskBacklog{Queued: a.Queued(), Active: a.ActiveCount(), Wait: a.EstimateWait(e.Tick)}
	}

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
	return s
}

func agentRow(h *agents.Houseowner) AgentRow {
	ratings := make(map[string]float64, len(h.Known))
	for _, s := range h.Known {
		ratings[s.Kind.String()] = s.Rating
	}
	return AgentRow{
		ID:            h.ID,
		Milieu:        h.Milieu.Kind.String(),
		Stage:         h.Stage.String(),
		Breakpoint:    h.Breakpoint.String(),
		Trigger:       h.LastTrigger.String(),
		Satisfaction:  h.Satisfaction.String(),
		Heating:       h.House.Heating.Kind.String(),
		Age:           h.House.Heating.Age,
		Budget:        h.Budget,
		Ratings:       ratings,
		Suboptimality: h.Suboptimality,
	}
}

// Agent finds the row of one houseowner in the snapshot.
func (s *Snapshot) Agent(id agents.AgentID) (AgentRow, bool) {
	i, ok := slices.BinarySearchFunc(s.Agents, id, func(r AgentRow, id agents.AgentID) int {
		switch {
		case r.ID < id:
			return -1
		case r.ID > id:
			return 1
		}
		return 0
	})
	if !ok {
		return AgentRow{}, false
	}
	return s.Agents[i], true
}

// Installed returns the count of installed systems of kind k.
func (s *Snapshot) Installed(k heating.Kind) int {
	return s.Distribution[k.String()]
}
