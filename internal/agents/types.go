// Package agents provides the houseowner decision engine, the intermediaries
// that serve houseowners (plumbers and energy advisors), the triggers that
// start a decision and the spawner that creates the initial population.
package agents

import (
	"errors"
	"fmt"
)

// ErrInvariant marks a broken internal contract. It aborts the run, unlike
// infeasible outcomes which are ordinary state transitions.
var ErrInvariant = errors.New("invariant violated")

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Stage is the position of an agent in the decision process.
type Stage uint8

const (
	Idle Stage = iota
	Stage1
	Stage2
	Stage3
	Stage4
)

var stageNames = [...]string{"Idle", "Stage 1", "Stage 2", "Stage 3", "Stage 4"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Breakpoint names the sub-goal reached within the decision process.
type Breakpoint uint8

const (
	BreakNone Breakpoint = iota
	Goal
	Behaviour
	Implementation
)

var breakpointNames = [...]string{"None", "Goal", "Behaviour", "Implementation"}

func (b Breakpoint) String() string {
	if int(b) < len(breakpointNames) {
		return breakpointNames[b]
	}
	return fmt.Sprintf("breakpoint(%d)", uint8(b))
}

// stageBreakpoint is the only breakpoint each stage may be paired with.
var stageBreakpoint = [...]Breakpoint{
	Idle:   BreakNone,
	Stage1: BreakNone,
	Stage2: Goal,
	Stage3: Behaviour,
	Stage4: Implementation,
}

// Satisfaction is an agent's verdict on its installed system.
type Satisfaction uint8

const (
	Satisfied Satisfaction = iota
	Dissatisfied
)

func (s Satisfaction) String() string {
	if s == Dissatisfied {
		return "Dissatisfied"
	}
	return "Satisfied"
}

// Base holds the fields every decision-making agent shares.
type Base struct {
	ID            AgentID      `json:"id"`
	Stage         Stage        `json:"stage"`
	Breakpoint    Breakpoint   `json:"breakpoint"`
	Effort        int          `json:"effort"` // cognitive resource left this tick
	InitialEffort int          `json:"initial_effort"`
	ActiveTrigger Trigger      `json:"-"`
	Satisfaction  Satisfaction `json:"satisfaction"`
}

// setStage moves the agent and its breakpoint together.
func (b *Base) setStage(s Stage) {
	b.Stage = s
	b.Breakpoint = stageBreakpoint[s]
}

// ValidPosition reports whether stage and breakpoint agree.
func (b *Base) ValidPosition() bool {
	return int(b.Stage) < len(stageBreakpoint) && stageBreakpoint[b.Stage] == b.Breakpoint
}

// spend deducts cost if enough effort is left. Otherwise it exhausts the
// remaining effort and reports false.
func (b *Base) spend(cost int) bool {
	if b.Effort < cost {
		b.Effort = 0
		return false
	}
	b.Effort -= cost
	return true
}
