package agents

import (
	"fmt"
	"strings"

	"github.com/talgya/heatsim/internal/heating"
)

// TriggerKind is the closed set of events that can start a decision.
type TriggerKind uint8

const (
	TriggerNone TriggerKind = iota
	TriggerBreakdown
	TriggerForcedAvailability
	TriggerPriceShock
	TriggerLifetime
	TriggerNeighbourJealousy
	TriggerAdoptiveComparison
	TriggerAskedByNeighbour
	TriggerConsulted
	TriggerRiskTargeting
	TriggerAvailability
	TriggerFuelPrice
	TriggerOwnerChange
	TriggerInformationCampaign
	numTriggerKinds
)

var triggerNames = [numTriggerKinds]string{
	"none",
	"breakdown",
	"forced_availability",
	"price_shock",
	"lifetime",
	"neighbour_jealousy",
	"adoptive_comparison",
	"asked_by_neighbour",
	"consulted",
	"risk_targeting",
	"availability",
	"fuel_price",
	"owner_change",
	"information_campaign",
}

func (k TriggerKind) String() string {
	if k < numTriggerKinds {
		return triggerNames[k]
	}
	return fmt.Sprintf("trigger(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k TriggerKind) MarshalText() ([]byte, error) {
	if k >= numTriggerKinds {
		return nil, fmt.Errorf("unknown trigger %d", uint8(k))
	}
	return []byte(triggerNames[k]), nil
}

// ParseTriggerKind resolves a tag. Unknown tags are an error.
func ParseTriggerKind(s string) (TriggerKind, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for i, n := range triggerNames {
		if n == tag {
			return TriggerKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown trigger %q", s)
}

// Hard triggers skip problem recognition and start the search directly.
func (k TriggerKind) Hard() bool {
	return k == TriggerBreakdown || k == TriggerForcedAvailability
}

// Trigger is one event delivered to a houseowner. Factor is used by price
// shocks, Systems by information campaigns.
type Trigger struct {
	Kind    TriggerKind
	Factor  float64
	Systems []heating.Kind
}

// NewTrigger returns a payload-free trigger of kind k.
func NewTrigger(k TriggerKind) Trigger {
	return Trigger{Kind: k}
}

// Impact applies the trigger to h. Every trigger is counted by type; only
// an idle agent is moved.
func (t Trigger) Impact(h *Houseowner) {
	c := h.env.Counters
	c.TriggerTypes[t.Kind]++
	if t.Kind == TriggerNone || h.Stage != Idle {
		return
	}

	switch t.Kind {
	case TriggerPriceShock:
		h.House.Heating.Params[heating.FuelCost].Value *= t.Factor
	case TriggerInformationCampaign:
		c.TickTriggers++
		if h.allInfeasible(t.Systems) {
			return
		}
		h.learnFromCampaign(t.Systems)
		h.setStage(Stage1)
		return
	}

	if t.Kind.Hard() {
		h.setStage(Stage2)
	} else {
		h.setStage(Stage1)
	}
	c.TickTriggers++
}
