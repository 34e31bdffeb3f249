// Package heating models heating-system alternatives: the closed set of
// system kinds, the parameter table they are generated from, and the
// per-agent knowledge snapshot (System) carried by value.
package heating

import (
	"fmt"
	"strings"
)

// Kind identifies a heating-system technology.
type Kind uint8

// District and LocalNetwork are hot-water networks, HeatPumpBrine is a
// ground-source heat pump, GPJoule a regional network operator contract and
// VacuumTube solar thermal.
const (
	Oil Kind = iota
	Gas
	HeatPump
	Electricity
	Pellet
	District
	LocalNetwork
	HeatPumpBrine
	GPJoule
	VacuumTube
	numKinds
)

var kindNames = [numKinds]string{
	"oil",
	"gas",
	"heat_pump",
	"electricity",
	"pellet",
	"network_district",
	"network_local",
	"heat_pump_brine",
	"gp_joule",
	"vacuum_tube",
}

// String returns the configuration tag of the kind.
func (k Kind) String() string {
	if k >= numKinds {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by tag.
func (k Kind) MarshalText() ([]byte, error) {
	if k >= numKinds {
		return nil, fmt.Errorf("unknown heating kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a configuration tag. Unknown tags are an error.
func ParseKind(s string) (Kind, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == tag {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown heating system %q", s)
}

// ParseKinds resolves a list of tags, failing on the first unknown one.
func ParseKinds(tags []string) ([]Kind, error) {
	out := make([]Kind, 0, len(tags))
	for _, t := range tags {
		k, err := ParseKind(t)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// AreaBased reports whether the installation cost scales with floor area
// rather than heat load.
func (k Kind) AreaBased() bool {
	return k == LocalNetwork || k == GPJoule || k == District
}

// Fossil reports whether the kind burns oil or gas.
func (k Kind) Fossil() bool {
	return k == Oil || k == Gas
}

// Source records where an agent learned about a system.
type Source uint8

const (
	SourceNone Source = iota
	SourceOwn
	SourceInternet
	SourceMagazine
	SourcePlumber
	SourceNeighbour
	SourceEnergyAdvisor
	SourceCampaign
)

var sourceNames = [...]string{"none", "own", "internet", "magazine", "plumber", "neighbour", "energy_advisor", "campaign"}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}
