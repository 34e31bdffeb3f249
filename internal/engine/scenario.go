package engine

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/heating"
)

// InterventionKind is the closed set of scheduled policy measures.
type InterventionKind uint8

const (
	InterventionCampaign InterventionKind = iota
	InterventionEnforcement
	InterventionMandate
	InterventionTraining
	InterventionPriceShock
	InterventionOpenHouse
	numInterventionKinds
)

var interventionNames = [numInterventionKinds]string{
	"campaign", "enforcement", "mandate", "training", "price_shock", "open_house",
}

func (k InterventionKind) String() string {
	if k < numInterventionKinds {
		return interventionNames[k]
	}
	return fmt.Sprintf("intervention(%d)", uint8(k))
}

// ParseInterventionKind resolves a tag. Unknown tags are an error.
func ParseInterventionKind(s string) (InterventionKind, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	for i, n := range interventionNames {
		if n == tag {
			return InterventionKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown intervention %q", s)
}

// CampaignMode selects how an information campaign reaches houseowners.
type CampaignMode uint8

const (
	CampaignDirect CampaignMode = iota
	CampaignEnergyAdvisor
	CampaignRiskTargeting
)

var campaignModes = map[string]CampaignMode{
	"direct":         CampaignDirect,
	"energy_advisor": CampaignEnergyAdvisor,
	"risk_targeting": CampaignRiskTargeting,
}

func (c CampaignMode) String() string {
	for tag, mode := range campaignModes {
		if mode == c {
			return tag
		}
	}
	return fmt.Sprintf("mode(%d)", uint8(c))
}

// Intervention is one compiled entry of a scenario's schedule.
type Intervention struct {
	Kind    InterventionKind
	Mode    CampaignMode
	Systems []heating.Kind
	Milieus []agents.MilieuKind
	Steps   []int // explicit ticks, empty falls back to Every
	Every   int   // period for mandates and open-house events
	Reach   int
	Factor  float64

	// Mandate thresholds. A zero Emissions disables the performance mandate.
	Emissions float64
	Share     float64

	// RiskStep is how much a risk-targeting campaign raises tolerance.
	RiskStep float64
}

// Scenario is a named set of starting conditions plus an intervention
// schedule. A zero Scenario changes nothing.
type Scenario struct {
	Name             string
	Targets          []heating.Kind
	Blocked          []heating.Kind
	HeadStart        []heating.Kind
	Perfect          bool
	IgnoreInsulation bool
	Interventions    []Intervention
}

type scenarioFile struct {
	Name             string             `yaml:"name"`
	Targets          []string           `yaml:"targets"`
	Blocked          []string           `yaml:"blocked"`
	HeadStart        []string           `yaml:"head_start"`
	Perfect          bool               `yaml:"perfect"`
	IgnoreInsulation bool               `yaml:"ignore_insulation"`
	Interventions    []interventionFile `yaml:"interventions"`
}

type interventionFile struct {
	Kind      string   `yaml:"kind"`
	Mode      string   `yaml:"mode,omitempty"`
	Systems   []string `yaml:"systems,omitempty"`
	Milieus   []string `yaml:"milieus,omitempty"`
	Steps     []int    `yaml:"steps,omitempty"`
	Every     int      `yaml:"every,omitempty"`
	Reach     int      `yaml:"reach,omitempty"`
	Factor    float64  `yaml:"factor,omitempty"`
	Emissions float64  `yaml:"emissions,omitempty"`
	Share     float64  `yaml:"share,omitempty"`
	RiskStep  float64  `yaml:"risk_step,omitempty"`
}

// Baseline is the scenario without measures: heat pumps are tracked and
// their owners get a head start on knowledge.
func Baseline() *Scenario {
	return &Scenario{
		Name:    "baseline",
		Targets: []heating.Kind{heating.HeatPump},
		HeadStart: []heating.Kind{
			heating.Oil, heating.Gas, heating.HeatPump, heating.Electricity, heating.Pellet,
		},
	}
}

// LoadScenario reads a scenario file. An empty path yields the baseline.
func LoadScenario(path string) (*Scenario, error) {
	if path == "" {
		return Baseline(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var raw scenarioFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return raw.compile()
}

func (f *scenarioFile) compile() (*Scenario, error) {
	sc := &Scenario{
		Name:             strings.TrimSpace(f.Name),
		Perfect:          f.Perfect,
		IgnoreInsulation: f.IgnoreInsulation,
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	var err error
	if sc.Targets, err = heating.ParseKinds(f.Targets); err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	if sc.Blocked, err = heating.ParseKinds(f.Blocked); err != nil {
		return nil, fmt.Errorf("blocked: %w", err)
	}
	if sc.HeadStart, err = heating.ParseKinds(f.HeadStart); err != nil {
		return nil, fmt.Errorf("head_start: %w", err)
	}
	for i, raw := range f.Interventions {
		iv, err := raw.compile()
		if err != nil {
			return nil, fmt.Errorf("interventions[%d]: %w", i, err)
		}
		sc.Interventions = append(sc.Interventions, iv)
	}
	return sc, nil
}

func (f interventionFile) compile() (Intervention, error) {
	kind, err := ParseInterventionKind(f.Kind)
	if err != nil {
		return Intervention{}, err
	}
	iv := Intervention{
		Kind:      kind,
		Steps:     slices.Clone(f.Steps),
		Every:     f.Every,
		Reach:     f.Reach,
		Factor:    f.Factor,
		Emissions: f.Emissions,
		Share:     f.Share,
		RiskStep:  f.RiskStep,
	}
	if iv.Systems, err = heating.ParseKinds(f.Systems); err != nil {
		return iv, fmt.Errorf("systems: %w", err)
	}
	for _, tag := range f.Milieus {
		m, err := agents.ParseMilieuKind(tag)
		if err != nil {
			return iv, fmt.Errorf("milieus: %w", err)
		}
		iv.Milieus = append(iv.Milieus, m)
	}

	switch kind {
	case InterventionCampaign:
		mode, ok := campaignModes[strings.ToLower(strings.TrimSpace(f.Mode))]
		if !ok {
			return iv, fmt.Errorf("unknown campaign mode %q", f.Mode)
		}
		iv.Mode = mode
		if iv.Reach <= 0 {
			return iv, fmt.Errorf("campaign reach must be positive")
		}
		if len(iv.Steps) == 0 {
			return iv, fmt.Errorf("campaign needs steps")
		}
		if iv.RiskStep == 0 {
			iv.RiskStep = 0.1
		}
	case InterventionEnforcement, InterventionTraining:
		if len(iv.Systems) == 0 {
			return iv, fmt.Errorf("%s needs systems", kind)
		}
		if kind == InterventionEnforcement && len(iv.Steps) == 0 {
			iv.Steps = []int{0}
		}
	case InterventionMandate:
		if iv.Every == 0 {
			iv.Every = 52
		}
		if iv.Share == 0 {
			iv.Share = 0.1
		}
		if iv.Share < 0 || iv.Share > 1 {
			return iv, fmt.Errorf("mandate share %v outside [0,1]", iv.Share)
		}
	case InterventionPriceShock:
		if iv.Factor <= 0 {
			return iv, fmt.Errorf("price shock factor must be positive")
		}
		if len(iv.Steps) == 0 {
			return iv, fmt.Errorf("price shock needs steps")
		}
	case InterventionOpenHouse:
		if iv.Every <= 0 && len(iv.Steps) == 0 {
			return iv, fmt.Errorf("open house needs a period or steps")
		}
	}
	if iv.Every < 0 {
		return iv, fmt.Errorf("every must not be negative")
	}
	return iv, nil
}

// due reports whether iv fires at tick.
func (iv Intervention) due(tick int) bool {
	if len(iv.Steps) > 0 {
		return slices.Contains(iv.Steps, tick)
	}
	if iv.Every > 0 {
		return tick%iv.Every == 0
	}
	return true
}
