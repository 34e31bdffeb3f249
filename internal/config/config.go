// Package config loads the immutable run configuration. Values come from
// built-in defaults, an optional TOML file and HEATSIM_* environment
// variables, in increasing order of precedence.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/talgya/heatsim/internal/economy"
	"github.com/talgya/heatsim/internal/heating"
	"github.com/talgya/heatsim/internal/subsidy"
)

//go:embed heating.toml
var defaultHeatingTable []byte

// EnvPrefix is prepended to every environment override, e.g.
// HEATSIM_RUN_SEED=7.
const EnvPrefix = "HEATSIM"

// Config is the complete, read-only configuration of one run. It is built
// once by Load and shared by pointer; nothing mutates it afterwards.
type Config struct {
	Run           RunConfig               `mapstructure:"run"`
	DecisionCosts DecisionCosts           `mapstructure:"decision_costs"`
	Houseowner    HouseownerConfig        `mapstructure:"houseowner"`
	Compare       CompareConfig           `mapstructure:"compare"`
	Sources       SourceConfig            `mapstructure:"information_source"`
	Plumber       PlumberConfig           `mapstructure:"plumber"`
	EnergyAdvisor AdvisorConfig           `mapstructure:"energy_advisor"`
	Loans         economy.LoanTerms       `mapstructure:"loans"`
	Subsidies     subsidy.Rates           `mapstructure:"subsidies"`
	Triggers      TriggerConfig           `mapstructure:"triggers"`
	Network       NetworkConfig           `mapstructure:"network"`
	Houses        HousesConfig            `mapstructure:"houses"`
	Distribution  map[string]SystemShare  `mapstructure:"distribution"`
	Milieus       map[string]MilieuConfig `mapstructure:"milieus"`
	Data          DataConfig              `mapstructure:"data"`
	Log           LogConfig               `mapstructure:"log"`
	DB            DBConfig                `mapstructure:"db"`
	API           APIConfig               `mapstructure:"api"`
	Scenario      ScenarioConfig          `mapstructure:"scenario"`
}

// RunConfig sizes the run. One tick is one week.
type RunConfig struct {
	Steps               int           `mapstructure:"steps"`
	Seed                int64         `mapstructure:"seed"` // 0 draws a random root seed
	Houseowners         int           `mapstructure:"houseowners"`
	Plumbers            int           `mapstructure:"plumbers"`
	Advisors            int           `mapstructure:"advisors"`
	StartYear           int           `mapstructure:"start_year"`
	ReportEvery         int           `mapstructure:"report_every"`
	TickInterval        time.Duration `mapstructure:"tick_interval"`
	OwnershipChangeProb float64       `mapstructure:"ownership_change_probability"`
}

// DecisionCosts is the cognitive effort each decision sub-step consumes.
type DecisionCosts struct {
	Evaluate     int `mapstructure:"evaluate"`
	GetData      int `mapstructure:"get_data"`
	DefineChoice int `mapstructure:"define_choice"`
	Compare      int `mapstructure:"compare"`
	Install      int `mapstructure:"install"`
	Satisfaction int `mapstructure:"satisfaction"`
}

// HouseownerConfig holds the household parameters shared by all milieus.
type HouseownerConfig struct {
	Aspiration             int       `mapstructure:"aspiration"`
	Overload               int       `mapstructure:"overload"`
	BudgetLimit            float64   `mapstructure:"budget_limit"` // budget cap in weeks of income
	MeetingProb            float64   `mapstructure:"meeting_prob"`
	LoanTakingProbability  float64   `mapstructure:"loan_taking_probability"`
	RandomRiskTolerance    bool      `mapstructure:"random_risk_tolerance"`
	RiskToleranceStd       float64   `mapstructure:"risk_tolerance_std"`
	AttitudeMultiplier     float64   `mapstructure:"attitude_multiplier"`
	SocialNormMultiplier   float64   `mapstructure:"social_norm_multiplier"`
	PBCMultiplier          float64   `mapstructure:"pbc_multiplier"`
	TPBWeightsStd          []float64 `mapstructure:"tpb_weights_std"`
	IncomeLower            float64   `mapstructure:"income_lower"`
	IncomeUpper            float64   `mapstructure:"income_upper"`
	MaxUnqualifiedPlumbers int       `mapstructure:"max_unqualified_plumbers"`
	MaxWaitingTime         int       `mapstructure:"max_waiting_time"`
	NeighbourCoverage      int       `mapstructure:"neighbour_coverage"`
}

// CompareConfig tunes the final ranking of suitable systems.
type CompareConfig struct {
	// TieBreakRatio: when second × ratio exceeds the best score the
	// choice between the two is a coin flip.
	TieBreakRatio float64 `mapstructure:"tie_break_ratio"`
}

// SourceConfig parameterises the impersonal information sources.
type SourceConfig struct {
	Distortion         float64  `mapstructure:"distortion"`
	MinDistortion      float64  `mapstructure:"min_distortion"`
	UncertaintyLower   float64  `mapstructure:"uncertainty_lower"`
	UncertaintyUpper   float64  `mapstructure:"uncertainty_upper"`
	SubsidyFindingProb float64  `mapstructure:"subsidy_finding_prob"`
	Magazine           []string `mapstructure:"magazine"`
}

// PlumberConfig parameterises installers.
type PlumberConfig struct {
	ConsDuration        int      `mapstructure:"cons_duration"`
	InsDuration         int      `mapstructure:"ins_duration"`
	MaxConcurrentJobs   int      `mapstructure:"max_concurrent_jobs"`
	TrainingInterval    int      `mapstructure:"training_interval"`
	AssumeArea          float64  `mapstructure:"assume_area"`
	AssumeEnergyDemand  float64  `mapstructure:"assume_energy_demand"`
	AssumeHeatLoad      float64  `mapstructure:"assume_heat_load"`
	InsulationThreshold float64  `mapstructure:"insulation_threshold"`
	InsulationList      []string `mapstructure:"insulation_list"`
	ShareSystems        bool     `mapstructure:"share_systems"`
	ApplySubsidies      bool     `mapstructure:"apply_subsidies"`
	Known               []string `mapstructure:"known"`
}

// AdvisorConfig parameterises energy advisors.
type AdvisorConfig struct {
	ConsDuration      int `mapstructure:"cons_duration"`
	MaxConcurrentJobs int `mapstructure:"max_concurrent_jobs"`
}

// TriggerConfig holds trigger thresholds, all in ticks.
type TriggerConfig struct {
	AdoptiveTrigger    string `mapstructure:"adoptive_trigger"` // system kind whose adopters spread their decision
	AvailabilityWindow int    `mapstructure:"availability_window"`
	AvailabilityLife   int    `mapstructure:"availability_life"`
	// LifetimeWarning makes idle owners reconsider once their system has
	// this many ticks left. Zero disables it.
	LifetimeWarning int `mapstructure:"lifetime_warning"`
	// AskedByNeighbourProb is the chance that an idle neighbour who is
	// asked for advice starts thinking about its own system.
	AskedByNeighbourProb float64 `mapstructure:"asked_by_neighbour_prob"`
}

// NetworkConfig drives the neighbourhood graph builder.
type NetworkConfig struct {
	Radius     int     `mapstructure:"radius"` // hex distance
	EdgeProb   float64 `mapstructure:"edge_prob"`
	RewireProb float64 `mapstructure:"rewire_prob"`
}

// HousesConfig drives house generation.
type HousesConfig struct {
	AreaMin        float64 `mapstructure:"area_min"`
	AreaMax        float64 `mapstructure:"area_max"`
	YearMin        int     `mapstructure:"year_min"`
	YearMax        int     `mapstructure:"year_max"`
	NoiseScale     float64 `mapstructure:"noise_scale"`
	HeatLoadFactor float64 `mapstructure:"heat_load_factor"` // kW = area × demand × factor / 1000
}

// SystemShare is the initial market share of one kind and the install-year
// distribution of its stock.
type SystemShare struct {
	Share    float64 `mapstructure:"share"`
	YearMin  int     `mapstructure:"year_min"`
	YearMax  int     `mapstructure:"year_max"`
	YearMean float64 `mapstructure:"year_mean"`
	YearSD   float64 `mapstructure:"year_sd"`
}

// MilieuConfig is one socio-behavioural segment.
type MilieuConfig struct {
	Share             float64            `mapstructure:"share"`
	IncomeMean        float64            `mapstructure:"income_mean"` // weekly savings
	IncomeStd         float64            `mapstructure:"income_std"`
	RiskTolerance     float64            `mapstructure:"risk_tolerance"`
	CognitiveResource int                `mapstructure:"cognitive_resource"`
	UncertaintyFactor float64            `mapstructure:"uncertainty_factor"`
	Standard          StandardConfig     `mapstructure:"standard"`
	Preferences       PreferenceConfig   `mapstructure:"preferences"`
	Sources           SourceWeights      `mapstructure:"sources"`
	TPB               TPBConfig          `mapstructure:"tpb"`
	RAExposure        map[string]float64 `mapstructure:"ra_exposure"` // by peer milieu
}

// StandardConfig is the personal standard a milieu holds its system to.
type StandardConfig struct {
	Lifetime           int `mapstructure:"lifetime"`       // minimum remaining ticks
	CanAffordAge       int `mapstructure:"can_afford_age"` // age after which replacement is thinkable
	AvailabilityWindow int `mapstructure:"availability_window"`
	AvailabilityLife   int `mapstructure:"availability_life"`
}

// PreferenceConfig are Beta parameters of the heating preferences.
type PreferenceConfig struct {
	EffortA    float64 `mapstructure:"effort_a"`
	EffortB    float64 `mapstructure:"effort_b"`
	FuelCostA  float64 `mapstructure:"fuel_cost_a"`
	FuelCostB  float64 `mapstructure:"fuel_cost_b"`
	EmissionsA float64 `mapstructure:"emissions_a"`
	EmissionsB float64 `mapstructure:"emissions_b"`
	PriceA     float64 `mapstructure:"price_a"`
	PriceB     float64 `mapstructure:"price_b"`
}

// SourceWeights are Dirichlet concentrations over information sources.
type SourceWeights struct {
	Internet      float64 `mapstructure:"internet"`
	Magazine      float64 `mapstructure:"magazine"`
	Plumber       float64 `mapstructure:"plumber"`
	Neighbour     float64 `mapstructure:"neighbour"`
	EnergyAdvisor float64 `mapstructure:"energy_advisor"`
}

// TPBConfig are the mean weights of attitude, social norm and perceived
// behavioural control.
type TPBConfig struct {
	Attitude   float64 `mapstructure:"attitude"`
	SocialNorm float64 `mapstructure:"social_norm"`
	Control    float64 `mapstructure:"control"`
}

// DataConfig points at data inputs.
type DataConfig struct {
	HeatingTable     string   `mapstructure:"heating_table"` // empty uses the embedded table
	WeibullLifetimes bool     `mapstructure:"weibull_lifetimes"`
	Kinds            []string `mapstructure:"kinds"`

	// Dynamic enables Schedule. Without it fuel costs and emission factors
	// stay at their table values for the whole run.
	Dynamic  bool          `mapstructure:"dynamic"`
	Schedule []PriceChange `mapstructure:"schedule"`
}

// PriceChange sets a new fuel cost or emission factor (or both) for one
// kind from the given tick on. It is written as
//
//	[[data.schedule]]
//	step = 52
//	system = "gas"
//	fuel_cost = 0.14
type PriceChange struct {
	Step      int      `mapstructure:"step"`
	System    string   `mapstructure:"system"`
	FuelCost  *float64 `mapstructure:"fuel_cost"` // per kWh
	Emissions *float64 `mapstructure:"emissions"` // kg CO2 per kWh
}

// LogConfig mirrors the usual slog setup plus optional rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DBConfig locates the results database. An empty path disables it.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Addr      string  `mapstructure:"addr"`
	AdminKey  string  `mapstructure:"admin_key"`
	RelayKey  string  `mapstructure:"relay_key"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second per client
	Burst     int     `mapstructure:"burst"`
}

// ScenarioConfig selects the intervention schedule.
type ScenarioConfig struct {
	File string `mapstructure:"file"`
}

// NewDefaultConfig returns the built-in configuration.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads defaults, then the optional file at path, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

// NewViper prepares a viper instance with defaults, the optional file at
// path and environment overrides. Callers may bind flags before
// unmarshalling it with NewConfigFromViper.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// NewConfigFromViper unmarshals and validates v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Run --
	v.SetDefault("run.steps", 520)
	v.SetDefault("run.seed", 42)
	v.SetDefault("run.houseowners", 200)
	v.SetDefault("run.plumbers", 5)
	v.SetDefault("run.advisors", 2)
	v.SetDefault("run.start_year", 2024)
	v.SetDefault("run.report_every", 52)
	v.SetDefault("run.tick_interval", "0s")
	v.SetDefault("run.ownership_change_probability", 0.0)

	// -- Decision costs --
	for _, k := range []string{"evaluate", "get_data", "define_choice", "compare", "install", "satisfaction"} {
		v.SetDefault("decision_costs."+k, 1)
	}

	// -- Houseowner --
	v.SetDefault("houseowner.aspiration", 3)
	v.SetDefault("houseowner.overload", 3)
	v.SetDefault("houseowner.budget_limit", 100.0)
	v.SetDefault("houseowner.meeting_prob", 0.1)
	v.SetDefault("houseowner.loan_taking_probability", 0.5)
	v.SetDefault("houseowner.random_risk_tolerance", true)
	v.SetDefault("houseowner.risk_tolerance_std", 0.1)
	v.SetDefault("houseowner.attitude_multiplier", 1.0)
	v.SetDefault("houseowner.social_norm_multiplier", 1.0)
	v.SetDefault("houseowner.pbc_multiplier", 1.0)
	v.SetDefault("houseowner.tpb_weights_std", []float64{0.1, 0.1, 0.1})
	v.SetDefault("houseowner.income_lower", 50.0)
	v.SetDefault("houseowner.income_upper", 500.0)
	v.SetDefault("houseowner.max_unqualified_plumbers", 10)
	v.SetDefault("houseowner.max_waiting_time", 52)
	v.SetDefault("houseowner.neighbour_coverage", 514)

	v.SetDefault("compare.tie_break_ratio", 1.1)

	// -- Information sources --
	v.SetDefault("information_source.distortion", 0.3)
	v.SetDefault("information_source.min_distortion", 0.1)
	v.SetDefault("information_source.uncertainty_lower", 0.05)
	v.SetDefault("information_source.uncertainty_upper", 0.25)
	v.SetDefault("information_source.subsidy_finding_prob", 0.3)
	v.SetDefault("information_source.magazine", []string{"gas", "heat_pump", "electricity", "pellet"})

	// -- Intermediaries --
	v.SetDefault("plumber.cons_duration", 1)
	v.SetDefault("plumber.ins_duration", 2)
	v.SetDefault("plumber.max_concurrent_jobs", 3)
	v.SetDefault("plumber.training_interval", 52)
	v.SetDefault("plumber.assume_area", 106.0)
	v.SetDefault("plumber.assume_energy_demand", 147.0)
	v.SetDefault("plumber.assume_heat_load", 19.0)
	v.SetDefault("plumber.insulation_threshold", 150.0)
	v.SetDefault("plumber.insulation_list", []string{"heat_pump", "heat_pump_brine"})
	v.SetDefault("plumber.share_systems", true)
	v.SetDefault("plumber.apply_subsidies", true)
	v.SetDefault("plumber.known", []string{"oil", "gas", "electricity", "pellet", "heat_pump"})
	v.SetDefault("energy_advisor.cons_duration", 2)
	v.SetDefault("energy_advisor.max_concurrent_jobs", 2)

	// -- Economy --
	lt := economy.DefaultLoanTerms()
	v.SetDefault("loans.interest", lt.Interest)
	v.SetDefault("loans.years", lt.Years)
	v.SetDefault("loans.ltv_ratio", lt.LTVRatio)
	v.SetDefault("loans.lti_multiplier", lt.LTIMultiplier)
	v.SetDefault("loans.min_spare_years", lt.MinSpareYears)
	v.SetDefault("subsidies.district", 0.3)
	v.SetDefault("subsidies.heat_pump", 0.3)
	v.SetDefault("subsidies.heat_pump_brine", 0.3)
	v.SetDefault("subsidies.pellet", 0.3)
	v.SetDefault("subsidies.network_local", 0.3)
	v.SetDefault("subsidies.gp_joule", 0.3)
	v.SetDefault("subsidies.climate_speed", 0.2)
	v.SetDefault("subsidies.income", 0.3)
	v.SetDefault("subsidies.efficiency", 0.05)
	v.SetDefault("subsidies.low_income_threshold", 40000.0)
	v.SetDefault("subsidies.cap_share", 0.7)
	v.SetDefault("subsidies.cap_absolute", 21000.0)
	v.SetDefault("subsidies.advisor_bonus", 0.05)
	v.SetDefault("subsidies.climate_speed_end_step", 260)

	// -- Triggers --
	v.SetDefault("triggers.adoptive_trigger", "heat_pump")
	v.SetDefault("triggers.availability_window", 104)
	v.SetDefault("triggers.availability_life", 208)
	v.SetDefault("triggers.lifetime_warning", 0)
	v.SetDefault("triggers.asked_by_neighbour_prob", 0.0)

	// -- Population --
	v.SetDefault("network.radius", 2)
	v.SetDefault("network.edge_prob", 0.5)
	v.SetDefault("network.rewire_prob", 0.02)
	v.SetDefault("houses.area_min", 80.0)
	v.SetDefault("houses.area_max", 250.0)
	v.SetDefault("houses.year_min", 1950)
	v.SetDefault("houses.year_max", 2020)
	v.SetDefault("houses.noise_scale", 0.15)
	v.SetDefault("houses.heat_load_factor", 0.85)
	setDistributionDefaults(v)
	setMilieuDefaults(v)

	// -- Data --
	v.SetDefault("data.heating_table", "")
	v.SetDefault("data.weibull_lifetimes", false)
	v.SetDefault("data.dynamic", false)
	v.SetDefault("data.kinds", []string{
		"oil", "gas", "heat_pump", "electricity", "pellet",
		"network_district", "network_local", "heat_pump_brine", "gp_joule",
	})

	// -- Surfaces --
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("db.path", "")
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.admin_key", "")
	v.SetDefault("api.relay_key", "")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("scenario.file", "")
}

func setDistributionDefaults(v *viper.Viper) {
	shares := map[string]SystemShare{
		"oil":         {Share: 0.12, YearMin: 1985, YearMax: 2023, YearMean: 2003, YearSD: 9},
		"gas":         {Share: 0.81, YearMin: 1990, YearMax: 2023, YearMean: 2008, YearSD: 8},
		"heat_pump":   {Share: 0.04, YearMin: 2005, YearMax: 2023, YearMean: 2017, YearSD: 4},
		"electricity": {Share: 0.0, YearMin: 1975, YearMax: 2023, YearMean: 1995, YearSD: 10},
		"pellet":      {Share: 0.03, YearMin: 2000, YearMax: 2023, YearMean: 2014, YearSD: 5},
	}
	for kind, s := range shares {
		p := "distribution." + kind + "."
		v.SetDefault(p+"share", s.Share)
		v.SetDefault(p+"year_min", s.YearMin)
		v.SetDefault(p+"year_max", s.YearMax)
		v.SetDefault(p+"year_mean", s.YearMean)
		v.SetDefault(p+"year_sd", s.YearSD)
	}
}

func setMilieuDefaults(v *viper.Viper) {
	type row struct {
		share, incMean, incStd, risk, uncertainty float64
		effort, lifetime                          int
		prefs                                     PreferenceConfig
		sources                                   SourceWeights
		tpb                                       TPBConfig
		exposure                                  [4]float64
	}
	rows := map[string]row{
		"leading": {
			share:    0.25, incMean: 260, incStd: 90, risk: 0.5, uncertainty: 0.4, effort: 4, lifetime: 156,
			prefs:    PreferenceConfig{EffortA: 2, EffortB: 5, FuelCostA: 3, FuelCostB: 4, EmissionsA: 6, EmissionsB: 2, PriceA: 3, PriceB: 4},
			sources:  SourceWeights{Internet: 5, Magazine: 2, Plumber: 2, Neighbour: 2, EnergyAdvisor: 3},
			tpb:      TPBConfig{Attitude: 0.5, SocialNorm: 0.2, Control: 0.3},
			exposure: [4]float64{0.5, 0.3, 0.1, 0.2},
		},
		"mainstream": {
			share:    0.35, incMean: 200, incStd: 70, risk: 0.4, uncertainty: 0.5, effort: 3, lifetime: 104,
			prefs:    PreferenceConfig{EffortA: 4, EffortB: 3, FuelCostA: 5, FuelCostB: 2, EmissionsA: 3, EmissionsB: 3, PriceA: 5, PriceB: 2},
			sources:  SourceWeights{Internet: 3, Magazine: 2, Plumber: 3, Neighbour: 4, EnergyAdvisor: 2},
			tpb:      TPBConfig{Attitude: 0.3, SocialNorm: 0.4, Control: 0.3},
			exposure: [4]float64{0.4, 0.5, 0.3, 0.3},
		},
		"traditionals": {
			share:    0.25, incMean: 170, incStd: 60, risk: 0.3, uncertainty: 0.6, effort: 3, lifetime: 52,
			prefs:    PreferenceConfig{EffortA: 5, EffortB: 2, FuelCostA: 4, FuelCostB: 3, EmissionsA: 2, EmissionsB: 5, PriceA: 6, PriceB: 2},
			sources:  SourceWeights{Internet: 1, Magazine: 3, Plumber: 5, Neighbour: 3, EnergyAdvisor: 1},
			tpb:      TPBConfig{Attitude: 0.3, SocialNorm: 0.3, Control: 0.4},
			exposure: [4]float64{0.1, 0.3, 0.5, 0.2},
		},
		"hedonists": {
			share:    0.15, incMean: 150, incStd: 70, risk: 0.6, uncertainty: 0.5, effort: 3, lifetime: 26,
			prefs:    PreferenceConfig{EffortA: 5, EffortB: 2, FuelCostA: 3, FuelCostB: 3, EmissionsA: 2, EmissionsB: 4, PriceA: 5, PriceB: 3},
			sources:  SourceWeights{Internet: 5, Magazine: 1, Plumber: 2, Neighbour: 4, EnergyAdvisor: 1},
			tpb:      TPBConfig{Attitude: 0.5, SocialNorm: 0.3, Control: 0.2},
			exposure: [4]float64{0.2, 0.3, 0.2, 0.5},
		},
	}
	peers := [4]string{"leading", "mainstream", "traditionals", "hedonists"}
	for name, r := range rows {
		p := "milieus." + name + "."
		v.SetDefault(p+"share", r.share)
		v.SetDefault(p+"income_mean", r.incMean)
		v.SetDefault(p+"income_std", r.incStd)
		v.SetDefault(p+"risk_tolerance", r.risk)
		v.SetDefault(p+"cognitive_resource", r.effort)
		v.SetDefault(p+"uncertainty_factor", r.uncertainty)
		v.SetDefault(p+"standard.lifetime", r.lifetime)
		v.SetDefault(p+"standard.can_afford_age", 520)
		v.SetDefault(p+"standard.availability_window", 104)
		v.SetDefault(p+"standard.availability_life", 208)
		v.SetDefault(p+"preferences.effort_a", r.prefs.EffortA)
		v.SetDefault(p+"preferences.effort_b", r.prefs.EffortB)
		v.SetDefault(p+"preferences.fuel_cost_a", r.prefs.FuelCostA)
		v.SetDefault(p+"preferences.fuel_cost_b", r.prefs.FuelCostB)
		v.SetDefault(p+"preferences.emissions_a", r.prefs.EmissionsA)
		v.SetDefault(p+"preferences.emissions_b", r.prefs.EmissionsB)
		v.SetDefault(p+"preferences.price_a", r.prefs.PriceA)
		v.SetDefault(p+"preferences.price_b", r.prefs.PriceB)
		v.SetDefault(p+"sources.internet", r.sources.Internet)
		v.SetDefault(p+"sources.magazine", r.sources.Magazine)
		v.SetDefault(p+"sources.plumber", r.sources.Plumber)
		v.SetDefault(p+"sources.neighbour", r.sources.Neighbour)
		v.SetDefault(p+"sources.energy_advisor", r.sources.EnergyAdvisor)
		v.SetDefault(p+"tpb.attitude", r.tpb.Attitude)
		v.SetDefault(p+"tpb.social_norm", r.tpb.SocialNorm)
		v.SetDefault(p+"tpb.control", r.tpb.Control)
		for i, peer := range peers {
			v.SetDefault(p+"ra_exposure."+peer, r.exposure[i])
		}
	}
}

// Validate checks ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Run.Steps < 0 {
		return fmt.Errorf("run.steps must not be negative")
	}
	if c.Run.Houseowners <= 0 {
		return fmt.Errorf("run.houseowners must be a positive integer")
	}
	if c.Run.Plumbers < 0 || c.Run.Advisors < 0 {
		return fmt.Errorf("run.plumbers and run.advisors must not be negative")
	}
	costs := []int{c.DecisionCosts.Evaluate, c.DecisionCosts.GetData, c.DecisionCosts.DefineChoice,
		c.DecisionCosts.Compare, c.DecisionCosts.Install, c.DecisionCosts.Satisfaction}
	for _, cost := range costs {
		if cost <= 0 {
			return fmt.Errorf("decision_costs must all be positive")
		}
	}
	if c.Compare.TieBreakRatio < 1 {
		return fmt.Errorf("compare.tie_break_ratio must be at least 1, got %v", c.Compare.TieBreakRatio)
	}
	if c.Plumber.MaxConcurrentJobs <= 0 || c.EnergyAdvisor.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max_concurrent_jobs must be a positive integer")
	}
	if c.Sources.UncertaintyLower > c.Sources.UncertaintyUpper {
		return fmt.Errorf("information_source.uncertainty_lower exceeds uncertainty_upper")
	}
	if len(c.Houseowner.TPBWeightsStd) != 3 {
		return fmt.Errorf("houseowner.tpb_weights_std needs 3 values, got %d", len(c.Houseowner.TPBWeightsStd))
	}
	if c.Houseowner.IncomeLower > c.Houseowner.IncomeUpper {
		return fmt.Errorf("houseowner.income_lower exceeds income_upper")
	}

	for _, tags := range [][]string{c.Data.Kinds, c.Plumber.Known, c.Plumber.InsulationList, c.Sources.Magazine} {
		if _, err := heating.ParseKinds(tags); err != nil {
			return err
		}
	}
	if _, err := heating.ParseKind(c.Triggers.AdoptiveTrigger); err != nil {
		return fmt.Errorf("triggers.adoptive_trigger: %w", err)
	}
	if c.Triggers.LifetimeWarning < 0 {
		return fmt.Errorf("triggers.lifetime_warning must not be negative")
	}
	if p := c.Triggers.AskedByNeighbourProb; p < 0 || p > 1 {
		return fmt.Errorf("triggers.asked_by_neighbour_prob must be in [0, 1], got %v", p)
	}
	for i, pc := range c.Data.Schedule {
		if err := pc.validate(); err != nil {
			return fmt.Errorf("data.schedule[%d]: %w", i, err)
		}
	}
	for name := range c.Distribution {
		if _, err := heating.ParseKind(name); err != nil {
			return fmt.Errorf("distribution: %w", err)
		}
	}

	if len(c.Milieus) == 0 {
		return fmt.Errorf("at least one milieu is required")
	}
	total := 0.0
	for name, m := range c.Milieus {
		if m.Share < 0 {
			return fmt.Errorf("milieus.%s.share must not be negative", name)
		}
		if m.CognitiveResource <= 0 {
			return fmt.Errorf("milieus.%s.cognitive_resource must be positive", name)
		}
		total += m.Share
	}
	if math.Abs(total-1) > 1e-6 {
		return fmt.Errorf("milieu shares sum to %.4f, want 1", total)
	}
	return nil
}

func (pc PriceChange) validate() error {
	if _, err := heating.ParseKind(pc.System); err != nil {
		return err
	}
	if pc.Step < 0 {
		return fmt.Errorf("step must not be negative")
	}
	if pc.FuelCost == nil && pc.Emissions == nil {
		return fmt.Errorf("%s at step %d changes nothing", pc.System, pc.Step)
	}
	if (pc.FuelCost != nil && *pc.FuelCost < 0) || (pc.Emissions != nil && *pc.Emissions < 0) {
		return fmt.Errorf("%s at step %d: values must not be negative", pc.System, pc.Step)
	}
	return nil
}

// Kinds returns the heating system kinds in play. Validate guarantees the
// tags parse.
func (c *Config) Kinds() []heating.Kind {
	ks, _ := heating.ParseKinds(c.Data.Kinds)
	return ks
}

// KindsOf parses an already validated tag list.
func KindsOf(tags []string) []heating.Kind {
	ks, _ := heating.ParseKinds(tags)
	return ks
}

// HeatingTable decodes the configured parameter table, falling back to
// the embedded default.
func (c *Config) HeatingTable() (*heating.Table, error) {
	data := defaultHeatingTable
	if c.Data.HeatingTable != "" {
		b, err := os.ReadFile(c.Data.HeatingTable)
		if err != nil {
			return nil, fmt.Errorf("read heating table: %w", err)
		}
		data = b
	}
	t, err := heating.DecodeTable(data)
	if err != nil {
		return nil, err
	}
	t.Weibull = c.Data.WeibullLifetimes
	return t, nil
}
