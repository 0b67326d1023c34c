package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportSocketCAN = "socketcan"
	TransportMemory    = "memory"

	BusPowertrain = "powertrain"
	BusDiagnostic = "diagnostic"
)

type Config struct {
	Buses   BusConfig     `yaml:"buses"`
	Signals SignalsConfig `yaml:"signals"`
	Engine  EngineConfig  `yaml:"engine"`
	Gearbox GearboxConfig `yaml:"gearbox"`
	OBD     OBDConfig     `yaml:"obd"`
	Gateway GatewayConfig `yaml:"gateway"`
	State   StateConfig   `yaml:"state"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

type BusConfig struct {
	Transport   string        `yaml:"transport"`
	Powertrain  string        `yaml:"powertrain"`
	Diagnostic  string        `yaml:"diagnostic"`
	RecvTimeout time.Duration `yaml:"recv_timeout"`
}

// SignalsConfig selects a signal table; both empty means the built-in one.
type SignalsConfig struct {
	CSV string `yaml:"csv"`
	DBC string `yaml:"dbc"`
}

type EngineConfig struct {
	Dt                 time.Duration `yaml:"dt"`
	IdleRPM            float64       `yaml:"idle_rpm"`
	MinRPM             float64       `yaml:"min_rpm"`
	RedlineRPM         float64       `yaml:"redline_rpm"`
	MaxSlipRPM         float64       `yaml:"max_slip_rpm"`
	AMax               float64       `yaml:"a_max"`
	BMax               float64       `yaml:"b_max"`
	Drag               float64       `yaml:"drag"`
	GearRatios         []float64     `yaml:"gear_ratios"`
	FinalDrive         float64       `yaml:"final_drive"`
	TireCircumferenceM float64       `yaml:"tire_circumference_m"`
	Alpha              float64       `yaml:"alpha"`
	InitialRPM         float64       `yaml:"initial_rpm"`
	CoolantStartC      float64       `yaml:"coolant_start_c"`
	CoolantMinC        float64       `yaml:"coolant_min_c"`
	CoolantMaxC        float64       `yaml:"coolant_max_c"`
	CoolantLoadDelta   float64       `yaml:"coolant_load_delta"`
	CoolantCruiseDelta float64       `yaml:"coolant_cruise_delta"`
	CoolantCoolDelta   float64       `yaml:"coolant_cool_delta"`
}

type GearboxConfig struct {
	Mode string        `yaml:"mode"` // D or S
	Dt   time.Duration `yaml:"dt"`
}

type OBDConfig struct {
	RequestID    uint32   `yaml:"request_id"`
	ResponseID   uint32   `yaml:"response_id"`
	InitialDTCs  []string `yaml:"initial_dtcs"`
	InjectFaults bool     `yaml:"inject_faults"`
}

type ForwardRule struct {
	From string   `yaml:"from"`
	To   string   `yaml:"to"`
	IDs  []uint32 `yaml:"ids"`
}

type GatewayConfig struct {
	Rules []ForwardRule `yaml:"rules"`
}

type StateConfig struct {
	PauseFile  string `yaml:"pause_file"`
	DriverFile string `yaml:"driver_file"`
	Scenario   string `yaml:"scenario"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Buses.Transport == "" {
		c.Buses.Transport = TransportSocketCAN
	}
	if c.Buses.Powertrain == "" {
		c.Buses.Powertrain = "vcan0"
	}
	if c.Buses.Diagnostic == "" {
		c.Buses.Diagnostic = "vcan1"
	}
	if c.Buses.RecvTimeout == 0 {
		c.Buses.RecvTimeout = 100 * time.Millisecond
	}

	e := &c.Engine
	setDuration(&e.Dt, 100*time.Millisecond)
	setFloat(&e.IdleRPM, 800)
	setFloat(&e.MinRPM, 600)
	setFloat(&e.RedlineRPM, 7000)
	setFloat(&e.MaxSlipRPM, 3000)
	setFloat(&e.AMax, 4.0)
	setFloat(&e.BMax, 6.0)
	setFloat(&e.Drag, 0.058)
	if len(e.GearRatios) == 0 {
		e.GearRatios = []float64{3.6, 2.1, 1.4, 1.0, 0.8, 0.7}
	}
	setFloat(&e.FinalDrive, 3.2)
	setFloat(&e.TireCircumferenceM, 2.05)
	setFloat(&e.Alpha, 0.35)
	setFloat(&e.InitialRPM, 900)
	setFloat(&e.CoolantStartC, 70)
	setFloat(&e.CoolantMinC, 60)
	setFloat(&e.CoolantMaxC, 110)
	setFloat(&e.CoolantLoadDelta, 0.03)
	setFloat(&e.CoolantCruiseDelta, 0.01)
	setFloat(&e.CoolantCoolDelta, 0.02)

	if c.Gearbox.Mode == "" {
		c.Gearbox.Mode = "D"
	}
	setDuration(&c.Gearbox.Dt, 100*time.Millisecond)

	if c.OBD.RequestID == 0 {
		c.OBD.RequestID = 0x7E0
	}
	if c.OBD.ResponseID == 0 {
		c.OBD.ResponseID = 0x7E8
	}
	if c.OBD.InitialDTCs == nil {
		c.OBD.InitialDTCs = []string{"P0128", "P0300"}
	}

	if len(c.Gateway.Rules) == 0 {
		c.Gateway.Rules = []ForwardRule{
			{From: BusPowertrain, To: BusDiagnostic, IDs: []uint32{0x100, 0x200, 0x300, c.OBD.ResponseID}},
			{From: BusDiagnostic, To: BusPowertrain, IDs: []uint32{c.OBD.RequestID}},
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "canlab-telemetry"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "canlab/vehicle"
	}
	setDuration(&c.MQTT.Interval, time.Second)
}

var dtcPattern = regexp.MustCompile(`^[PCBU]\d{4}$`)

func (c *Config) Validate() error {
	switch c.Buses.Transport {
	case TransportSocketCAN, TransportMemory:
	default:
		return fmt.Errorf("buses.transport must be %q or %q, got %q", TransportSocketCAN, TransportMemory, c.Buses.Transport)
	}
	if c.Buses.Powertrain == c.Buses.Diagnostic {
		return fmt.Errorf("buses.powertrain and buses.diagnostic must differ")
	}
	if c.Signals.CSV != "" && c.Signals.DBC != "" {
		return fmt.Errorf("signals: set csv or dbc, not both")
	}
	e := c.Engine
	if e.Dt <= 0 {
		return fmt.Errorf("engine.dt must be positive")
	}
	if e.MinRPM > e.IdleRPM || e.IdleRPM > e.RedlineRPM {
		return fmt.Errorf("engine: need min_rpm <= idle_rpm <= redline_rpm")
	}
	if e.Alpha <= 0 || e.Alpha > 1 {
		return fmt.Errorf("engine.alpha must be in (0,1], got %v", e.Alpha)
	}
	if e.TireCircumferenceM <= 0 {
		return fmt.Errorf("engine.tire_circumference_m must be positive")
	}
	if e.CoolantMinC > e.CoolantMaxC {
		return fmt.Errorf("engine: coolant_min_c above coolant_max_c")
	}
	if c.Gearbox.Mode != "D" && c.Gearbox.Mode != "S" {
		return fmt.Errorf("gearbox.mode must be D or S, got %q", c.Gearbox.Mode)
	}
	if c.OBD.RequestID > 0x7FF || c.OBD.ResponseID > 0x7FF {
		return fmt.Errorf("obd ids must fit in 11 bits")
	}
	for _, code := range c.OBD.InitialDTCs {
		if !dtcPattern.MatchString(code) {
			return fmt.Errorf("obd.initial_dtcs: invalid code %q", code)
		}
	}
	for i, r := range c.Gateway.Rules {
		if !isBus(r.From) || !isBus(r.To) || r.From == r.To {
			return fmt.Errorf("gateway.rules[%d]: invalid direction %s -> %s", i, r.From, r.To)
		}
		for _, id := range r.IDs {
			if id > 0x7FF {
				return fmt.Errorf("gateway.rules[%d]: id 0x%X does not fit in 11 bits", i, id)
			}
		}
	}
	return nil
}

// BusName maps a logical segment to its interface name.
func (c *Config) BusName(segment string) string {
	if segment == BusDiagnostic {
		return c.Buses.Diagnostic
	}
	return c.Buses.Powertrain
}

func isBus(s string) bool { return s == BusPowertrain || s == BusDiagnostic }

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v == 0 {
		*v = def
	}
}
