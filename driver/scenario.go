package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Scenario is a scripted drive: pedal positions per time segment.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Duration float64           `json:"duration_s"`
	Loop     bool              `json:"loop"`
	Defaults ScenarioPedals    `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
	Cruise   *CruiseConfig     `json:"cruise,omitempty"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ScenarioPedals struct {
	Throttle float64 `json:"throttle_pct"`
	Brake    float64 `json:"brake_pct"`
}

// ScenarioSegment applies from T0 (inclusive) to T1 (exclusive); T1 < 0
// runs to the end. Cruise segments hand control to the PID driver.
type ScenarioSegment struct {
	T0       float64 `json:"t0"`
	T1       float64 `json:"t1"`
	Throttle float64 `json:"throttle_pct,omitempty"`
	Brake    float64 `json:"brake_pct,omitempty"`
	Cruise   bool    `json:"cruise,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := scen.Validate(); err != nil {
		return nil, err
	}
	return &scen, nil
}

func (s *Scenario) Validate() error {
	if s.Duration <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Duration)
	}
	for i, seg := range s.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return fmt.Errorf("segment %d: t1 %.2f not after t0 %.2f", i, seg.T1, seg.T0)
		}
		if seg.Cruise && s.Cruise == nil {
			return fmt.Errorf("segment %d: cruise segment requires cruise config", i)
		}
	}
	if s.Cruise != nil && s.Cruise.TargetKph <= 0 {
		return fmt.Errorf("invalid cruise target_kph: %f", s.Cruise.TargetKph)
	}
	return nil
}

// Eval returns the segment active at t, or nil for the defaults.
func (s *Scenario) Eval(t float64) *ScenarioSegment {
	for i := range s.Segments {
		seg := &s.Segments[i]
		t1 := seg.T1
		if t1 < 0 {
			t1 = s.Duration
		}
		if t >= seg.T0 && t < t1 {
			return seg
		}
	}
	return nil
}

// ScenarioInput plays a Scenario against simulated time. Time advances
// through Observe, so a paused engine also pauses the script.
type ScenarioInput struct {
	scen   *Scenario
	cruise *Cruise

	mu    sync.Mutex
	t     float64
	speed float64
}

func NewScenarioInput(s *Scenario) *ScenarioInput {
	in := &ScenarioInput{scen: s}
	if s.Cruise != nil {
		in.cruise = NewCruise(*s.Cruise)
	}
	return in
}

// Elapsed is the simulated time in seconds.
func (in *ScenarioInput) Elapsed() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.t
}

func (in *ScenarioInput) Read() (Pedals, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	t := in.t
	if t >= in.scen.Duration {
		if !in.scen.Loop {
			return Pedals{}, nil
		}
		t = 0
		in.t = 0
	}

	seg := in.scen.Eval(t)
	if seg == nil {
		return Pedals{Throttle: in.scen.Defaults.Throttle, Brake: in.scen.Defaults.Brake}.Clamped(), nil
	}
	if seg.Cruise {
		return in.cruise.Pedals(), nil
	}
	return Pedals{Throttle: seg.Throttle, Brake: seg.Brake}.Clamped(), nil
}

func (in *ScenarioInput) Observe(speedKph, dt float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.t += dt
	in.speed = speedKph
	if in.cruise == nil {
		return
	}
	if seg := in.scen.Eval(in.t); seg != nil && seg.Cruise {
		in.cruise.Update(speedKph, dt)
	} else {
		in.cruise.Reset()
	}
}
