package driver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver_state.txt")
	if err := os.WriteFile(path, []byte("THROTTLE=140\nBRAKE=-3\njunk\n"), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := FileInput{Path: path}.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if p.Throttle != 100 || p.Brake != 0 {
		t.Fatalf("pedals should be clamped, got %+v", p)
	}

	if err := WriteFile(path, Pedals{Throttle: 35, Brake: 10}); err != nil {
		t.Fatal(err)
	}
	p, _ = FileInput{Path: path}.Read()
	if p.Throttle != 35 || p.Brake != 10 {
		t.Fatalf("unexpected pedals %+v", p)
	}
}

func TestFileInputMissing(t *testing.T) {
	if _, err := (FileInput{Path: filepath.Join(t.TempDir(), "none")}).Read(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(50, 0)
	p, _ := s.Read()
	if p.Throttle != 50 {
		t.Fatalf("unexpected %+v", p)
	}
	s.Set(Pedals{Brake: 250})
	p, _ = s.Read()
	if p.Brake != 100 || p.Throttle != 0 {
		t.Fatalf("unexpected %+v", p)
	}
}

func TestScenarioSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drive.json")
	body := `{
  "meta": {"name": "launch"},
  "duration_s": 3,
  "defaults": {"throttle_pct": 0, "brake_pct": 5},
  "segments": [
    {"t0": 0, "t1": 1, "throttle_pct": 60},
    {"t0": 2, "t1": -1, "brake_pct": 40}
  ]
}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	scen, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	in := NewScenarioInput(scen)

	expect := func(throttle, brake float64) {
		t.Helper()
		p, _ := in.Read()
		if p.Throttle != throttle || p.Brake != brake {
			t.Fatalf("t=%.1f: expected %v/%v, got %+v", in.Elapsed(), throttle, brake, p)
		}
	}
	expect(60, 0)
	in.Observe(0, 1.5)
	expect(0, 5)
	in.Observe(0, 1.0)
	expect(0, 40)
	in.Observe(0, 1.0)
	expect(0, 0)
}

func TestScenarioValidate(t *testing.T) {
	bad := []Scenario{
		{Duration: 0},
		{Duration: 5, Segments: []ScenarioSegment{{T0: 2, T1: 1}}},
		{Duration: 5, Segments: []ScenarioSegment{{T0: 0, T1: 1, Cruise: true}}},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestCruiseDirection(t *testing.T) {
	c := NewCruise(CruiseConfig{TargetKph: 50, Kp: 2, Ki: 0.1})

	c.Update(20, 0.1)
	if p := c.Pedals(); p.Throttle <= 0 || p.Brake != 0 {
		t.Fatalf("below target should press throttle, got %+v", p)
	}
	c.Update(90, 0.1)
	if p := c.Pedals(); p.Brake <= 0 || p.Throttle != 0 {
		t.Fatalf("above target should brake, got %+v", p)
	}
	c.Update(-1000, 0.1)
	if p := c.Pedals(); p.Throttle != 100 {
		t.Fatalf("output should saturate at 100, got %+v", p)
	}
	c.Reset()
	if p := c.Pedals(); p.Throttle != 0 || p.Brake != 0 {
		t.Fatalf("reset should release pedals, got %+v", p)
	}
}

func TestSampleScenario(t *testing.T) {
	scen, err := LoadScenario(filepath.Join("..", "config", "scenarios", "urban.json"))
	if err != nil {
		t.Fatal(err)
	}
	if scen.Cruise == nil || scen.Cruise.TargetKph != 50 || !scen.Loop {
		t.Fatalf("scenario %+v", scen)
	}
	if seg := scen.Eval(30); seg == nil || !seg.Cruise {
		t.Fatalf("t=30 should be cruising, got %+v", seg)
	}
	in := NewScenarioInput(scen)
	in.Observe(0, 10)
	if p, _ := in.Read(); p.Throttle != 45 {
		t.Fatalf("t=10 pedals %+v", p)
	}
}
