// Package driver supplies throttle and brake pedal positions to the engine
// ECU once per tick.
package driver

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Pedals holds pedal positions in percent.
type Pedals struct {
	Throttle float64
	Brake    float64
}

// Clamped limits both pedals to [0, 100].
func (p Pedals) Clamped() Pedals {
	return Pedals{Throttle: clampPct(p.Throttle), Brake: clampPct(p.Brake)}
}

// Input is read once per tick. Callers treat an error as released pedals.
type Input interface {
	Read() (Pedals, error)
}

// Feedback is implemented by inputs that react to the vehicle, such as the
// cruise driver. The engine reports its speed after every tick.
type Feedback interface {
	Observe(speedKph, dt float64)
}

// FileInput reads THROTTLE=<n> and BRAKE=<n> lines written by a dashboard.
type FileInput struct {
	Path string
}

func (f FileInput) Read() (Pedals, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return Pedals{}, err
	}
	defer file.Close()

	var p Pedals
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "THROTTLE":
			p.Throttle = n
		case "BRAKE":
			p.Brake = n
		}
	}
	if err := sc.Err(); err != nil {
		return Pedals{}, err
	}
	return p.Clamped(), nil
}

// WriteFile stores p in the format FileInput reads.
func WriteFile(path string, p Pedals) error {
	body := "THROTTLE=" + strconv.Itoa(int(p.Throttle)) + "\nBRAKE=" + strconv.Itoa(int(p.Brake)) + "\n"
	return os.WriteFile(path, []byte(body), 0644)
}

// Static returns whatever was last Set. The zero value is released pedals.
type Static struct {
	mu sync.Mutex
	p  Pedals
}

func NewStatic(throttle, brake float64) *Static {
	return &Static{p: Pedals{Throttle: throttle, Brake: brake}}
}

func (s *Static) Set(p Pedals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

func (s *Static) Read() (Pedals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Clamped(), nil
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
