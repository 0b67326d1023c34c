package obd

import (
	"fmt"
	"sync"
)

// Session holds the responder's stored DTCs and the live values it reports.
// It is safe for concurrent use.
type Session struct {
	mu   sync.Mutex
	dtcs []string
	live Live
}

// Live is the last engine state seen on the bus.
type Live struct {
	RPM      float64
	SpeedKph float64
	CoolantC float64
}

func NewSession(initial ...string) (*Session, error) {
	s := &Session{}
	for _, code := range initial {
		if err := s.Add(code); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add stores code unless it is already present. Insertion order is kept.
func (s *Session) Add(code string) error {
	if !ValidDTC(code) {
		return fmt.Errorf("%w: %q", ErrInvalidDTC, code)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.dtcs {
		if c == code {
			return nil
		}
	}
	s.dtcs = append(s.dtcs, code)
	return nil
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.dtcs = nil
	s.mu.Unlock()
}

// Codes returns a snapshot of the stored DTCs.
func (s *Session) Codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.dtcs))
	copy(out, s.dtcs)
	return out
}

func (s *Session) Live() Live {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Session) SetLive(l Live) {
	s.mu.Lock()
	s.live = l
	s.mu.Unlock()
}
