package telemetry

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.einride.tech/can"

	"canlab/utils"
)

// VehicleState is the decoded view of the bus published to dashboards.
type VehicleState struct {
	Timestamp time.Time          `json:"timestamp"`
	Engine    *utils.EngineData  `json:"engine,omitempty"`
	Wheels    *utils.WheelSpeeds `json:"wheels,omitempty"`
	Gearbox   *utils.GearboxData `json:"gearbox,omitempty"`
	Frames    uint64             `json:"frames"`
}

// Snapshot keeps the latest value of every known message.
type Snapshot struct {
	cmap *utils.CANMap

	mu    sync.RWMutex
	state VehicleState
}

func NewSnapshot(cmap *utils.CANMap) *Snapshot {
	return &Snapshot{cmap: cmap}
}

// Update folds f into the snapshot. Frames without a typed message are
// ignored; malformed known frames are returned as errors.
func (s *Snapshot) Update(f can.Frame) error {
	if !s.cmap.Has(f.ID) {
		return nil
	}
	msg, err := s.cmap.DecodeMessage(f)
	if errors.Is(err, utils.ErrUnknownIdentifier) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Frames++
	switch m := msg.(type) {
	case utils.EngineData:
		s.state.Engine = &m
	case utils.WheelSpeeds:
		s.state.Wheels = &m
	case utils.GearboxData:
		s.state.Gearbox = &m
	}
	return nil
}

func (s *Snapshot) State() VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// JSON encodes the current state stamped with now.
func (s *Snapshot) JSON(now time.Time) ([]byte, error) {
	st := s.State()
	st.Timestamp = now
	return json.Marshal(st)
}
