package utils

import (
	"math"

	"go.einride.tech/can"
)

// Message is a decoded frame of a known type: EngineData, WheelSpeeds or
// GearboxData.
type Message interface {
	FrameID() uint32
	values() map[string]float64
}

type EngineData struct {
	RPM      float64 `json:"rpm"`
	SpeedKph float64 `json:"speed_kph"`
	CoolantC float64 `json:"coolant_c"`
}

func (EngineData) FrameID() uint32 { return EngineDataID }

func (e EngineData) values() map[string]float64 {
	return map[string]float64{SigRPM: e.RPM, SigSpeed: e.SpeedKph, SigCoolant: e.CoolantC}
}

type WheelSpeeds struct {
	FL float64 `json:"fl"`
	FR float64 `json:"fr"`
	RL float64 `json:"rl"`
	RR float64 `json:"rr"`
}

func (WheelSpeeds) FrameID() uint32 { return WheelSpeedsID }

func (w WheelSpeeds) values() map[string]float64 {
	return map[string]float64{
		SigWheelSpeedFL: w.FL, SigWheelSpeedFR: w.FR,
		SigWheelSpeedRL: w.RL, SigWheelSpeedRR: w.RR,
	}
}

type GearboxData struct {
	Gear            int     `json:"gear"`
	TargetGear      int     `json:"target_gear"`
	Clutch1Tq       float64 `json:"clutch1_tq"`
	Clutch2Tq       float64 `json:"clutch2_tq"`
	OilTempC        float64 `json:"oil_temp_c"`
	ShiftInProgress bool    `json:"shift_in_progress"`
}

func (GearboxData) FrameID() uint32 { return GearboxDataID }

func (g GearboxData) values() map[string]float64 {
	shift := 0.0
	if g.ShiftInProgress {
		shift = 1
	}
	return map[string]float64{
		SigGear: float64(g.Gear), SigTargetGear: float64(g.TargetGear),
		SigClutch1Tq: g.Clutch1Tq, SigClutch2Tq: g.Clutch2Tq,
		SigOilTemp: g.OilTempC, SigShiftInProgress: shift,
	}
}

// Encode packs a typed message with the database's layout for its id.
func (m *CANMap) Encode(msg Message) (can.Frame, error) {
	return m.EncodeEinrideFrame(msg.FrameID(), msg.values())
}

// DecodeMessage decodes f into its typed message. Ids the database knows
// but that have no typed form still fail with ErrUnknownIdentifier.
func (m *CANMap) DecodeMessage(f can.Frame) (Message, error) {
	switch f.ID {
	case EngineDataID:
		return m.DecodeEngineData(f)
	case WheelSpeedsID:
		return m.DecodeWheelSpeeds(f)
	case GearboxDataID:
		return m.DecodeGearboxData(f)
	}
	return nil, &DecodeError{ID: f.ID, Err: ErrUnknownIdentifier}
}

func (m *CANMap) DecodeEngineData(f can.Frame) (EngineData, error) {
	v, err := m.decodeAs(EngineDataID, f)
	if err != nil {
		return EngineData{}, err
	}
	return EngineData{RPM: v[SigRPM], SpeedKph: v[SigSpeed], CoolantC: v[SigCoolant]}, nil
}

func (m *CANMap) DecodeWheelSpeeds(f can.Frame) (WheelSpeeds, error) {
	v, err := m.decodeAs(WheelSpeedsID, f)
	if err != nil {
		return WheelSpeeds{}, err
	}
	return WheelSpeeds{
		FL: v[SigWheelSpeedFL], FR: v[SigWheelSpeedFR],
		RL: v[SigWheelSpeedRL], RR: v[SigWheelSpeedRR],
	}, nil
}

func (m *CANMap) DecodeGearboxData(f can.Frame) (GearboxData, error) {
	v, err := m.decodeAs(GearboxDataID, f)
	if err != nil {
		return GearboxData{}, err
	}
	return GearboxData{
		Gear:            int(math.Round(v[SigGear])),
		TargetGear:      int(math.Round(v[SigTargetGear])),
		Clutch1Tq:       v[SigClutch1Tq],
		Clutch2Tq:       v[SigClutch2Tq],
		OilTempC:        v[SigOilTemp],
		ShiftInProgress: v[SigShiftInProgress] >= 0.5,
	}, nil
}

func (m *CANMap) decodeAs(id uint32, f can.Frame) (map[string]float64, error) {
	if f.ID != id {
		return nil, &DecodeError{ID: f.ID, Err: ErrUnknownIdentifier}
	}
	return m.DecodeEinrideFrame(f)
}
