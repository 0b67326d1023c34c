package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// MaxStandardID is the largest 11-bit arbitration id.
const MaxStandardID = 0x7FF

// EncodeFrame packs physical values into a payload of the frame's DLC.
// Missing signals take their Default. Values outside [Min, Max] are not
// rejected; the raw integer is clamped to what the bit range can hold.
func (m *CANMap) EncodeFrame(frameID uint32, values map[string]float64) ([]byte, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, &EncodeError{ID: frameID, Err: ErrUnknownIdentifier}
	}
	return fd.encode(values), nil
}

func (fd *FrameDef) encode(values map[string]float64) []byte {
	out := make([]byte, fd.DLC)
	for _, s := range fd.Signals {
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		raw := clampRaw(math.Round((v-s.Offset)/s.Factor), s.BitLength)
		setBits(out, s.StartBit, s.BitLength, raw)
	}
	return out
}

// EncodeEinrideFrame produces a can.Frame ready to transmit.
func (m *CANMap) EncodeEinrideFrame(frameID uint32, values map[string]float64) (can.Frame, error) {
	payload, err := m.EncodeFrame(frameID, values)
	if err != nil {
		return can.Frame{}, err
	}
	return NewFrame(frameID, payload)
}

// EncodeByName is EncodeEinrideFrame keyed by message name.
func (m *CANMap) EncodeByName(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, &EncodeError{Err: err}
	}
	return NewFrame(fd.ID, fd.encode(values))
}

// DecodeFrame converts a payload into physical values:
// raw*Factor + Offset for every declared signal.
func (m *CANMap) DecodeFrame(frameID uint32, data []byte) (map[string]float64, error) {
	fd, err := m.FrameByID(frameID)
	if err != nil {
		return nil, &DecodeError{ID: frameID, Err: ErrUnknownIdentifier}
	}
	if need := fd.MinLength(); len(data) < need {
		return nil, &DecodeError{
			ID:  frameID,
			Err: fmt.Errorf("%w: need %d bytes, got %d", ErrTruncatedFrame, need, len(data)),
		}
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		raw := getBits(data, s.StartBit, s.BitLength)
		out[s.Name] = float64(raw)*s.Factor + s.Offset
	}
	return out, nil
}

// DecodeEinrideFrame decodes only the valid bytes of f.
func (m *CANMap) DecodeEinrideFrame(f can.Frame) (map[string]float64, error) {
	return m.DecodeFrame(f.ID, Payload(f))
}

// NewFrame builds a standard data frame. The payload is copied.
func NewFrame(id uint32, payload []byte) (can.Frame, error) {
	if id > MaxStandardID {
		return can.Frame{}, fmt.Errorf("id 0x%X does not fit in 11 bits", id)
	}
	if len(payload) > 8 {
		return can.Frame{}, fmt.Errorf("frame 0x%03X: payload of %d bytes exceeds 8", id, len(payload))
	}
	var f can.Frame
	f.ID = id
	f.Length = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, nil
}

// Payload returns the valid data bytes of f.
func Payload(f can.Frame) []byte {
	n := int(f.Length)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	return f.Data[:n]
}
