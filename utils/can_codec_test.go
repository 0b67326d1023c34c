package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := VehicleMap()

	cases := []struct {
		id     uint32
		values map[string]float64
	}{
		{EngineDataID, map[string]float64{SigRPM: 3000, SigSpeed: 88, SigCoolant: 91}},
		{EngineDataID, map[string]float64{SigRPM: 0, SigSpeed: 0, SigCoolant: -40}},
		{WheelSpeedsID, map[string]float64{SigWheelSpeedFL: 10, SigWheelSpeedFR: 11, SigWheelSpeedRL: 250, SigWheelSpeedRR: 0}},
		{GearboxDataID, map[string]float64{SigGear: 3, SigTargetGear: 4, SigClutch1Tq: 55, SigClutch2Tq: 45, SigOilTemp: 85, SigShiftInProgress: 1}},
	}
	for _, tc := range cases {
		payload, err := m.EncodeFrame(tc.id, tc.values)
		if err != nil {
			t.Fatalf("encode 0x%X: %v", tc.id, err)
		}
		got, err := m.DecodeFrame(tc.id, payload)
		if err != nil {
			t.Fatalf("decode 0x%X: %v", tc.id, err)
		}
		for name, want := range tc.values {
			if got[name] != want {
				t.Fatalf("0x%X %s: expected %v, got %v", tc.id, name, want, got[name])
			}
		}
	}
}

func TestEngineDataLayout(t *testing.T) {
	m := VehicleMap()
	f, err := m.Encode(EngineData{RPM: 3000, SpeedKph: 100, CoolantC: 90})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x02, 0xEE, 100, 130, 0, 0, 0, 0}
	if f.ID != EngineDataID || f.Length != 8 {
		t.Fatalf("unexpected header id=0x%X len=%d", f.ID, f.Length)
	}
	if string(Payload(f)) != string(want) {
		t.Fatalf("expected % X, got % X", want, Payload(f))
	}
}

func TestEncodeQuantizesToScale(t *testing.T) {
	m := VehicleMap()
	payload, _ := m.EncodeFrame(EngineDataID, map[string]float64{SigRPM: 803.2})
	got, _ := m.DecodeFrame(EngineDataID, payload)
	if got[SigRPM] != 804 {
		t.Fatalf("expected 804 rpm after quantization, got %v", got[SigRPM])
	}
}

func TestEncodeClampsAtRawRange(t *testing.T) {
	m := VehicleMap()

	payload, err := m.EncodeFrame(EngineDataID, map[string]float64{SigRPM: 1e6, SigSpeed: -20, SigCoolant: 500})
	if err != nil {
		t.Fatalf("out of range values must not be rejected: %v", err)
	}
	got, _ := m.DecodeFrame(EngineDataID, payload)
	if got[SigRPM] != 65535*4 {
		t.Fatalf("rpm should clamp to raw max, got %v", got[SigRPM])
	}
	if got[SigSpeed] != 0 {
		t.Fatalf("speed should clamp to 0, got %v", got[SigSpeed])
	}
	if got[SigCoolant] != 215 {
		t.Fatalf("coolant should clamp to raw 255, got %v", got[SigCoolant])
	}
}

func TestEncodeUsesDefaults(t *testing.T) {
	m := VehicleMap()
	payload, _ := m.EncodeFrame(EngineDataID, nil)
	got, _ := m.DecodeFrame(EngineDataID, payload)
	if got[SigCoolant] != 70 {
		t.Fatalf("missing coolant should take default 70, got %v", got[SigCoolant])
	}
}

func TestDecodeErrors(t *testing.T) {
	m := VehicleMap()

	_, err := m.DecodeFrame(0x123, make([]byte, 8))
	if !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.ID != 0x123 {
		t.Fatalf("expected DecodeError for 0x123, got %v", err)
	}

	_, err = m.DecodeFrame(EngineDataID, []byte{0x01, 0x02, 0x03})
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}

	// Only the first four bytes carry signals.
	if _, err := m.DecodeFrame(EngineDataID, []byte{0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatalf("4 bytes cover every EngineData signal: %v", err)
	}

	if _, err := m.EncodeFrame(0x555, nil); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected encode ErrUnknownIdentifier, got %v", err)
	}
}

func TestDecodeMessageTyped(t *testing.T) {
	m := VehicleMap()
	f, _ := m.Encode(GearboxData{Gear: 2, TargetGear: 3, OilTempC: 75, ShiftInProgress: true})

	msg, err := m.DecodeMessage(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	g, ok := msg.(GearboxData)
	if !ok {
		t.Fatalf("expected GearboxData, got %T", msg)
	}
	if g.Gear != 2 || g.TargetGear != 3 || g.OilTempC != 75 || !g.ShiftInProgress {
		t.Fatalf("unexpected gearbox data: %+v", g)
	}

	if _, err := m.DecodeEngineData(f); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("decoding gearbox frame as engine data should fail, got %v", err)
	}
}

func TestBitHelpersCrossByteBoundary(t *testing.T) {
	data := make([]byte, 8)
	setBits(data, 5, 10, 0x3FF)
	if data[0] != 0x07 || data[1] != 0xFE {
		t.Fatalf("unexpected packing: % X", data)
	}
	if v := getBits(data, 5, 10); v != 0x3FF {
		t.Fatalf("expected 0x3FF, got 0x%X", v)
	}
	setBits(data, 5, 10, 0)
	if data[0] != 0 || data[1] != 0 {
		t.Fatalf("clearing should zero the range: % X", data)
	}
}

func TestNewCANMapValidation(t *testing.T) {
	_, err := NewCANMap(FrameDef{ID: 0x100, Name: "Bad", DLC: 2, Signals: []SignalDef{
		{Name: "X", StartBit: 8, BitLength: 16, Factor: 1},
	}})
	if err == nil || !strings.Contains(err.Error(), "exceed dlc") {
		t.Fatalf("expected dlc overflow error, got %v", err)
	}
	_, err = NewCANMap(FrameDef{ID: 0x900, Name: "Wide", DLC: 8})
	if err == nil {
		t.Fatalf("expected 11-bit id error")
	}
}

func TestNewFrameRejectsLongPayload(t *testing.T) {
	if _, err := NewFrame(0x100, make([]byte, 9)); err == nil {
		t.Fatalf("expected error for 9-byte payload")
	}
	f, err := NewFrame(0x7E0, []byte{0x01, 0x04})
	if err != nil || f.Length != 2 || f.Data[1] != 0x04 {
		t.Fatalf("unexpected frame %+v err=%v", f, err)
	}
}
