package obd

import (
	"bytes"
	"errors"
	"testing"
)

func TestHandleCurrentData(t *testing.T) {
	s, _ := NewSession()
	s.SetLive(Live{RPM: 3000, SpeedKph: 87.6, CoolantC: 92})

	cases := []struct {
		name string
		pid  byte
		want []byte
	}{
		{"rpm", PIDRPM, []byte{0x04, 0x41, 0x0C, 0x2E, 0xE0, 0, 0, 0}},
		{"speed", PIDSpeed, []byte{0x03, 0x41, 0x0D, 87, 0, 0, 0, 0}},
		{"coolant", PIDCoolant, []byte{0x03, 0x41, 0x05, 132, 0, 0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Handle(s, []byte{0x02, 0x01, tc.pid, 0, 0, 0, 0, 0})
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("got % X, want % X", got, tc.want)
			}
		})
	}
}

func TestHandleCurrentDataClamps(t *testing.T) {
	s, _ := NewSession()
	s.SetLive(Live{RPM: 20000, SpeedKph: 300, CoolantC: -60})

	rpm, _ := Handle(s, []byte{0x02, 0x01, PIDRPM})
	if raw := int(rpm[3])<<8 | int(rpm[4]); raw != 16383*4 {
		t.Fatalf("rpm raw = %d", raw)
	}
	speed, _ := Handle(s, []byte{0x02, 0x01, PIDSpeed})
	if speed[3] != 255 {
		t.Fatalf("speed = %d", speed[3])
	}
	cool, _ := Handle(s, []byte{0x02, 0x01, PIDCoolant})
	if cool[3] != 0 {
		t.Fatalf("coolant = %d", cool[3])
	}
}

func TestHandleDropsBadRequests(t *testing.T) {
	s, _ := NewSession("P0128")
	cases := []struct {
		name string
		req  []byte
		want error
	}{
		{"empty", nil, ErrMalformedRequest},
		{"one byte", []byte{0x02}, ErrMalformedRequest},
		{"zero length", []byte{0x00, 0x03}, ErrMalformedRequest},
		{"mode 01 without pid", []byte{0x01, 0x01, 0x0C}, ErrMalformedRequest},
		{"mode 01 short", []byte{0x02, 0x01}, ErrMalformedRequest},
		{"unsupported pid", []byte{0x02, 0x01, 0x11}, ErrUnsupportedPID},
		{"unknown mode", []byte{0x01, 0x09}, ErrUnknownMode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := Handle(s, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if resp != nil {
				t.Fatalf("dropped request produced % X", resp)
			}
		})
	}
	if len(s.Codes()) != 1 {
		t.Fatalf("bad requests changed the DTC set: %v", s.Codes())
	}
}

func TestHandleReadDTCs(t *testing.T) {
	s, _ := NewSession("P0128", "P0300", "C0101", "U0100")
	got, err := Handle(s, []byte{0x01, 0x03})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x08, 0x43, 0x00, 0x01, 0x28, 0x03, 0x00, 0x41}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
	if codes := ParseDTCs(got); len(codes) != 2 || codes[0] != "P0128" || codes[1] != "P0300" {
		t.Fatalf("parsed %v from % X", codes, got)
	}

	s.Clear()
	got, _ = Handle(s, []byte{0x01, 0x03})
	if !bytes.Equal(got, []byte{0x02, 0x43, 0, 0, 0, 0, 0, 0}) {
		t.Fatalf("empty set response % X", got)
	}
}

func TestHandleClearAlwaysSucceeds(t *testing.T) {
	for _, initial := range [][]string{nil, {"P0128"}, {"P0128", "P0300", "B1200"}} {
		s, _ := NewSession(initial...)
		got, err := Handle(s, []byte{0x01, 0x04, 0, 0, 0, 0, 0, 0})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{0x02, 0x44, 0, 0, 0, 0, 0, 0}) {
			t.Fatalf("got % X", got)
		}
		if len(s.Codes()) != 0 {
			t.Fatalf("codes left after clear: %v", s.Codes())
		}
	}
}

func TestDecodePID(t *testing.T) {
	pid, v, err := DecodePID([]byte{0x04, 0x41, 0x0C, 0x2E, 0xE0, 0, 0, 0})
	if err != nil || pid != PIDRPM || v != 3000 {
		t.Fatalf("rpm: pid=%X v=%v err=%v", pid, v, err)
	}
	if _, v, _ := DecodePID([]byte{0x03, 0x41, 0x05, 130, 0, 0, 0, 0}); v != 90 {
		t.Fatalf("coolant = %v", v)
	}
	if _, _, err := DecodePID([]byte{0x02, 0x43, 0, 0}); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("expected rejection, got %v", err)
	}
}
