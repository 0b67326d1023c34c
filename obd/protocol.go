package obd

import (
	"errors"
	"fmt"
)

// Service modes and their positive response codes.
const (
	ModeCurrentData byte = 0x01
	ModeReadDTCs    byte = 0x03
	ModeClearDTCs   byte = 0x04

	responseOffset byte = 0x40
)

// Mode 0x01 parameter ids.
const (
	PIDCoolant byte = 0x05
	PIDRPM     byte = 0x0C
	PIDSpeed   byte = 0x0D
)

// MaxDTCsPerResponse is how many codes fit in one single-frame response.
const MaxDTCsPerResponse = 3

var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnsupportedPID   = errors.New("unsupported PID")
	ErrUnknownMode      = errors.New("unknown mode")
)

// Handle answers a single request payload against the session. The returned
// payload is always 8 bytes. Requests that get no answer return an error
// wrapping ErrMalformedRequest, ErrUnsupportedPID or ErrUnknownMode.
func Handle(s *Session, req []byte) ([]byte, error) {
	if len(req) < 2 || req[0] < 1 {
		return nil, fmt.Errorf("%w: header % X", ErrMalformedRequest, req)
	}
	switch mode := req[1]; mode {
	case ModeCurrentData:
		return currentData(s.Live(), req)
	case ModeReadDTCs:
		return readDTCs(s.Codes()), nil
	case ModeClearDTCs:
		s.Clear()
		return []byte{0x02, ModeClearDTCs + responseOffset, 0, 0, 0, 0, 0, 0}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownMode, mode)
	}
}

func currentData(l Live, req []byte) ([]byte, error) {
	if len(req) < 3 || req[0] < 2 {
		return nil, fmt.Errorf("%w: mode 01 needs a PID", ErrMalformedRequest)
	}
	pid := req[2]
	resp := make([]byte, 8)
	resp[1] = ModeCurrentData + responseOffset
	resp[2] = pid

	switch pid {
	case PIDRPM:
		raw := clampInt(int(l.RPM), 0, 16383) * 4
		resp[0] = 0x04
		resp[3] = byte(raw >> 8)
		resp[4] = byte(raw)
	case PIDSpeed:
		resp[0] = 0x03
		resp[3] = byte(clampInt(int(l.SpeedKph), 0, 255))
	case PIDCoolant:
		resp[0] = 0x03
		resp[3] = byte(clampInt(int(l.CoolantC)+40, 0, 255))
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedPID, pid)
	}
	return resp, nil
}

// readDTCs reports up to MaxDTCsPerResponse codes. The declared length counts
// every reported code even though the last B byte of a third code does not
// fit in the frame.
func readDTCs(codes []string) []byte {
	resp := make([]byte, 8)
	resp[1] = ModeReadDTCs + responseOffset
	if len(codes) > MaxDTCsPerResponse {
		codes = codes[:MaxDTCsPerResponse]
	}
	resp[0] = byte(2 + 2*len(codes))
	for i, code := range codes {
		a, b, _ := EncodeDTC(code)
		idx := 3 + 2*i
		resp[idx] = a
		if idx+1 < len(resp) {
			resp[idx+1] = b
		}
	}
	return resp
}

// DecodePID turns a mode 0x01 response payload into its physical value.
func DecodePID(resp []byte) (pid byte, value float64, err error) {
	if len(resp) < 4 || resp[1] != ModeCurrentData+responseOffset {
		return 0, 0, fmt.Errorf("%w: not a mode 01 response", ErrMalformedRequest)
	}
	pid = resp[2]
	switch pid {
	case PIDRPM:
		if len(resp) < 5 {
			return pid, 0, fmt.Errorf("%w: short RPM response", ErrMalformedRequest)
		}
		return pid, float64(int(resp[3])<<8|int(resp[4])) / 4, nil
	case PIDSpeed:
		return pid, float64(resp[3]), nil
	case PIDCoolant:
		return pid, float64(resp[3]) - 40, nil
	default:
		return pid, 0, fmt.Errorf("%w: 0x%02X", ErrUnsupportedPID, pid)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
