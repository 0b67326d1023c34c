package utils

import (
	"fmt"
	"sort"
)

// SignalDef describes one named physical value packed into a frame payload.
// Bits are numbered from the most significant bit of byte 0 (bit 0) towards
// the least significant bit of byte 7 (bit 63); a signal occupies the
// contiguous big-endian range [StartBit, StartBit+BitLength).
type SignalDef struct {
	Name      string
	StartBit  int
	BitLength int
	Factor    float64
	Offset    float64
	Min       float64
	Max       float64
	Default   float64
	Unit      string
	Comment   string
}

// MaxRaw is the largest raw integer the signal can carry.
func (s SignalDef) MaxRaw() uint64 {
	if s.BitLength >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << s.BitLength) - 1
}

func (s SignalDef) endBit() int { return s.StartBit + s.BitLength }

type FrameDef struct {
	ID      uint32
	Name    string
	DLC     int
	CycleMS int
	Signals []SignalDef
}

// MinLength is the number of payload bytes needed to cover every signal.
func (fd *FrameDef) MinLength() int {
	end := 0
	for _, s := range fd.Signals {
		if e := s.endBit(); e > end {
			end = e
		}
	}
	return (end + 7) / 8
}

func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

// CANMap is the signal database. Build it with NewCANMap, LoadCANMap or
// LoadDBC; it is never mutated afterwards and is safe to share.
type CANMap struct {
	byID   map[uint32]*FrameDef
	byName map[string]*FrameDef
}

// NewCANMap validates the definitions and indexes them by id and name.
func NewCANMap(defs ...FrameDef) (*CANMap, error) {
	m := &CANMap{
		byID:   make(map[uint32]*FrameDef, len(defs)),
		byName: make(map[string]*FrameDef, len(defs)),
	}
	for i := range defs {
		fd := defs[i]
		if fd.ID > MaxStandardID {
			return nil, fmt.Errorf("frame %s: id 0x%X does not fit in 11 bits", fd.Name, fd.ID)
		}
		if fd.DLC <= 0 || fd.DLC > 8 {
			return nil, fmt.Errorf("frame %s (0x%X): invalid dlc %d", fd.Name, fd.ID, fd.DLC)
		}
		if _, dup := m.byID[fd.ID]; dup {
			return nil, fmt.Errorf("frame %s: duplicate id 0x%X", fd.Name, fd.ID)
		}
		signals := make([]SignalDef, len(fd.Signals))
		copy(signals, fd.Signals)
		for _, s := range signals {
			if s.BitLength <= 0 || s.BitLength > 64 {
				return nil, fmt.Errorf("frame %s signal %s: invalid bit_length %d", fd.Name, s.Name, s.BitLength)
			}
			if s.StartBit < 0 || s.endBit() > fd.DLC*8 {
				return nil, fmt.Errorf("frame %s signal %s: bits [%d,%d) exceed dlc %d",
					fd.Name, s.Name, s.StartBit, s.endBit(), fd.DLC)
			}
			if s.Factor == 0 {
				return nil, fmt.Errorf("frame %s signal %s: factor must not be zero", fd.Name, s.Name)
			}
		}
		sort.SliceStable(signals, func(i, j int) bool { return signals[i].StartBit < signals[j].StartBit })
		fd.Signals = signals
		m.byID[fd.ID] = &fd
		m.byName[fd.Name] = &fd
	}
	return m, nil
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.byName))
	for k := range m.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("frame %q (available: %v): %w", name, m.FrameNames(), ErrUnknownIdentifier)
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("frame id 0x%X: %w", id, ErrUnknownIdentifier)
	}
	return fd, nil
}

// Has reports whether a definition exists for id.
func (m *CANMap) Has(id uint32) bool {
	_, ok := m.byID[id]
	return ok
}
