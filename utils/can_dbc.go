package utils

import (
	"fmt"
	"os"

	"go.einride.tech/can/pkg/dbc"
)

// LoadDBC builds the signal database from a DBC file. Only standard ids and
// unsigned signals are accepted. Motorola signals map directly onto the
// MSB-first bit numbering; Intel signals must fit inside a single byte.
func LoadDBC(path string) (*CANMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDBC(path, data)
}

func ParseDBC(name string, data []byte) (*CANMap, error) {
	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, fmt.Errorf("parse dbc: %w", err)
	}

	var defs []FrameDef
	for _, def := range p.Defs() {
		msg, ok := def.(*dbc.MessageDef)
		if !ok {
			continue
		}
		if msg.MessageID.IsExtended() {
			return nil, fmt.Errorf("message %s: extended ids are not supported", msg.Name)
		}
		fd := FrameDef{
			ID:   msg.MessageID.ToCAN(),
			Name: string(msg.Name),
			DLC:  int(msg.Size),
		}
		for _, s := range msg.Signals {
			if s.IsSigned {
				return nil, fmt.Errorf("message %s signal %s: signed signals are not supported", msg.Name, s.Name)
			}
			start, err := dbcStartBit(s)
			if err != nil {
				return nil, fmt.Errorf("message %s signal %s: %w", msg.Name, s.Name, err)
			}
			fd.Signals = append(fd.Signals, SignalDef{
				Name:      string(s.Name),
				StartBit:  start,
				BitLength: int(s.Size),
				Factor:    s.Factor,
				Offset:    s.Offset,
				Min:       s.Minimum,
				Max:       s.Maximum,
				Unit:      s.Unit,
			})
		}
		defs = append(defs, fd)
	}
	return NewCANMap(defs...)
}

// dbcStartBit converts a DBC start bit (sawtooth numbering, bit 7 of byte 0
// is the MSB) to the MSB-first linear position of the signal's first bit.
func dbcStartBit(s dbc.SignalDef) (int, error) {
	sb := int(s.StartBit)
	if s.IsBigEndian {
		return (sb/8)*8 + (7 - sb%8), nil
	}
	lsb := sb % 8
	if lsb+int(s.Size) > 8 {
		return 0, fmt.Errorf("little-endian signal spans bytes")
	}
	return (sb/8)*8 + (7 - (lsb + int(s.Size) - 1)), nil
}
