package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var csvColumns = []string{
	"frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
}

// LoadCANMap reads a signal table in can_map.csv format, one signal per row.
func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCANMap(f)
}

func ReadCANMap(in io.Reader) (*CANMap, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range csvColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column: %q", k)
		}
	}

	var order []uint32
	frames := map[uint32]*FrameDef{}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		col := func(k string) string { return strings.TrimSpace(rec[idx[k]]) }

		frameID, err := parseHexOrDecUint32(col("frame_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid frame_id %q: %w", col("frame_id"), err)
		}
		frameName := col("frame_name")
		dlc := mustInt(col("dlc"))

		sig := SignalDef{
			Name:      col("signal_name"),
			StartBit:  mustInt(col("start_bit")),
			BitLength: mustInt(col("bit_length")),
			Factor:    mustFloat(col("factor")),
			Offset:    mustFloat(col("offset")),
			Min:       mustFloat(col("min")),
			Max:       mustFloat(col("max")),
			Default:   mustFloat(col("default")),
			Unit:      col("unit"),
			Comment:   col("comment"),
		}

		if e := strings.ToLower(col("endianness")); e != "" && e != "big" {
			return nil, fmt.Errorf("frame %s signal %s: unsupported endianness %q (only big supported)",
				frameName, sig.Name, e)
		}
		if mustBool(col("signed")) {
			return nil, fmt.Errorf("frame %s signal %s: signed signals are not supported", frameName, sig.Name)
		}

		fd, ok := frames[frameID]
		if !ok {
			fd = &FrameDef{
				ID:      frameID,
				Name:    frameName,
				DLC:     dlc,
				CycleMS: mustInt(col("cycle_ms")),
			}
			frames[frameID] = fd
			order = append(order, frameID)
		}
		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}
		fd.Signals = append(fd.Signals, sig)
	}

	defs := make([]FrameDef, 0, len(order))
	for _, id := range order {
		defs = append(defs, *frames[id])
	}
	return NewCANMap(defs...)
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}

func mustInt(s string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(s))
	return v
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func mustBool(s string) bool {
	ss := strings.TrimSpace(strings.ToLower(s))
	return ss == "true" || ss == "1" || ss == "yes"
}
