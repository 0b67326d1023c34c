package gearbox

import (
	"fmt"
	"strings"
)

const (
	MinGear = 1
	MaxGear = 6

	// Downshift happens this far below the matching upshift speed.
	downshiftHysteresisKph = 5
	oilFollowRate          = 0.02
)

// ShiftMap holds the upshift speed out of each gear 1..5.
type ShiftMap [MaxGear - 1]float64

var (
	// Drive: early upshifts for economy.
	Drive = ShiftMap{15, 30, 45, 60, 75}
	// Sport: hold gears longer.
	Sport = ShiftMap{22, 42, 62, 82, 102}
)

// ShiftMapFor returns the map for a selector position "D" or "S".
func ShiftMapFor(mode string) (ShiftMap, error) {
	switch strings.ToUpper(mode) {
	case "D", "":
		return Drive, nil
	case "S":
		return Sport, nil
	default:
		return ShiftMap{}, fmt.Errorf("unknown selector mode %q", mode)
	}
}

// Select returns the gear to hold at speedKph when currently in gear.
// Upshifts and downshifts move one gear at a time.
func (m ShiftMap) Select(gear int, speedKph float64) int {
	if gear < MinGear {
		gear = MinGear
	}
	if gear > MaxGear {
		gear = MaxGear
	}
	if gear < MaxGear && speedKph >= m[gear-1] {
		return gear + 1
	}
	if gear > MinGear && speedKph < m[gear-2]-downshiftHysteresisKph {
		return gear - 1
	}
	return gear
}

// clutchFor reports which clutch of the dual-clutch pair carries gear: odd
// gears on clutch 1, even gears on clutch 2.
func clutchFor(gear int) int {
	if gear%2 == 1 {
		return 1
	}
	return 2
}
