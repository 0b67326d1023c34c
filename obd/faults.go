package obd

// Fault thresholds for the emulated self-diagnosis.
const (
	ColdEngineDTC = "P0128" // coolant below thermostat regulating temperature
	MisfireDTC    = "P0300" // random misfire

	coldCoolantC       = 80
	coldMinSpeedKph    = 10
	misfireMinRPM      = 2500
	misfireMaxSpeedKph = 15
)

// InjectFaults stores DTCs implied by the live values and returns the codes
// that were newly added.
func InjectFaults(s *Session) []string {
	l := s.Live()
	var want []string
	if l.CoolantC < coldCoolantC && l.SpeedKph > coldMinSpeedKph {
		want = append(want, ColdEngineDTC)
	}
	if l.RPM > misfireMinRPM && l.SpeedKph < misfireMaxSpeedKph {
		want = append(want, MisfireDTC)
	}
	if len(want) == 0 {
		return nil
	}

	have := make(map[string]bool)
	for _, c := range s.Codes() {
		have[c] = true
	}
	var added []string
	for _, code := range want {
		if have[code] {
			continue
		}
		if err := s.Add(code); err == nil {
			added = append(added, code)
		}
	}
	return added
}
