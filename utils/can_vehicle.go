package utils

// Arbitration ids on the powertrain and diagnostic segments.
const (
	EngineDataID  uint32 = 0x100
	WheelSpeedsID uint32 = 0x200
	GearboxDataID uint32 = 0x300
	OBDRequestID  uint32 = 0x7E0
	OBDResponseID uint32 = 0x7E8
)

// Signal names used by the vehicle database.
const (
	SigRPM             = "RPM"
	SigSpeed           = "Speed"
	SigCoolant         = "Coolant"
	SigWheelSpeedFL    = "WheelSpeed_FL"
	SigWheelSpeedFR    = "WheelSpeed_FR"
	SigWheelSpeedRL    = "WheelSpeed_RL"
	SigWheelSpeedRR    = "WheelSpeed_RR"
	SigGear            = "Gear"
	SigTargetGear      = "TargetGear"
	SigClutch1Tq       = "Clutch1_Tq"
	SigClutch2Tq       = "Clutch2_Tq"
	SigOilTemp         = "OilTemp"
	SigShiftInProgress = "ShiftInProgress"
)

// VehicleFrames is the built-in message table.
func VehicleFrames() []FrameDef {
	wheel := func(name string, start int) SignalDef {
		return SignalDef{Name: name, StartBit: start, BitLength: 8, Factor: 1, Min: 0, Max: 250, Unit: "km/h"}
	}
	return []FrameDef{
		{
			ID: EngineDataID, Name: "EngineData", DLC: 8, CycleMS: 100,
			Signals: []SignalDef{
				{Name: SigRPM, StartBit: 0, BitLength: 16, Factor: 4, Min: 0, Max: 16000, Unit: "rpm"},
				{Name: SigSpeed, StartBit: 16, BitLength: 8, Factor: 1, Min: 0, Max: 255, Unit: "km/h"},
				{Name: SigCoolant, StartBit: 24, BitLength: 8, Factor: 1, Offset: -40, Min: -40, Max: 215, Default: 70, Unit: "degC"},
			},
		},
		{
			ID: WheelSpeedsID, Name: "WheelSpeeds", DLC: 8, CycleMS: 100,
			Signals: []SignalDef{
				wheel(SigWheelSpeedFL, 0),
				wheel(SigWheelSpeedFR, 8),
				wheel(SigWheelSpeedRL, 16),
				wheel(SigWheelSpeedRR, 24),
			},
		},
		{
			ID: GearboxDataID, Name: "GearboxData", DLC: 8, CycleMS: 100,
			Signals: []SignalDef{
				{Name: SigGear, StartBit: 0, BitLength: 8, Factor: 1, Min: 0, Max: 8},
				{Name: SigTargetGear, StartBit: 8, BitLength: 8, Factor: 1, Min: 0, Max: 8},
				{Name: SigClutch1Tq, StartBit: 16, BitLength: 8, Factor: 1, Min: 0, Max: 100, Unit: "%"},
				{Name: SigClutch2Tq, StartBit: 24, BitLength: 8, Factor: 1, Min: 0, Max: 100, Unit: "%"},
				{Name: SigOilTemp, StartBit: 32, BitLength: 8, Factor: 1, Offset: -40, Min: -40, Max: 215, Default: 70, Unit: "degC"},
				{Name: SigShiftInProgress, StartBit: 40, BitLength: 1, Factor: 1, Min: 0, Max: 1},
			},
		},
	}
}

// VehicleMap builds the built-in database. The table is static, so a
// failure here is a programming error.
func VehicleMap() *CANMap {
	m, err := NewCANMap(VehicleFrames()...)
	if err != nil {
		panic(err)
	}
	return m
}
