package gearbox

import (
	"context"
	"testing"
	"time"

	"go.einride.tech/can"

	"canlab/utils"
)

func TestShiftMapSelect(t *testing.T) {
	cases := []struct {
		gear  int
		speed float64
		want  int
	}{
		{1, 0, 1},
		{1, 14.9, 1},
		{1, 15, 2},
		{2, 12, 2}, // inside hysteresis
		{2, 9.9, 1},
		{3, 100, 4}, // one gear per decision
		{6, 200, 6},
		{6, 69.9, 5},
		{0, 0, 1},
	}
	for _, tc := range cases {
		if got := Drive.Select(tc.gear, tc.speed); got != tc.want {
			t.Fatalf("Select(%d, %.1f) = %d, want %d", tc.gear, tc.speed, got, tc.want)
		}
	}
	if got := Sport.Select(1, 18); got != 1 {
		t.Fatalf("sport should hold first gear at 18 km/h, got %d", got)
	}
	if _, err := ShiftMapFor("R"); err == nil {
		t.Fatal("expected error for unknown selector")
	}
}

func newTCU(t *testing.T) (*TCU, utils.CANBus) {
	t.Helper()
	bus := utils.NewMemoryBus("vcan0")
	own, peer := bus.Open(), bus.Open()
	t.Cleanup(func() { own.Close(); peer.Close() })
	tcu, err := NewTCU(Config{Mode: "D", Dt: 10 * time.Millisecond, IdleRPM: 800, RedlineRPM: 7000, OilStartC: 70},
		utils.VehicleMap(), own, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tcu, peer
}

func TestTCUShiftSequence(t *testing.T) {
	ctx := context.Background()
	tcu, peer := newTCU(t)
	cmap := utils.VehicleMap()

	engine, _ := cmap.Encode(utils.EngineData{RPM: 2600, SpeedKph: 20, CoolantC: 90})
	_ = peer.WriteFrame(ctx, engine)

	if err := tcu.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	f, err := utils.RecvTimeout(ctx, peer, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	gb, err := cmap.DecodeGearboxData(f)
	if err != nil {
		t.Fatal(err)
	}
	if gb.Gear != 1 || gb.TargetGear != 2 || !gb.ShiftInProgress {
		t.Fatalf("announce tick: %+v", gb)
	}
	if gb.Clutch1Tq == 0 || gb.Clutch2Tq == 0 {
		t.Fatalf("both clutches should carry torque during the shift: %+v", gb)
	}

	if err := tcu.Tick(ctx); err != nil {
		t.Fatal(err)
	}
	f, _ = utils.RecvTimeout(ctx, peer, time.Second)
	gb, _ = cmap.DecodeGearboxData(f)
	if gb.Gear != 2 || gb.TargetGear != 2 || gb.ShiftInProgress {
		t.Fatalf("engage tick: %+v", gb)
	}
	if gb.Clutch1Tq != 0 || gb.Clutch2Tq == 0 {
		t.Fatalf("second gear runs on clutch 2: %+v", gb)
	}
}

func TestTCUHoldsFirstWithoutEngineData(t *testing.T) {
	ctx := context.Background()
	tcu, peer := newTCU(t)
	for i := 0; i < 3; i++ {
		if err := tcu.Tick(ctx); err != nil {
			t.Fatal(err)
		}
	}
	s := tcu.State()
	if s.Gear != 1 || s.Shifting || s.OilTempC != 70 {
		t.Fatalf("state %+v", s)
	}
	n := 0
	_ = utils.Drain(ctx, peer, func(f can.Frame) {
		if f.ID == utils.GearboxDataID {
			n++
		}
	})
	if n != 3 {
		t.Fatalf("published %d GearboxData frames, want 3", n)
	}
}

func TestOilTempFollowsCoolant(t *testing.T) {
	ctx := context.Background()
	tcu, peer := newTCU(t)
	engine, _ := utils.VehicleMap().Encode(utils.EngineData{RPM: 800, CoolantC: 100})
	_ = peer.WriteFrame(ctx, engine)
	for i := 0; i < 50; i++ {
		_ = tcu.Tick(ctx)
	}
	if oil := tcu.State().OilTempC; oil <= 80 || oil >= 100 {
		t.Fatalf("oil temp %.1f should be heading towards coolant", oil)
	}
}
