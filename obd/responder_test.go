package obd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"canlab/telemetry"
	"canlab/utils"
)

type rig struct {
	resp   *Responder
	tester utils.CANBus
	reg    *prometheus.Registry
	cancel context.CancelFunc
	done   chan error
}

func startResponder(t *testing.T, cfg ResponderConfig, initial ...string) *rig {
	t.Helper()
	bus := utils.NewMemoryBus("vcan0")
	ecuEnd, tester := bus.Open(), bus.Open()

	s, err := NewSession(initial...)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	r, err := NewResponder(cfg, s, utils.VehicleMap(), ecuEnd, nil, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		ecuEnd.Close()
		tester.Close()
	})
	return &rig{resp: r, tester: tester, reg: reg, cancel: cancel, done: done}
}

func testConfig() ResponderConfig {
	cfg := DefaultResponderConfig()
	cfg.RecvTimeout = 10 * time.Millisecond
	return cfg
}

func sendEngine(t *testing.T, bus utils.CANBus, ed utils.EngineData) {
	t.Helper()
	f, err := utils.VehicleMap().Encode(ed)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.WriteFrame(context.Background(), f); err != nil {
		t.Fatal(err)
	}
}

func TestResponderAnswersRPM(t *testing.T) {
	r := startResponder(t, testConfig())
	sendEngine(t, r.tester, utils.EngineData{RPM: 3000, SpeedKph: 40, CoolantC: 85})

	req, _ := utils.NewFrame(utils.OBDRequestID, []byte{0x02, 0x01, 0x0C, 0, 0, 0, 0, 0})
	// live values are applied in receive order, so the request follows the broadcast
	if err := r.tester.WriteFrame(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	f, err := utils.RecvTimeout(context.Background(), r.tester, time.Second)
	if err != nil {
		t.Fatalf("no response: %v", err)
	}
	if f.ID != utils.OBDResponseID {
		t.Fatalf("response id 0x%X", f.ID)
	}
	want := []byte{0x04, 0x41, 0x0C, 0x2E, 0xE0, 0, 0, 0}
	if got := utils.Payload(f); !bytes.Equal(got, want) {
		t.Fatalf("got % X, want % X", got, want)
	}
}

func TestResponderIgnoresUnsupportedPID(t *testing.T) {
	r := startResponder(t, testConfig())
	req, _ := utils.NewFrame(utils.OBDRequestID, []byte{0x02, 0x01, 0x42, 0, 0, 0, 0, 0})
	_ = r.tester.WriteFrame(context.Background(), req)

	if _, err := utils.RecvTimeout(context.Background(), r.tester, 100*time.Millisecond); !errors.Is(err, utils.ErrTimeout) {
		t.Fatalf("expected silence, got %v", err)
	}
	n, err := testutil.GatherAndCount(r.reg, "canlab_obd_requests_total")
	if err != nil || n != 1 {
		t.Fatalf("obd request series = %d, err=%v", n, err)
	}
}

func TestClientAgainstResponder(t *testing.T) {
	r := startResponder(t, testConfig(), "P0128", "P0300")
	sendEngine(t, r.tester, utils.EngineData{RPM: 1500, SpeedKph: 62, CoolantC: 88})
	c := NewClient(r.tester, utils.OBDRequestID, utils.OBDResponseID, time.Second)
	ctx := context.Background()

	speed, err := c.QueryPID(ctx, PIDSpeed)
	if err != nil || speed != 62 {
		t.Fatalf("speed=%v err=%v", speed, err)
	}
	cool, err := c.QueryPID(ctx, PIDCoolant)
	if err != nil || cool != 88 {
		t.Fatalf("coolant=%v err=%v", cool, err)
	}

	codes, err := c.ReadDTCs(ctx)
	if err != nil || len(codes) != 2 || codes[0] != "P0128" || codes[1] != "P0300" {
		t.Fatalf("codes=%v err=%v", codes, err)
	}
	if err := c.ClearDTCs(ctx); err != nil {
		t.Fatal(err)
	}
	codes, err = c.ReadDTCs(ctx)
	if err != nil || len(codes) != 0 {
		t.Fatalf("after clear codes=%v err=%v", codes, err)
	}
}

func TestClientTimesOutWithoutResponder(t *testing.T) {
	bus := utils.NewMemoryBus("vcan1")
	tester := bus.Open()
	defer tester.Close()
	c := NewClient(tester, utils.OBDRequestID, utils.OBDResponseID, 30*time.Millisecond)
	if _, err := c.QueryPID(context.Background(), PIDRPM); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestResponderInjectsFaults(t *testing.T) {
	cfg := testConfig()
	cfg.InjectFaults = true
	r := startResponder(t, cfg)
	sendEngine(t, r.tester, utils.EngineData{RPM: 3000, SpeedKph: 5, CoolantC: 90})

	c := NewClient(r.tester, utils.OBDRequestID, utils.OBDResponseID, time.Second)
	codes, err := c.ReadDTCs(context.Background())
	if err != nil || len(codes) != 1 || codes[0] != MisfireDTC {
		t.Fatalf("codes=%v err=%v", codes, err)
	}
}

func TestResponderStopsOnCancel(t *testing.T) {
	r := startResponder(t, testConfig())
	r.cancel()
	select {
	case err := <-r.done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v", err)
		}
		r.done <- err
	case <-time.After(time.Second):
		t.Fatal("responder did not stop")
	}
}
