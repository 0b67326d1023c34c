package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.FrameSent("engine")
	m.FrameSent("engine")
	if got := testutil.ToFloat64(m.framesSent.WithLabelValues("engine")); got != 2 {
		t.Fatalf("expected 2 frames sent, got %f", got)
	}

	m.Forwarded("powertrain->diagnostic")
	m.ForwardError("diagnostic->powertrain")
	if got := testutil.ToFloat64(m.framesForwarded.WithLabelValues("powertrain->diagnostic")); got != 1 {
		t.Fatalf("expected 1 forwarded, got %f", got)
	}
	if got := testutil.ToFloat64(m.forwardErrors.WithLabelValues("diagnostic->powertrain")); got != 1 {
		t.Fatalf("expected 1 forward error, got %f", got)
	}

	m.OBDRequest(0x01, "ok")
	if got := testutil.ToFloat64(m.obdRequests.WithLabelValues("0x01", "ok")); got != 1 {
		t.Fatalf("expected obd request counted under 0x01, got %f", got)
	}

	m.SetPaused("engine", true)
	if got := testutil.ToFloat64(m.paused.WithLabelValues("engine")); got != 1 {
		t.Fatalf("expected paused gauge 1, got %f", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.FrameSent("engine")
	m.DecodeError("obd")
	m.OBDRequest(0x04, "ok")
	m.SetPaused("gateway", true)
}

func TestModeLabel(t *testing.T) {
	if modeLabel(0x0C) != "0x0C" || modeLabel(0xE8) != "0xE8" {
		t.Fatalf("unexpected labels %s %s", modeLabel(0x0C), modeLabel(0xE8))
	}
}
