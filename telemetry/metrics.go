package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts bus activity. A nil *Metrics records nothing, so
// components can run without a registry.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	sendErrors      *prometheus.CounterVec
	framesForwarded *prometheus.CounterVec
	forwardErrors   *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	obdRequests     *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	paused          *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_frames_sent_total",
			Help: "Frames transmitted by a component.",
		}, []string{"component"}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_send_errors_total",
			Help: "Transmit attempts rejected by the transport.",
		}, []string{"component"}),
		framesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_frames_forwarded_total",
			Help: "Frames relayed by the gateway.",
		}, []string{"direction"}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_forward_errors_total",
			Help: "Gateway relays the destination bus rejected.",
		}, []string{"direction"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_decode_errors_total",
			Help: "Frames dropped because they could not be decoded.",
		}, []string{"component"}),
		obdRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_obd_requests_total",
			Help: "Diagnostic requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canlab_frames_dropped_total",
			Help: "Frames lost to full receive buffers.",
		}, []string{"bus"}),
		paused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "canlab_paused",
			Help: "1 while a component is suspended by the pause flag.",
		}, []string{"component"}),
	}
	reg.MustRegister(m.framesSent, m.sendErrors, m.framesForwarded, m.forwardErrors,
		m.decodeErrors, m.obdRequests, m.framesDropped, m.paused)
	return m
}

func (m *Metrics) FrameSent(component string) {
	if m != nil {
		m.framesSent.WithLabelValues(component).Inc()
	}
}

func (m *Metrics) SendError(component string) {
	if m != nil {
		m.sendErrors.WithLabelValues(component).Inc()
	}
}

func (m *Metrics) Forwarded(direction string) {
	if m != nil {
		m.framesForwarded.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) ForwardError(direction string) {
	if m != nil {
		m.forwardErrors.WithLabelValues(direction).Inc()
	}
}

func (m *Metrics) DecodeError(component string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(component).Inc()
	}
}

func (m *Metrics) OBDRequest(mode byte, outcome string) {
	if m != nil {
		m.obdRequests.WithLabelValues(modeLabel(mode), outcome).Inc()
	}
}

func (m *Metrics) FrameDropped(bus string) {
	if m != nil {
		m.framesDropped.WithLabelValues(bus).Inc()
	}
}

func (m *Metrics) SetPaused(component string, paused bool) {
	if m == nil {
		return
	}
	v := 0.0
	if paused {
		v = 1
	}
	m.paused.WithLabelValues(component).Set(v)
}

func modeLabel(mode byte) string { return fmt.Sprintf("0x%02X", mode) }

// Serve exposes the registry on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
