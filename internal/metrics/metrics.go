package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

// Metrics holds the delivery counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sent        *prometheus.CounterVec
	acked       prometheus.Counter
	offline     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	replayed    prometheus.Counter
	frames      *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	connections prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_sent_total",
			Help:      "Frames written to a live connection, including retransmissions.",
		}, []string{"kind"}),
		acked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_acked_total",
			Help:      "Pending deliveries cleared by a client ack.",
		}),
		offline: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_offline_total",
			Help:      "Events handed to the offline store.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Ephemeral events discarded without delivery.",
		}, []string{"kind"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_store_errors_total",
			Help:      "Failed offline store operations.",
		}, []string{"op"}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offline_replayed_total",
			Help:      "Offline records re-submitted on reconnect.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Inbound websocket frames by type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rejected_total",
			Help:      "Inbound frames dropped before handling.",
		}, []string{"reason"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently registered connections.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.sent, m.acked, m.offline, m.dropped, m.storeErrors,
			m.replayed, m.frames, m.rejected, m.connections,
		)
	}
	return m
}

func (m *Metrics) DeliverySent(kind string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(kind).Inc()
}

func (m *Metrics) DeliveryAcked() {
	if m == nil {
		return
	}
	m.acked.Inc()
}

func (m *Metrics) DeliveryOffline(kind string) {
	if m == nil {
		return
	}
	m.offline.WithLabelValues(kind).Inc()
}

func (m *Metrics) DeliveryDropped(kind string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) OfflineStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) OfflineReplayed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.replayed.Add(float64(n))
}

func (m *Metrics) InboundFrame(frameType string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(frameType).Inc()
}

func (m *Metrics) InboundRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
