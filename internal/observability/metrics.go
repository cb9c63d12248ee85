package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Roles label which side of the protocol recorded a sample.
const (
	RoleServer = "server"
	RoleClient = "client"
)

// Open-channel cycle outcomes.
const (
	OpenChannelSent       = "sent"
	OpenChannelRetransmit = "retransmit"
	OpenChannelAcked      = "acked"
	OpenChannelTimeout    = "timeout"
	OpenChannelBusy       = "busy"
	OpenChannelDuplicate  = "duplicate"
)

var (
	registerOnce sync.Once

	datagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "udp",
			Name:      "datagrams_received_total",
			Help:      "Decoded datagrams by message key.",
		},
		[]string{"role", "key"},
	)
	datagramsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "udp",
			Name:      "datagrams_sent_total",
			Help:      "Datagrams written by message key.",
		},
		[]string{"role", "key", "success"},
	)
	datagramsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "udp",
			Name:      "datagrams_dropped_total",
			Help:      "Datagrams dropped before routing.",
		},
		[]string{"role", "reason"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "rendezvous",
			Name:      "protocol_errors_total",
			Help:      "Error responses sent to peers.",
		},
		[]string{"reason"},
	)
	openChannel = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "rendezvous",
			Name:      "open_channel_total",
			Help:      "Open-channel negotiation events.",
		},
		[]string{"outcome"},
	)
	directoryPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "punchctl",
			Subsystem: "rendezvous",
			Name:      "directory_peers",
			Help:      "Registered peer names.",
		},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "peer",
			Name:      "handshakes_total",
			Help:      "Client handshake phase transitions.",
		},
		[]string{"phase"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "punchctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "punchctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			datagramsReceived,
			datagramsSent,
			datagramsDropped,
			protocolErrors,
			openChannel,
			directoryPeers,
			handshakes,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordReceived(role, key string) {
	RegisterMetrics()
	datagramsReceived.WithLabelValues(role, key).Inc()
}

func RecordSent(role, key string, success bool) {
	RegisterMetrics()
	datagramsSent.WithLabelValues(role, key, strconv.FormatBool(success)).Inc()
}

func RecordDropped(role, reason string) {
	RegisterMetrics()
	datagramsDropped.WithLabelValues(role, reason).Inc()
}

func RecordProtocolError(reason string) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(reason).Inc()
}

func RecordOpenChannel(outcome string) {
	RegisterMetrics()
	openChannel.WithLabelValues(outcome).Inc()
}

func SetDirectoryPeers(n int) {
	RegisterMetrics()
	directoryPeers.Set(float64(n))
}

func RecordHandshake(phase string) {
	RegisterMetrics()
	handshakes.WithLabelValues(phase).Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
