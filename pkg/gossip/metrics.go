package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// MessagesBroadcast is the total number of locally broadcast messages.
	MessagesBroadcast prometheus.Counter

	// MessagesReceived is the total number of accepted inbound messages,
	// labelled by message type.
	MessagesReceived *prometheus.CounterVec

	// MessagesDropped is the total number of rejected inbound messages,
	// labelled by drop reason.
	MessagesDropped *prometheus.CounterVec

	// MessagesSent is the total number of messages pushed to peers.
	MessagesSent prometheus.Counter

	// Rounds is the total number of completed gossip rounds.
	Rounds prometheus.Counter

	// RoundDuration is the duration of each gossip round.
	RoundDuration prometheus.Histogram

	// AntiEntropySyncs is the total number of anti-entropy digest
	// exchanges initiated.
	AntiEntropySyncs prometheus.Counter

	// Peers is the current number of known peers.
	Peers prometheus.Gauge

	// PacketBytesInbound is the total number of received packet bytes.
	PacketBytesInbound prometheus.Counter

	// PacketBytesOutbound is the total number of sent packet bytes.
	PacketBytesOutbound prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesBroadcast: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "messages_broadcast_total",
				Help:      "Total number of locally broadcast messages",
			},
		),
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "messages_received_total",
				Help:      "Total number of accepted inbound messages",
			},
			[]string{"type"},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "messages_dropped_total",
				Help:      "Total number of rejected inbound messages",
			},
			[]string{"reason"},
		),
		MessagesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "messages_sent_total",
				Help:      "Total number of messages pushed to peers",
			},
		),
		Rounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "rounds_total",
				Help:      "Total number of completed gossip rounds",
			},
		),
		RoundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "round_duration_seconds",
				Help:      "Duration of each gossip round",
				Buckets:   prometheus.DefBuckets,
			},
		),
		AntiEntropySyncs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "anti_entropy_syncs_total",
				Help:      "Total number of anti-entropy digest exchanges initiated",
			},
		),
		Peers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "peers",
				Help:      "Number of known peers",
			},
		),
		PacketBytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "packet_bytes_inbound_total",
				Help:      "Total number of received packet bytes",
			},
		),
		PacketBytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rhizome",
				Subsystem: "gossip",
				Name:      "packet_bytes_outbound_total",
				Help:      "Total number of sent packet bytes",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.MessagesBroadcast,
		m.MessagesReceived,
		m.MessagesDropped,
		m.MessagesSent,
		m.Rounds,
		m.RoundDuration,
		m.AntiEntropySyncs,
		m.Peers,
		m.PacketBytesInbound,
		m.PacketBytesOutbound,
	)
}
