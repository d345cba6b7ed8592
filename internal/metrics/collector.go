package blemetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "blesim"
	subsystem = "conn"
)

// Label names for simulation metrics.
const (
	labelConn       = "conn"
	labelChannel    = "channel"
	labelClassifier = "classifier"
)

// -------------------------------------------------------------------------
// Collector — Prometheus simulation metrics
// -------------------------------------------------------------------------

// Collector holds all simulation Prometheus metrics.
//
//   - Active-connection gauges track the connection set.
//   - Packet counters track Tx/Rx/CRC-failure volumes per connection.
//   - ChannelMapUpdates counts committed channel-map procedures.
//   - GoodChannels reports the classifier's current good-channel count.
//   - QueueOverflows counts dropped payloads from full Tx queues.
type Collector struct {
	// ActiveConnections tracks the number of currently active connections.
	// Incremented on connection start, decremented on termination.
	ActiveConnections *prometheus.GaugeVec

	// PacketsTransmitted counts Link Layer PDUs transmitted per connection.
	PacketsTransmitted *prometheus.CounterVec

	// PacketsReceived counts Link Layer PDUs received per connection,
	// labeled additionally by data channel.
	PacketsReceived *prometheus.CounterVec

	// CRCFailures counts CRC-failed receptions per connection and channel.
	CRCFailures *prometheus.CounterVec

	// ChannelMapUpdates counts channel-map procedures committed at their
	// instant, per connection.
	ChannelMapUpdates *prometheus.CounterVec

	// GoodChannels reports the classifier's current count of channels
	// marked good, per connection and classifier kind.
	GoodChannels *prometheus.GaugeVec

	// QueueOverflows counts Tx-queue payloads dropped because the queue
	// was full, per connection.
	QueueOverflows *prometheus.CounterVec

	// SupervisionTimeouts counts connections terminated by supervision
	// timeout expiry.
	SupervisionTimeouts *prometheus.CounterVec
}

// NewCollector creates a Collector with all simulation metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "blesim_conn_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.ActiveConnections,
		c.PacketsTransmitted,
		c.PacketsReceived,
		c.CRCFailures,
		c.ChannelMapUpdates,
		c.GoodChannels,
		c.QueueOverflows,
		c.SupervisionTimeouts,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	connLabels := []string{labelConn}
	channelLabels := []string{labelConn, labelChannel}
	classifierLabels := []string{labelConn, labelClassifier}

	return &Collector{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Number of currently active BLE connections.",
		}, connLabels),

		PacketsTransmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_transmitted_total",
			Help:      "Total Link Layer PDUs transmitted.",
		}, connLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total Link Layer PDUs received, by data channel.",
		}, channelLabels),

		CRCFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "crc_failures_total",
			Help:      "Total CRC-failed receptions, by data channel.",
		}, channelLabels),

		ChannelMapUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "channel_map_updates_total",
			Help:      "Total channel-map procedures committed at their instant.",
		}, connLabels),

		GoodChannels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "good_channels",
			Help:      "Number of channels currently classified good.",
		}, classifierLabels),

		QueueOverflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_overflows_total",
			Help:      "Total Tx-queue payloads dropped because the queue was full.",
		}, connLabels),

		SupervisionTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "supervision_timeouts_total",
			Help:      "Total connections terminated by supervision timeout expiry.",
		}, connLabels),
	}
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// RegisterConnection increments the active connections gauge.
func (c *Collector) RegisterConnection(conn string) {
	c.ActiveConnections.WithLabelValues(conn).Inc()
}

// UnregisterConnection decrements the active connections gauge. Called
// when a connection terminates, for any reason.
func (c *Collector) UnregisterConnection(conn string) {
	c.ActiveConnections.WithLabelValues(conn).Dec()
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsTransmitted increments the transmitted-packets counter.
func (c *Collector) IncPacketsTransmitted(conn string) {
	c.PacketsTransmitted.WithLabelValues(conn).Inc()
}

// IncPacketsReceived increments the received-packets counter for conn and
// the data channel the packet was received on.
func (c *Collector) IncPacketsReceived(conn string, channel uint8) {
	c.PacketsReceived.WithLabelValues(conn, strconv.Itoa(int(channel))).Inc()
}

// IncCRCFailures increments the CRC-failure counter for conn and channel.
func (c *Collector) IncCRCFailures(conn string, channel uint8) {
	c.CRCFailures.WithLabelValues(conn, strconv.Itoa(int(channel))).Inc()
}

// -------------------------------------------------------------------------
// Channel Map Procedure
// -------------------------------------------------------------------------

// IncChannelMapUpdates increments the channel-map-commit counter for conn.
func (c *Collector) IncChannelMapUpdates(conn string) {
	c.ChannelMapUpdates.WithLabelValues(conn).Inc()
}

// -------------------------------------------------------------------------
// Classifier
// -------------------------------------------------------------------------

// SetGoodChannels reports the classifier's current good-channel count.
func (c *Collector) SetGoodChannels(conn, classifier string, n int) {
	c.GoodChannels.WithLabelValues(conn, classifier).Set(float64(n))
}

// -------------------------------------------------------------------------
// Queue and Supervision
// -------------------------------------------------------------------------

// IncQueueOverflows increments the Tx-queue-overflow counter for conn.
func (c *Collector) IncQueueOverflows(conn string) {
	c.QueueOverflows.WithLabelValues(conn).Inc()
}

// IncSupervisionTimeouts increments the supervision-timeout counter for conn.
func (c *Collector) IncSupervisionTimeouts(conn string) {
	c.SupervisionTimeouts.WithLabelValues(conn).Inc()
}
