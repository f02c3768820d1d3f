// Package metrics exposes live tcp.Connection state as Prometheus
// metrics, the way a production stack would wire observability into an
// otherwise self-contained library.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quietloop/gosponge/pkg/tcp"
)

// Collector implements prometheus.Collector over a set of registered
// tcp.Connection values, scraping their counters on every Collect call
// rather than pushing updates eagerly. Nothing here calls back into a
// Connection's mutating methods, so Collect (invoked by the
// Prometheus registry's own goroutine) never re-enters the
// single-threaded core.
type Collector struct {
	mu    sync.Mutex
	conns map[*tcp.Connection][]string // connection -> label values

	bytesInFlight *prometheus.Desc
	retxTotal     *prometheus.Desc
	segsSent      *prometheus.Desc
	segsReceived  *prometheus.Desc
	rtoSeconds    *prometheus.Desc
	state         *prometheus.Desc
}

// labelNames is the set of variable labels every metric is keyed by;
// callers supply the values when they Add a connection.
var labelNames = []string{"local_addr", "remote_addr"}

// New returns a Collector. Register it with a prometheus.Registry the
// way any other Collector is registered.
func New() *Collector {
	return &Collector{
		conns: make(map[*tcp.Connection][]string),
		bytesInFlight: prometheus.NewDesc(
			"gosponge_tcp_bytes_in_flight",
			"Unacknowledged outbound sequence-space bytes.",
			labelNames, nil,
		),
		retxTotal: prometheus.NewDesc(
			"gosponge_tcp_retransmissions_total",
			"Cumulative count of segments retransmitted on RTO.",
			labelNames, nil,
		),
		segsSent: prometheus.NewDesc(
			"gosponge_tcp_segments_sent_total",
			"Cumulative count of segments queued for transmission.",
			labelNames, nil,
		),
		segsReceived: prometheus.NewDesc(
			"gosponge_tcp_segments_received_total",
			"Cumulative count of segments delivered to the connection.",
			labelNames, nil,
		),
		rtoSeconds: prometheus.NewDesc(
			"gosponge_tcp_rto_seconds",
			"Current retransmission timeout.",
			labelNames, nil,
		),
		state: prometheus.NewDesc(
			"gosponge_tcp_state",
			"FSM state: 0=listen 1=syn_sent 2=syn_rcvd 3=established 4=fin_wait 5=close_wait 6=closed.",
			labelNames, nil,
		),
	}
}

// Add registers a connection for scraping under the given label values
// (see labelNames for their order).
func (c *Collector) Add(conn *tcp.Connection, labelValues ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = labelValues
}

// Remove stops scraping a connection, typically once it goes inactive.
func (c *Collector) Remove(conn *tcp.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, conn)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.bytesInFlight
	descs <- c.retxTotal
	descs <- c.segsSent
	descs <- c.segsReceived
	descs <- c.rtoSeconds
	descs <- c.state
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for conn, labels := range c.conns {
		metrics <- prometheus.MustNewConstMetric(c.bytesInFlight, prometheus.GaugeValue, float64(conn.BytesInFlight()), labels...)
		metrics <- prometheus.MustNewConstMetric(c.retxTotal, prometheus.CounterValue, float64(conn.LifetimeRetransmissions()), labels...)
		metrics <- prometheus.MustNewConstMetric(c.segsSent, prometheus.CounterValue, float64(conn.SegmentsSent()), labels...)
		metrics <- prometheus.MustNewConstMetric(c.segsReceived, prometheus.CounterValue, float64(conn.SegmentsReceived()), labels...)
		metrics <- prometheus.MustNewConstMetric(c.rtoSeconds, prometheus.GaugeValue, float64(conn.RTOMillis())/1000, labels...)
		metrics <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, float64(conn.State()), labels...)
	}
}
