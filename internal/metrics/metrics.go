package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers realtime and event-processing counters.
type Collector struct {
	activeConnections prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	broadcastsTotal   *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	eventErrorsTotal  *prometheus.CounterVec
	roomOccupancy     *prometheus.GaugeVec
}

// New registers and returns the collector.
func New() *Collector {
	return &Collector{
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_active_connections",
			Help: "Number of open websocket connections",
		}),
		connectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total websocket connections accepted",
		}, []string{"channel"}),
		broadcastsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total room broadcasts emitted",
		}, []string{"event"}),
		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_events_total",
			Help: "Total stream events processed",
		}, []string{"event"}),
		eventErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_event_errors_total",
			Help: "Total stream events rejected or failed",
		}, []string{"event", "code"}),
		roomOccupancy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_room_occupancy",
			Help: "Connections currently joined per room kind",
		}, []string{"kind"}),
	}
}

func (c *Collector) ConnectionOpened(channel string) {
	c.activeConnections.Inc()
	c.connectionsTotal.WithLabelValues(channel).Inc()
}

func (c *Collector) ConnectionClosed() {
	c.activeConnections.Dec()
}

func (c *Collector) BroadcastSent(event string) {
	c.broadcastsTotal.WithLabelValues(event).Inc()
}

func (c *Collector) EventProcessed(event string) {
	c.eventsTotal.WithLabelValues(event).Inc()
}

func (c *Collector) EventFailed(event, code string) {
	c.eventErrorsTotal.WithLabelValues(event, code).Inc()
}

func (c *Collector) SetRoomOccupancy(kind string, n int) {
	c.roomOccupancy.WithLabelValues(kind).Set(float64(n))
}

// Handler exposes the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
