// Package metrics exposes world activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/example/modular-world/modules/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "world"

// StatsSource reports live occupancy.
type StatsSource interface {
	Stats() registry.Stats
}

// SocketCounter reports open websocket connections.
type SocketCounter interface {
	ClientCount() int
}

// Collector owns a private Prometheus registry with the world metrics.
type Collector struct {
	registry *prometheus.Registry

	playersJoined prometheus.Counter
	playersLeft   prometheus.Counter
	chatMessages  prometheus.Counter
	chatBytes     prometheus.Counter
	moduleChanges *prometheus.CounterVec
}

// NewCollector registers the world metrics. Gauges read from stats and
// sockets at scrape time; either may be nil.
func NewCollector(stats StatsSource, sockets SocketCounter) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		playersJoined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "players_joined_total",
			Help:      "Total number of room joins",
		}),
		playersLeft: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "players_left_total",
			Help:      "Total number of room departures",
		}),
		chatMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chat_messages_total",
			Help:      "Total number of persisted chat messages",
		}),
		chatBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chat_message_bytes_total",
			Help:      "Total size of persisted chat messages in bytes",
		}),
		moduleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "module_changes_total",
			Help:      "Total number of persisted module changes",
		}, []string{"op"}),
	}

	if stats != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "players_connected",
			Help:      "Players currently present in a room",
		}, func() float64 { return float64(stats.Stats().Players) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rooms_active",
			Help:      "Rooms with at least one player",
		}, func() float64 { return float64(stats.Stats().Rooms) })
	}
	if sockets != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sockets_connected",
			Help:      "Open websocket connections",
		}, func() float64 { return float64(sockets.ClientCount()) })
	}
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Module change operations used as the op label.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

func (c *Collector) observeJoin()  { c.playersJoined.Inc() }
func (c *Collector) observeLeave() { c.playersLeft.Inc() }

func (c *Collector) observeChat(length int) {
	c.chatMessages.Inc()
	c.chatBytes.Add(float64(length))
}

func (c *Collector) observeModule(op string) {
	c.moduleChanges.WithLabelValues(op).Inc()
}
