package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_active_connections",
		Help: "Currently open websocket connections.",
	})

	// Labelled by the protocol event enum, not free-form client input.
	WSEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_events_total",
		Help: "Protocol events handled by the realtime gateway.",
	}, []string{"event"})

	MessagesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_stored_total",
		Help: "Messages durably appended to the message log.",
	})

	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_requests_created_total",
		Help: "Direct chat requests created.",
	})
)

// Handler serves the Prometheus scrape endpoint; mounted on a side
// listener so scrapes bypass auth middleware.
func Handler() http.Handler {
	return promhttp.Handler()
}
