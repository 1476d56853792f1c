package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SessionsTotal counts finished capture sessions by kind and outcome.
var SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "presence_sessions_total",
	Help: "Capture sessions by kind and outcome.",
}, []string{"kind", "outcome"})

// LocationRetries observes how many timeout retries each resolved session needed.
var LocationRetries = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "presence_location_retries",
	Help:    "Location timeout retries per session.",
	Buckets: []float64{0, 1, 2, 3},
})

// QueueDepthDrops counts triggers refused because the event queue was full.
var QueueDepthDrops = promauto.NewCounter(prometheus.CounterOpts{
	Name: "presence_queue_drops_total",
	Help: "Presence triggers dropped because the queue was full or closed.",
})
