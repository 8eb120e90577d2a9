package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_stream_subscribers",
		Help: "Open chat stream subscriptions on this instance",
	})
	droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_stream_dropped_events_total",
		Help: "Chat events dropped because a subscriber buffer was full",
	})
	publishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_published_total",
		Help: "Chat events published, by transport and outcome",
	}, []string{"transport", "outcome"})
)
