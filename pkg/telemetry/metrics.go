package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	CallsPlaced      = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceagent_calls_placed_total", Help: "Call attempts handed to the telephony provider"})
	Dispositions     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "voiceagent_dispositions_total", Help: "Finalized call attempts by disposition"}, []string{"disposition"})
	RetriesScheduled = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceagent_retries_scheduled_total", Help: "Retry tickets created"})
	LeadsExhausted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceagent_leads_exhausted_total", Help: "Leads that ran out of attempts"})
	WebhookEvents    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "voiceagent_webhook_events_total", Help: "Inbound provider callbacks by type"}, []string{"type"})
	StaleCallbacks   = prometheus.NewCounter(prometheus.CounterOpts{Name: "voiceagent_stale_callbacks_total", Help: "Callbacks for unknown or already-terminal sessions"})
	LiveSessions     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "voiceagent_live_sessions", Help: "Call sessions currently live"})
)

// Handler exposes the /metrics endpoint with a singleton registration.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CallsPlaced,
			Dispositions,
			RetriesScheduled,
			LeadsExhausted,
			WebhookEvents,
			StaleCallbacks,
			LiveSessions,
		)
	})
	return promhttp.Handler()
}
