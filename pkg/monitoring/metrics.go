package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_sessions_opened_total",
		Help: "Number of classroom sessions opened since start.",
	})
	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveclass_sessions_closed_total",
		Help: "Number of classroom sessions closed since start.",
	})
	SessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liveclass_sessions_live",
		Help: "Number of currently live classroom sessions.",
	})
	BrowserSessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "liveclass_browser_sessions_live",
		Help: "Number of currently running remote browser instances.",
	})
)
