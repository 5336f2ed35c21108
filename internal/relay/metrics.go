package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath serves Prometheus metrics for plain HTTP requests. WebSocket
// upgrades on this path still join the room of the same name.
const MetricsPath = "/metrics"

// newMetricsHandler exposes the relay counters, read at scrape time.
func newMetricsHandler(s *Server) http.Handler {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, load func() int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rtcall",
			Subsystem: "relay",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(load()) })
	}

	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rtcall",
			Subsystem: "relay",
			Name:      "peers",
			Help:      "Peers currently connected to the relay.",
		}, func() float64 { return float64(s.PeerCount()) }),
		counter("frames_received_total", "Frames read from peers.", s.stats.MsgsRecv.Load),
		counter("frames_forwarded_total", "Frames written to peers.", s.stats.MsgsSent.Load),
		counter("bytes_received_total", "Payload bytes read from peers.", s.stats.BytesRecv.Load),
		counter("bytes_forwarded_total", "Payload bytes written to peers.", s.stats.BytesSent.Load),
	)

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
