package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StreamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_messages_total", Help: "Stream messages dispatched by channel"},
		[]string{"channel"},
	)
	StreamDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_dropped_total", Help: "Stream messages or updates discarded"},
		[]string{"reason"},
	)
	StreamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Stream reconnect attempts"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Candidate decisions received"},
		[]string{"action"},
	)
	GateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gate_rejections_total", Help: "Decisions rejected by the gate"},
		[]string{"reason"},
	)
	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "admissions_total", Help: "Tracker admission outcomes"},
		[]string{"result"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "result"},
	)
	NotificationsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notifications_dropped_total", Help: "Notifications dropped on a full queue"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Positions tracked as open"},
	)
)

func init() {
	prometheus.MustRegister(
		StreamMessagesTotal,
		StreamDroppedTotal,
		StreamReconnectsTotal,
		DecisionsTotal,
		GateRejectionsTotal,
		AdmissionsTotal,
		OrdersTotal,
		NotificationsDroppedTotal,
		OpenPositions,
	)
}

// StatsFunc returns a JSON-encodable status document for /stats.
type StatsFunc func() any

// Router exposes /metrics, /health and /stats.
func Router(stats StatsFunc) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		var body any = map[string]any{}
		if stats != nil {
			body = stats()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}).Methods(http.MethodGet)
	return r
}

// Serve starts the status server in the background. Callers own Shutdown.
func Serve(addr string, stats StatsFunc) *http.Server {
	srv := &http.Server{Addr: addr, Handler: Router(stats), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
