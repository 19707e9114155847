// Package telemetry holds the prometheus counters of the three programs
// and the optional metrics/health listener of lord.
package telemetry

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmaluka/lornews/pkg/logger"
)

var (
	// Connections counts accepted NNTP connections.
	Connections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lornews_nntp_connections_total",
		Help: "Accepted NNTP connections.",
	})
	// Commands counts dispatched NNTP commands by verb.
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lornews_nntp_commands_total",
		Help: "Dispatched NNTP commands.",
	}, []string{"command"})
	// ArticlesPulled counts articles appended by the puller.
	ArticlesPulled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lornews_articles_pulled_total",
		Help: "Articles appended by the puller.",
	})
	// ArticlesExpired counts articles removed by expiry.
	ArticlesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lornews_articles_expired_total",
		Help: "Articles removed by expiry.",
	})
	// ForumRequests counts forum HTTP requests by endpoint path.
	ForumRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lornews_forum_requests_total",
		Help: "HTTP requests issued to the forum.",
	}, []string{"endpoint"})
)

// Serve exposes /metrics and /healthz on addr. Runs in its own goroutine;
// a listener failure is logged, not fatal.
func Serve(addr string) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	go func() {
		logger.Info("metrics_listening", "addr", addr)
		if err := http.ListenAndServe(addr, r); err != nil {
			logger.Error("metrics_listener_failed", "addr", addr, "error", err)
		}
	}()
}
