package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DiagnosticRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnostico_runs_total",
		Help: "Diagnostic runs by outcome (ok, degraded, failed).",
	}, []string{"outcome"})

	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "diagnostico_provider_failures_total",
		Help: "Provider-level failures by provider name.",
	}, []string{"provider"})

	StoredReports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diagnostico_stored_reports",
		Help: "Reports currently held in the in-memory store.",
	})
)

func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
