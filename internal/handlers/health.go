package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/asnlookup"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
)

type HealthHandler struct {
	StartTime time.Time
	Registry  *telemetry.Registry
	ASN       *asnlookup.Resolver
	Store     *store.ReportStore
}

func NewHealthHandler(registry *telemetry.Registry, asn *asnlookup.Resolver, reportStore *store.ReportStore) *HealthHandler {
	return &HealthHandler{
		StartTime: time.Now(),
		Registry:  registry,
		ASN:       asn,
		Store:     reportStore,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := gin.H{
		"status":  "ok",
		"runtime": "go",
		"uptime":  time.Since(h.StartTime).String(),
		"store": gin.H{
			"reports": h.Store.Len(),
		},
		"memory": gin.H{
			"alloc_mb":       memStats.Alloc / 1024 / 1024,
			"sys_mb":         memStats.Sys / 1024 / 1024,
			"num_goroutines": runtime.NumGoroutine(),
		},
	}

	if h.Registry != nil {
		providerStats := h.Registry.AllStats()
		providers := make([]gin.H, 0, len(providerStats))
		for _, ps := range providerStats {
			p := gin.H{
				"name":                 ps.Name,
				"state":                string(ps.State),
				"total_requests":       ps.TotalRequests,
				"success_count":        ps.SuccessCount,
				"failure_count":        ps.FailureCount,
				"consecutive_failures": ps.ConsecFailures,
				"avg_latency_ms":       ps.AvgLatencyMs,
				"p95_latency_ms":       ps.P95LatencyMs,
				"in_cooldown":          ps.InCooldown,
			}
			if ps.LastError != "" {
				p["last_error"] = ps.LastError
			}
			if ps.LastErrorTime != nil {
				p["last_error_time"] = ps.LastErrorTime.Format(time.RFC3339)
			}
			if ps.LastSuccessTime != nil {
				p["last_success_time"] = ps.LastSuccessTime.Format(time.RFC3339)
			}
			providers = append(providers, p)
		}
		response["providers"] = providers
		response["overall_provider_health"] = string(h.Registry.OverallState())
	}

	if h.ASN != nil {
		caches := []gin.H{}
		for _, cs := range h.ASN.CacheStats() {
			caches = append(caches, gin.H{
				"name":     cs.Name,
				"size":     cs.Size,
				"max_size": cs.MaxSize,
				"hits":     cs.Hits,
				"misses":   cs.Misses,
				"hit_rate": cs.HitRate,
			})
		}
		response["caches"] = caches
	}

	c.JSON(http.StatusOK, response)
}
