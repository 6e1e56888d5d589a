// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package main

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/asnlookup"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/config"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/diagnose"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/handlers"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/metrics"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/middleware"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/probes"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
	tmplFuncs "github.com/gxfn33157/diagnostico-rede-leste/internal/templates"
)

const headerCacheControl = "Cache-Control"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	probes.SetUserAgentVersion(cfg.AppVersion)

	reportStore := store.New(cfg.ReportTTL, cfg.ReportCap)
	reportStore.StartRetention()
	defer reportStore.StopRetention()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(cfg.AppVersion))
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(middleware.RequestContext())
	router.Use(middleware.SecurityHeaders())

	rateLimiter := middleware.NewInMemoryRateLimiter()
	slog.Info("Rate limiter initialized", "backend", "in-memory", "max_requests", middleware.RateLimitMaxRequests, "window_seconds", middleware.RateLimitWindow)

	templatesDir := findTemplatesDir()
	tmpl := template.Must(
		template.New("").Funcs(tmplFuncs.FuncMap()).ParseGlob(filepath.Join(templatesDir, "*.html")),
	)
	router.SetHTMLTemplate(tmpl)

	staticDir := findStaticDir()
	staticFS := http.Dir(staticDir)
	fileServer := http.StripPrefix("/static", http.FileServer(staticFS))
	router.GET("/static/*filepath", func(c *gin.Context) {
		fp := c.Param("filepath")
		if strings.HasSuffix(fp, ".css") || strings.HasSuffix(fp, ".js") ||
			strings.HasSuffix(fp, ".png") || strings.HasSuffix(fp, ".ico") ||
			strings.HasSuffix(fp, ".svg") {
			if strings.Contains(c.Request.URL.RawQuery, "v=") {
				c.Header(headerCacheControl, "public, max-age=31536000, immutable")
			} else {
				c.Header(headerCacheControl, "public, max-age=86400")
			}
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	})

	registry := telemetry.NewRegistry()
	asnResolver := asnlookup.New()

	runner := diagnose.New(asnResolver,
		probes.NewGlobalpingClient(cfg.GlobalpingBaseURL, cfg.GlobalpingToken, cfg.PollInterval, cfg.MaxPolls, registry),
		probes.NewCheckHostClient(cfg.CheckHostBaseURL, cfg.PollInterval, cfg.MaxPolls, registry),
	)
	slog.Info("Measurement providers initialized", "providers", []string{"globalping", "check-host"})

	homeHandler := handlers.NewHomeHandler(cfg)
	diagnoseHandler := handlers.NewDiagnoseHandler(cfg, runner, reportStore)
	reportHandler := handlers.NewReportHandler(cfg, reportStore)
	historyHandler := handlers.NewHistoryHandler(cfg, reportStore)
	exportHandler := handlers.NewExportHandler(reportStore)
	healthHandler := handlers.NewHealthHandler(registry, asnResolver, reportStore)

	router.GET("/", homeHandler.Index)
	router.POST("/diagnose", middleware.DiagnoseRateLimit(rateLimiter), diagnoseHandler.Diagnose)

	router.GET("/report/:id", reportHandler.ViewReport)
	router.GET("/report/:id/pdf", reportHandler.PDFReport)
	router.GET("/api/report/:id", reportHandler.APIReport)

	router.GET("/history", historyHandler.History)
	router.GET("/export/json", exportHandler.ExportJSON)

	router.GET("/go/health", healthHandler.HealthCheck)
	router.GET("/api/health", healthHandler.HealthCheck)
	router.GET("/metrics", metrics.Handler())

	router.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, "index.html", gin.H{
			"AppVersion":   cfg.AppVersion,
			"ActivePage":   "home",
			"Scopes":       probes.Scopes(),
			"DefaultLimit": cfg.DefaultProbeLimit,
			"MaxLimit":     cfg.MaxProbeLimit,
			"FormDomain":   "",
			"FormScope":    "",
		})
	})

	addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
	slog.Info("Starting network diagnostic server", "address", addr, "version", cfg.AppVersion)

	if err := router.Run(addr); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}

func findTemplatesDir() string {
	candidates := []string{
		"templates",
		"../templates",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	slog.Warn("Templates directory not found, using default")
	return "templates"
}

func findStaticDir() string {
	candidates := []string{
		"static",
		"../static",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	slog.Warn("Static directory not found, using default")
	return "static"
}
