// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package handlers_test

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/asnlookup"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/config"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/diagnose"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/handlers"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/probes"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/store"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:              "5000",
		AppVersion:        "test",
		DefaultProbeLimit: 4,
		MaxProbeLimit:     8,
		ReportTTL:         time.Hour,
		ReportCap:         20,
	}
}

func testRouter() *gin.Engine {
	router := gin.New()
	tmpl := template.Must(template.New("index.html").Parse("form {{range .FlashMessages}}{{.Message}}{{end}}"))
	template.Must(tmpl.New("report.html").Parse("report {{.Report.ID}}"))
	template.Must(tmpl.New("history.html").Parse("history {{len .Reports}}"))
	router.SetHTMLTemplate(tmpl)
	return router
}

type stubClient struct {
	name   string
	report models.ProviderReport
	err    error
}

func (s *stubClient) Name() string { return s.name }
func (s *stubClient) Run(ctx context.Context, spec models.MeasurementSpec) (models.ProviderReport, error) {
	return s.report, s.err
}

func newRunner(clients ...probes.Client) *diagnose.Runner {
	asn := asnlookup.New(asnlookup.WithServer("127.0.0.1:1"))
	return diagnose.New(asn, clients...)
}

func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	return response
}

func storedReport(id string) *models.DiagnosticReport {
	return &models.DiagnosticReport{
		ID:          id,
		Domain:      "example.com.br",
		ASCIIDomain: "example.com.br",
		Type:        models.MeasurePing,
		Scope:       "global",
		Observations: []models.Observation{
			{Provider: "globalping", ProbeID: "gp-01", Country: "BR", Completed: true, MedianMs: 12},
		},
		Summary:   models.Summary{ProbesTotal: 1, Completed: 1},
		CreatedAt: time.Now().UTC(),
	}
}

func TestHealthCheckEndpoint(t *testing.T) {
	router := gin.New()
	registry := telemetry.NewRegistry()
	registry.RecordSuccess("globalping", 100*time.Millisecond)
	asn := asnlookup.New()
	reportStore := store.New(time.Hour, 10)

	handler := handlers.NewHealthHandler(registry, asn, reportStore)
	router.GET("/api/health", handler.HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	response := parseJSONResponse(t, w)
	if response["status"] != "ok" {
		t.Errorf("expected status ok, got %v", response["status"])
	}
	if _, ok := response["providers"]; !ok {
		t.Error("expected providers field")
	}
	if _, ok := response["caches"]; !ok {
		t.Error("expected caches field")
	}
	if response["overall_provider_health"] != "healthy" {
		t.Errorf("expected healthy overall state, got %v", response["overall_provider_health"])
	}
}

func postDiagnose(router *gin.Engine, form url.Values, acceptJSON bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/diagnose", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if acceptJSON {
		req.Header.Set("Accept", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDiagnoseValidDomainRedirectsToReport(t *testing.T) {
	runner := newRunner(&stubClient{name: "globalping", report: models.ProviderReport{
		Observations: []models.Observation{
			{Provider: "globalping", ProbeID: "gp-01", ASN: "28573", Country: "BR", Completed: true, MedianMs: 10},
		},
	}})
	reportStore := store.New(time.Hour, 10)

	router := testRouter()
	handler := handlers.NewDiagnoseHandler(testConfig(), runner, reportStore)
	router.POST("/diagnose", handler.Diagnose)

	w := postDiagnose(router, url.Values{
		"domain": {"example.com.br"},
		"scope":  {"global"},
		"limit":  {"4"},
		"type":   {"ping"},
	}, false)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "/report/") {
		t.Fatalf("unexpected redirect target %q", location)
	}
	id := strings.TrimPrefix(location, "/report/")
	if _, err := reportStore.Get(id); err != nil {
		t.Errorf("report %s should be stored: %v", id, err)
	}
}

func TestDiagnoseInvalidDomain(t *testing.T) {
	router := testRouter()
	handler := handlers.NewDiagnoseHandler(testConfig(), newRunner(), store.New(time.Hour, 10))
	router.POST("/diagnose", handler.Diagnose)

	w := postDiagnose(router, url.Values{"domain": {"not a domain"}, "scope": {"global"}}, false)

	if w.Code != http.StatusOK {
		t.Fatalf("expected form re-render, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid domain name") {
		t.Errorf("expected validation flash, got %q", w.Body.String())
	}
}

func TestDiagnoseUnknownScope(t *testing.T) {
	router := testRouter()
	handler := handlers.NewDiagnoseHandler(testConfig(), newRunner(), store.New(time.Hour, 10))
	router.POST("/diagnose", handler.Diagnose)

	w := postDiagnose(router, url.Values{"domain": {"example.com.br"}, "scope": {"mars"}}, false)
	if !strings.Contains(w.Body.String(), "Unknown scope") {
		t.Errorf("expected scope flash, got %q", w.Body.String())
	}
}

func TestDiagnoseAllProvidersDown(t *testing.T) {
	runner := newRunner(
		&stubClient{name: "globalping", err: providerErr("globalping: down")},
		&stubClient{name: "check-host", err: providerErr("check-host: down")},
	)
	router := testRouter()
	handler := handlers.NewDiagnoseHandler(testConfig(), runner, store.New(time.Hour, 10))
	router.POST("/diagnose", handler.Diagnose)

	w := postDiagnose(router, url.Values{"domain": {"example.com.br"}, "scope": {"global"}}, true)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	response := parseJSONResponse(t, w)
	if response["error"] == nil {
		t.Error("expected error message in JSON response")
	}
}

func TestAPIReport(t *testing.T) {
	reportStore := store.New(time.Hour, 10)
	id := uuid.New().String()
	reportStore.Save(storedReport(id))

	router := gin.New()
	handler := handlers.NewReportHandler(testConfig(), reportStore)
	router.GET("/api/report/:id", handler.APIReport)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/report/"+id, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	response := parseJSONResponse(t, w)
	if response["domain"] != "example.com.br" {
		t.Errorf("unexpected domain %v", response["domain"])
	}
}

func TestAPIReportNotFound(t *testing.T) {
	router := gin.New()
	handler := handlers.NewReportHandler(testConfig(), store.New(time.Hour, 10))
	router.GET("/api/report/:id", handler.APIReport)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/report/"+uuid.New().String(), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/report/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestPDFReport(t *testing.T) {
	reportStore := store.New(time.Hour, 10)
	id := uuid.New().String()
	reportStore.Save(storedReport(id))

	router := gin.New()
	handler := handlers.NewReportHandler(testConfig(), reportStore)
	router.GET("/report/:id/pdf", handler.PDFReport)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/report/"+id+"/pdf", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Error("body does not look like a PDF")
	}
}

func TestExportJSON(t *testing.T) {
	reportStore := store.New(time.Hour, 10)
	reportStore.Save(storedReport(uuid.New().String()))
	reportStore.Save(storedReport(uuid.New().String()))

	router := gin.New()
	handler := handlers.NewExportHandler(reportStore)
	router.GET("/export/json", handler.ExportJSON)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/export/json", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d", len(lines))
	}
	for _, line := range lines {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Errorf("line is not valid JSON: %v", err)
		}
	}
}

func TestHistoryPage(t *testing.T) {
	reportStore := store.New(time.Hour, 10)
	reportStore.Save(storedReport(uuid.New().String()))

	router := testRouter()
	handler := handlers.NewHistoryHandler(testConfig(), reportStore)
	router.GET("/history", handler.History)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/history", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "history 1") {
		t.Errorf("unexpected history body %q", w.Body.String())
	}
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

func providerErr(msg string) error { return stubErr(msg) }
