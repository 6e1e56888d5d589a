// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
)

func sampleReport() *models.DiagnosticReport {
	errMsg := "check-host: rate limited (429)"
	return &models.DiagnosticReport{
		ID:          "test-id",
		Domain:      "example.com.br",
		ASCIIDomain: "example.com.br",
		Type:        models.MeasurePing,
		Scope:       "brazil",
		Limit:       6,
		Observations: []models.Observation{
			{Provider: "globalping", ProbeID: "gp-01", Country: "BR", ASN: "28573", ASName: "CLARO S.A.", MedianMs: 12.4, Completed: true},
			{Provider: "globalping", ProbeID: "gp-02", Country: "BR", Error: strp("no replies"), LossPct: 100},
		},
		Summary: models.Summary{
			ProbesTotal: 3, Completed: 1, Failed: 1, Deduplicated: 1,
			DistinctASNs: 1, DistinctCountries: 1,
			MinLatencyMs: 11.9, MedianLatencyMs: 12.4, P95LatencyMs: 12.4,
			ConsensusAddrs: []string{"93.184.216.34"},
		},
		ProviderErrors: []models.ProviderError{{Provider: "check-host", Message: errMsg}},
		DurationSec:    8.2,
		CreatedAt:      time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, sampleReport()); err != nil {
		t.Fatalf("WritePDF returned error: %v", err)
	}

	if buf.Len() == 0 {
		t.Fatal("expected PDF output, got empty buffer")
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("output does not start with PDF magic, got %q", buf.Bytes()[:8])
	}
}

func TestWritePDFEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	r := &models.DiagnosticReport{
		ID: "empty", Domain: "example.com.br", Type: models.MeasurePing,
		Scope: "global", CreatedAt: time.Now(),
	}
	if err := WritePDF(&buf, r); err != nil {
		t.Fatalf("WritePDF on empty report returned error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected PDF output for empty report")
	}
}

func strp(s string) *string { return &s }
