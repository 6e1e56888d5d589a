// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package probes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
)

func pingSpec(scope string) models.MeasurementSpec {
	return models.MeasurementSpec{
		Domain:      "example.com.br",
		ASCIIDomain: "example.com.br",
		Type:        models.MeasurePing,
		Scope:       scope,
		Limit:       4,
	}
}

func newGlobalpingTest(t *testing.T, handler http.Handler) *GlobalpingClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGlobalpingClient(server.URL, "", time.Millisecond, 5, telemetry.NewRegistry())
}

func TestGlobalpingRunPing(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/measurements", func(w http.ResponseWriter, r *http.Request) {
		var req gpCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad create body: %v", err)
		}
		if req.Target != "example.com.br" || req.Type != "ping" {
			t.Errorf("unexpected create request: %+v", req)
		}
		if len(req.Locations) != 1 || req.Locations[0]["magic"] != "BR" {
			t.Errorf("expected BR magic location, got %+v", req.Locations)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(gpCreateResponse{ID: "m-123", ProbesCount: 2})
	})
	mux.HandleFunc("/measurements/m-123", func(w http.ResponseWriter, r *http.Request) {
		// First poll still running, second poll finished.
		if polls.Add(1) == 1 {
			json.NewEncoder(w).Encode(map[string]interface{}{"id": "m-123", "status": "in-progress"})
			return
		}
		w.Write([]byte(`{
			"id": "m-123", "status": "finished",
			"results": [
				{
					"probe": {"country": "BR", "city": "Sao Paulo", "asn": 28573, "network": "Claro"},
					"result": {
						"status": "finished",
						"resolvedAddress": "203.0.113.7",
						"stats": {"min": 9.1, "avg": 11.4, "max": 14.0, "loss": 0},
						"timings": [{"rtt": 10.2}, {"rtt": 11.4}, {"rtt": 12.6}]
					}
				},
				{
					"probe": {"country": "BR", "city": "Rio de Janeiro", "asn": 7738, "network": "Oi"},
					"result": {"status": "finished", "timings": []}
				}
			]
		}`))
	})

	client := newGlobalpingTest(t, mux)
	report, err := client.Run(context.Background(), pingSpec("brazil"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Partial {
		t.Error("finished measurement should not be partial")
	}
	if len(report.Observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(report.Observations))
	}

	first := report.Observations[0]
	if !first.Completed {
		t.Error("probe with timings should be completed")
	}
	if first.ASN != "28573" || first.Country != "BR" {
		t.Errorf("unexpected probe identity: %+v", first)
	}
	if first.MedianMs != 11.4 {
		t.Errorf("expected median 11.4, got %v", first.MedianMs)
	}
	if first.MinMs != 9.1 || first.MaxMs != 14.0 {
		t.Errorf("stats not carried over: %+v", first)
	}
	if len(first.Resolved) != 1 || first.Resolved[0] != "203.0.113.7" {
		t.Errorf("resolved address not captured: %v", first.Resolved)
	}

	second := report.Observations[1]
	if second.Completed {
		t.Error("probe with no timings should be failed")
	}
	if second.Error == nil || *second.Error != "no replies" {
		t.Errorf("expected no-replies error, got %v", second.Error)
	}
	if second.LossPct != 100 {
		t.Errorf("expected 100%% loss, got %v", second.LossPct)
	}
}

func TestGlobalpingRunDNS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measurements", func(w http.ResponseWriter, r *http.Request) {
		var req gpCreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Type != "dns" {
			t.Errorf("expected dns type, got %q", req.Type)
		}
		json.NewEncoder(w).Encode(gpCreateResponse{ID: "m-dns"})
	})
	mux.HandleFunc("/measurements/m-dns", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": "m-dns", "status": "finished",
			"results": [{
				"probe": {"country": "DE", "asn": 3320, "network": "Deutsche Telekom"},
				"result": {
					"status": "finished",
					"statusCodeName": "NOERROR",
					"timings": {"total": 23.0},
					"answers": [{"type": "A", "value": "203.0.113.7"}, {"type": "AAAA", "value": "2001:db8::7"}]
				}
			}]
		}`))
	})

	client := newGlobalpingTest(t, mux)
	spec := pingSpec("global")
	spec.Type = models.MeasureDNS

	report, err := client.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	obs := report.Observations[0]
	if !obs.Completed {
		t.Fatal("NOERROR answer should be completed")
	}
	if obs.MedianMs != 23.0 {
		t.Errorf("expected resolution time 23ms, got %v", obs.MedianMs)
	}
	if len(obs.Resolved) != 2 {
		t.Errorf("expected both A and AAAA answers, got %v", obs.Resolved)
	}
}

func TestGlobalpingNoProbesForScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measurements", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": {"type": "no_probes_found"}}`))
	})

	client := newGlobalpingTest(t, mux)
	_, err := client.Run(context.Background(), pingSpec("cloud"))
	if err == nil {
		t.Fatal("expected error when no probes matched")
	}
}

func TestGlobalpingPollBudgetKeepsPartial(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measurements", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gpCreateResponse{ID: "m-slow"})
	})
	mux.HandleFunc("/measurements/m-slow", func(w http.ResponseWriter, r *http.Request) {
		// Never finishes, but always carries one in-flight result.
		w.Write([]byte(`{
			"id": "m-slow", "status": "in-progress",
			"results": [{
				"probe": {"country": "US", "asn": 7922, "network": "Comcast"},
				"result": {"status": "finished", "timings": [{"rtt": 30.0}]}
			}]
		}`))
	})

	client := newGlobalpingTest(t, mux)
	report, err := client.Run(context.Background(), pingSpec("global"))
	if err != nil {
		t.Fatalf("exhausted budget with a snapshot should not error: %v", err)
	}
	if !report.Partial {
		t.Error("exhausted budget should flag report partial")
	}
	if len(report.Observations) != 1 {
		t.Errorf("last snapshot should be kept, got %d observations", len(report.Observations))
	}
}

func TestGlobalpingCooldownRefusesRun(t *testing.T) {
	registry := telemetry.NewRegistry()
	for i := 0; i < 8; i++ {
		registry.RecordFailure(GlobalpingName, "boom")
	}
	client := NewGlobalpingClient("http://127.0.0.1:1", "", time.Millisecond, 1, registry)

	_, err := client.Run(context.Background(), pingSpec("global"))
	if err == nil {
		t.Fatal("expected cooldown error")
	}
}

func TestGlobalpingContextCancelDuringPoll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/measurements", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gpCreateResponse{ID: "m-ctx"})
	})
	mux.HandleFunc("/measurements/m-ctx", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "m-ctx", "status": "in-progress"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewGlobalpingClient(server.URL, "", 50*time.Millisecond, 100, telemetry.NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	_, err := client.Run(ctx, pingSpec("global"))
	if err == nil {
		t.Fatal("expected context error")
	}
}
