// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package probes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
)

const GlobalpingName = "globalping"

const contentTypeJSON = "application/json"

// GlobalpingClient drives the Globalping distributed probe network:
// POST /measurements, then poll GET /measurements/{id} until the measurement
// leaves the in-progress state or the poll budget runs out.
type GlobalpingClient struct {
	baseURL      string
	token        string
	http         *apiHTTPClient
	registry     *telemetry.Registry
	pollInterval time.Duration
	maxPolls     int
}

func NewGlobalpingClient(baseURL, token string, pollInterval time.Duration, maxPolls int, registry *telemetry.Registry) *GlobalpingClient {
	return &GlobalpingClient{
		baseURL:      baseURL,
		token:        token,
		http:         newAPIHTTPClient(15 * time.Second),
		registry:     registry,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

func (g *GlobalpingClient) Name() string { return GlobalpingName }

type gpCreateRequest struct {
	Type               string                 `json:"type"`
	Target             string                 `json:"target"`
	Limit              int                    `json:"limit,omitempty"`
	Locations          []map[string]string    `json:"locations,omitempty"`
	MeasurementOptions map[string]interface{} `json:"measurementOptions,omitempty"`
}

type gpCreateResponse struct {
	ID          string `json:"id"`
	ProbesCount int    `json:"probesCount"`
}

type gpMeasurement struct {
	ID      string     `json:"id"`
	Status  string     `json:"status"`
	Results []gpResult `json:"results"`
}

type gpResult struct {
	Probe struct {
		Continent string `json:"continent"`
		Country   string `json:"country"`
		State     string `json:"state"`
		City      string `json:"city"`
		ASN       int    `json:"asn"`
		Network   string `json:"network"`
	} `json:"probe"`
	Result gpResultBody `json:"result"`
}

type gpResultBody struct {
	Status          string `json:"status"`
	ResolvedAddress string `json:"resolvedAddress"`
	Stats           *struct {
		Min  float64 `json:"min"`
		Avg  float64 `json:"avg"`
		Max  float64 `json:"max"`
		Loss float64 `json:"loss"`
	} `json:"stats"`
	// Ping returns an array of per-packet timings, DNS a single object.
	Timings json.RawMessage `json:"timings"`
	Answers []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"answers"`
	StatusCodeName string `json:"statusCodeName"`
}

func (g *GlobalpingClient) Run(ctx context.Context, spec models.MeasurementSpec) (models.ProviderReport, error) {
	report := models.ProviderReport{Provider: GlobalpingName}

	if g.registry.InCooldown(GlobalpingName) {
		return report, fmt.Errorf("globalping: cooling down after repeated failures")
	}

	start := time.Now()
	id, err := g.create(ctx, spec)
	if err != nil {
		g.registry.RecordFailure(GlobalpingName, err.Error())
		return report, err
	}

	slog.Info("Globalping: measurement created", "id", id, "domain", spec.ASCIIDomain, "type", spec.Type)

	measurement, finished, err := g.poll(ctx, id)
	if err != nil {
		g.registry.RecordFailure(GlobalpingName, err.Error())
		return report, err
	}

	for i, res := range measurement.Results {
		report.Observations = append(report.Observations, g.toObservation(spec, i, res))
	}
	report.Partial = !finished

	g.registry.RecordSuccess(GlobalpingName, time.Since(start))
	slog.Info("Globalping: measurement complete",
		"id", id, "probes", len(report.Observations), "partial", report.Partial)
	return report, nil
}

func (g *GlobalpingClient) create(ctx context.Context, spec models.MeasurementSpec) (string, error) {
	reqBody := gpCreateRequest{
		Type:   string(spec.Type),
		Target: spec.ASCIIDomain,
		Limit:  spec.Limit,
	}

	if scope, ok := LookupScope(spec.Scope); ok && scope.GlobalpingMagic != "" {
		reqBody.Locations = []map[string]string{{"magic": scope.GlobalpingMagic}}
	}
	if spec.Type == models.MeasureDNS {
		reqBody.MeasurementOptions = map[string]interface{}{
			"query": map[string]string{"type": "A"},
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	headers := map[string]string{"Content-Type": contentTypeJSON, "Accept": contentTypeJSON}
	if g.token != "" {
		headers["Authorization"] = "Bearer " + g.token
	}

	resp, err := g.http.do(ctx, http.MethodPost, g.baseURL+"/measurements", bytes.NewReader(payload), headers)
	if err != nil {
		return "", fmt.Errorf("globalping: create request failed: %w", err)
	}

	body, err := g.http.readBody(resp)
	if err != nil {
		return "", fmt.Errorf("globalping: reading create response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusTooManyRequests:
		return "", fmt.Errorf("globalping: rate limited (429)")
	case http.StatusUnprocessableEntity:
		return "", fmt.Errorf("globalping: no probes matched the requested scope")
	default:
		return "", fmt.Errorf("globalping: unexpected create status %d", resp.StatusCode)
	}

	var created gpCreateResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("globalping: malformed create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("globalping: create response missing measurement id")
	}
	return created.ID, nil
}

// poll fetches the measurement until it reports finished. Transient fetch
// errors do not abort the loop; only a fully wasted budget does. Returns the
// last good snapshot so partial results survive an exhausted budget.
func (g *GlobalpingClient) poll(ctx context.Context, id string) (*gpMeasurement, bool, error) {
	var last *gpMeasurement
	var lastErr error

	for attempt := 0; attempt < g.maxPolls; attempt++ {
		if err := sleepCtx(ctx, g.pollInterval); err != nil {
			return nil, false, err
		}

		m, err := g.fetch(ctx, id)
		if err != nil {
			lastErr = err
			slog.Warn("Globalping: poll attempt failed", "id", id, "attempt", attempt+1, "error", err)
			continue
		}
		last = m

		if m.Status != "in-progress" {
			return m, true, nil
		}
	}

	if last == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("globalping: measurement %s never returned a result", id)
		}
		return nil, false, lastErr
	}
	slog.Warn("Globalping: poll budget exhausted, keeping partial results", "id", id, "polls", g.maxPolls)
	return last, false, nil
}

func (g *GlobalpingClient) fetch(ctx context.Context, id string) (*gpMeasurement, error) {
	resp, err := g.http.do(ctx, http.MethodGet, g.baseURL+"/measurements/"+id, nil, map[string]string{"Accept": contentTypeJSON})
	if err != nil {
		return nil, err
	}
	body, err := g.http.readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("globalping: unexpected poll status %d", resp.StatusCode)
	}

	var m gpMeasurement
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("globalping: malformed measurement response: %w", err)
	}
	return &m, nil
}

func (g *GlobalpingClient) toObservation(spec models.MeasurementSpec, idx int, res gpResult) models.Observation {
	obs := models.Observation{
		Provider: GlobalpingName,
		ProbeID:  fmt.Sprintf("gp-%02d", idx+1),
		Country:  res.Probe.Country,
		City:     res.Probe.City,
		Network:  res.Probe.Network,
	}
	if res.Probe.ASN > 0 {
		obs.ASN = fmt.Sprintf("%d", res.Probe.ASN)
		obs.ASName = res.Probe.Network
	}

	body := res.Result
	if body.ResolvedAddress != "" {
		obs.Resolved = append(obs.Resolved, body.ResolvedAddress)
	}
	for _, ans := range body.Answers {
		if ans.Type == "A" || ans.Type == "AAAA" {
			obs.Resolved = append(obs.Resolved, ans.Value)
		}
	}

	if body.Status != "finished" {
		obs.Error = strPtr("probe " + body.Status)
		return obs
	}

	switch spec.Type {
	case models.MeasureDNS:
		var t struct {
			Total float64 `json:"total"`
		}
		if len(body.Timings) > 0 {
			_ = json.Unmarshal(body.Timings, &t)
		}
		if body.StatusCodeName != "" && body.StatusCodeName != "NOERROR" {
			obs.Error = strPtr("DNS " + body.StatusCodeName)
			return obs
		}
		obs.Completed = true
		obs.MinMs, obs.AvgMs, obs.MaxMs, obs.MedianMs = t.Total, t.Total, t.Total, t.Total
	default:
		var timings []struct {
			RTT float64 `json:"rtt"`
		}
		if len(body.Timings) > 0 {
			_ = json.Unmarshal(body.Timings, &timings)
		}
		rtts := make([]float64, 0, len(timings))
		for _, t := range timings {
			rtts = append(rtts, t.RTT)
		}
		if len(rtts) == 0 {
			obs.Error = strPtr("no replies")
			obs.LossPct = 100
			return obs
		}
		obs.Completed = true
		obs.MedianMs, _ = stats.Median(rtts)
		if body.Stats != nil {
			obs.MinMs = body.Stats.Min
			obs.AvgMs = body.Stats.Avg
			obs.MaxMs = body.Stats.Max
			obs.LossPct = body.Stats.Loss
		}
	}
	return obs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
