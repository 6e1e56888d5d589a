// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
)

const CheckHostName = "check-host"

// CheckHostClient drives check-host.net: one GET creates the check and
// returns a request id plus the node list, then GET /check-result/{id} is
// polled until every node has reported. Nodes that never report inside the
// poll budget become failed observations.
//
// Check-Host cannot target locations at creation time, so geographic scopes
// are enforced by filtering the returned nodes.
type CheckHostClient struct {
	baseURL      string
	http         *apiHTTPClient
	registry     *telemetry.Registry
	pollInterval time.Duration
	maxPolls     int
}

func NewCheckHostClient(baseURL string, pollInterval time.Duration, maxPolls int, registry *telemetry.Registry) *CheckHostClient {
	return &CheckHostClient{
		baseURL:      baseURL,
		http:         newAPIHTTPClient(15 * time.Second),
		registry:     registry,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

func (c *CheckHostClient) Name() string { return CheckHostName }

type chCreateResponse struct {
	OK        int                 `json:"ok"`
	RequestID string              `json:"request_id"`
	Nodes     map[string][]string `json:"nodes"`
}

func (c *CheckHostClient) Run(ctx context.Context, spec models.MeasurementSpec) (models.ProviderReport, error) {
	report := models.ProviderReport{Provider: CheckHostName}

	scope, ok := LookupScope(spec.Scope)
	if !ok {
		return report, fmt.Errorf("check-host: unknown scope %q", spec.Scope)
	}
	if scope.CloudOnly {
		return report, fmt.Errorf("check-host: cannot target cloud-tagged probes")
	}

	if c.registry.InCooldown(CheckHostName) {
		return report, fmt.Errorf("check-host: cooling down after repeated failures")
	}

	start := time.Now()
	created, err := c.create(ctx, spec)
	if err != nil {
		c.registry.RecordFailure(CheckHostName, err.Error())
		return report, err
	}

	slog.Info("Check-Host: check created",
		"request_id", created.RequestID, "domain", spec.ASCIIDomain, "nodes", len(created.Nodes))

	results, finished := c.poll(ctx, created)

	for node, info := range created.Nodes {
		cc := ""
		if len(info) > 0 {
			cc = strings.ToLower(info[0])
		}
		if !scope.AllowsCountry(cc) {
			continue
		}
		report.Observations = append(report.Observations, c.toObservation(spec, node, info, results[node]))
	}
	report.Partial = !finished

	if len(report.Observations) == 0 {
		err := fmt.Errorf("check-host: no nodes inside scope %q", scope.Key)
		c.registry.RecordFailure(CheckHostName, err.Error())
		return report, err
	}

	c.registry.RecordSuccess(CheckHostName, time.Since(start))
	slog.Info("Check-Host: check complete",
		"request_id", created.RequestID, "observations", len(report.Observations), "partial", report.Partial)
	return report, nil
}

func (c *CheckHostClient) create(ctx context.Context, spec models.MeasurementSpec) (*chCreateResponse, error) {
	endpoint := "/check-ping"
	if spec.Type == models.MeasureDNS {
		endpoint = "/check-dns"
	}

	q := url.Values{}
	q.Set("host", spec.ASCIIDomain)
	q.Set("max_nodes", fmt.Sprintf("%d", spec.Limit))

	resp, err := c.http.do(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil,
		map[string]string{"Accept": contentTypeJSON})
	if err != nil {
		return nil, fmt.Errorf("check-host: create request failed: %w", err)
	}

	body, err := c.http.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("check-host: reading create response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("check-host: rate limited (429)")
	default:
		return nil, fmt.Errorf("check-host: unexpected create status %d", resp.StatusCode)
	}

	var created chCreateResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("check-host: malformed create response: %w", err)
	}
	if created.OK != 1 || created.RequestID == "" {
		return nil, fmt.Errorf("check-host: check was not accepted")
	}
	return &created, nil
}

// poll returns the per-node raw results keyed by node hostname. A node maps
// to JSON null until it reports; polling stops when no nulls remain or the
// budget is spent.
func (c *CheckHostClient) poll(ctx context.Context, created *chCreateResponse) (map[string]json.RawMessage, bool) {
	results := make(map[string]json.RawMessage)

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return results, false
		}

		resp, err := c.http.do(ctx, http.MethodGet, c.baseURL+"/check-result/"+created.RequestID, nil,
			map[string]string{"Accept": contentTypeJSON})
		if err != nil {
			slog.Warn("Check-Host: poll attempt failed", "request_id", created.RequestID, "attempt", attempt+1, "error", err)
			continue
		}
		body, err := c.http.readBody(resp)
		if err != nil || resp.StatusCode != http.StatusOK {
			slog.Warn("Check-Host: poll attempt rejected", "request_id", created.RequestID, "status", resp.StatusCode)
			continue
		}

		var snapshot map[string]json.RawMessage
		if err := json.Unmarshal(body, &snapshot); err != nil {
			slog.Warn("Check-Host: malformed poll response", "request_id", created.RequestID, "error", err)
			continue
		}

		pending := 0
		for node := range created.Nodes {
			raw, ok := snapshot[node]
			if !ok || isJSONNull(raw) {
				pending++
				continue
			}
			results[node] = raw
		}
		if pending == 0 {
			return results, true
		}
	}

	return results, false
}

func (c *CheckHostClient) toObservation(spec models.MeasurementSpec, node string, info []string, raw json.RawMessage) models.Observation {
	obs := models.Observation{
		Provider: CheckHostName,
		ProbeID:  strings.TrimSuffix(node, ".node.check-host.net"),
	}
	if len(info) > 0 {
		obs.Country = strings.ToUpper(info[0])
	}
	if len(info) > 2 {
		obs.City = info[2]
	}
	if len(info) > 3 {
		obs.ProbeIP = info[3]
	}
	if len(info) > 4 {
		obs.ASN = strings.TrimPrefix(info[4], "AS")
	}

	if len(raw) == 0 {
		obs.Error = strPtr("node did not report before deadline")
		return obs
	}

	if spec.Type == models.MeasureDNS {
		parseCheckHostDNS(&obs, raw)
	} else {
		parseCheckHostPing(&obs, raw)
	}
	return obs
}

// Ping results arrive as [[["OK",0.041,"1.2.3.4"],["OK",0.039],...]] with
// RTTs in seconds; a node-level failure is [null].
func parseCheckHostPing(obs *models.Observation, raw json.RawMessage) {
	var outer [][][]interface{}
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer) == 0 || outer[0] == nil {
		obs.Error = strPtr("node reported a failure")
		return
	}

	attempts := outer[0]
	var rtts []float64
	for _, attempt := range attempts {
		if len(attempt) == 0 {
			continue
		}
		status, _ := attempt[0].(string)
		if status == "OK" && len(attempt) > 1 {
			if sec, ok := attempt[1].(float64); ok {
				rtts = append(rtts, sec*1000)
			}
			if len(attempt) > 2 {
				if addr, ok := attempt[2].(string); ok && addr != "" {
					obs.Resolved = appendUnique(obs.Resolved, addr)
				}
			}
		}
	}

	if len(attempts) > 0 {
		obs.LossPct = float64(len(attempts)-len(rtts)) / float64(len(attempts)) * 100
	}
	if len(rtts) == 0 {
		obs.Error = strPtr("no replies")
		obs.LossPct = 100
		return
	}

	obs.Completed = true
	obs.MinMs, _ = stats.Min(rtts)
	obs.AvgMs, _ = stats.Mean(rtts)
	obs.MaxMs, _ = stats.Max(rtts)
	obs.MedianMs, _ = stats.Median(rtts)
}

// DNS results arrive as [{"A":[...],"AAAA":[...],"TTL":300}].
func parseCheckHostDNS(obs *models.Observation, raw json.RawMessage) {
	var outer []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer) == 0 || outer[0] == nil {
		obs.Error = strPtr("node reported a failure")
		return
	}

	for _, key := range []string{"A", "AAAA"} {
		var addrs []string
		if rawAddrs, ok := outer[0][key]; ok {
			if err := json.Unmarshal(rawAddrs, &addrs); err == nil {
				for _, a := range addrs {
					obs.Resolved = appendUnique(obs.Resolved, a)
				}
			}
		}
	}

	if len(obs.Resolved) == 0 {
		obs.Error = strPtr("no answers")
		return
	}
	obs.Completed = true
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
