// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package models

import (
	"time"
)

type MeasurementType string

const (
	MeasurePing MeasurementType = "ping"
	MeasureDNS  MeasurementType = "dns"
)

// MeasurementSpec is what the user asked for: one domain, one measurement
// kind, a geographic scope, and an upper bound on how many probes each
// provider may use.
type MeasurementSpec struct {
	Domain      string          `json:"domain"`
	ASCIIDomain string          `json:"ascii_domain"`
	Type        MeasurementType `json:"type"`
	Scope       string          `json:"scope"`
	Limit       int             `json:"limit"`
}

// Observation is one probe's view of the target, normalized across
// providers. Latency fields are zero when the probe failed.
type Observation struct {
	Provider   string   `json:"provider"`
	ProbeID    string   `json:"probe_id"`
	Country    string   `json:"country,omitempty"`
	City       string   `json:"city,omitempty"`
	Network    string   `json:"network,omitempty"`
	ASN        string   `json:"asn,omitempty"`
	ASName     string   `json:"as_name,omitempty"`
	ProbeIP    string   `json:"probe_ip,omitempty"`
	Resolved   []string `json:"resolved,omitempty"`
	MinMs      float64  `json:"min_ms"`
	AvgMs      float64  `json:"avg_ms"`
	MaxMs      float64  `json:"max_ms"`
	MedianMs   float64  `json:"median_ms"`
	LossPct    float64  `json:"loss_pct"`
	Completed  bool     `json:"completed"`
	Error      *string  `json:"error,omitempty"`
	Duplicates int      `json:"duplicates"`
}

// ProviderReport is the raw outcome of one provider's measurement run.
// Err is set when the provider as a whole failed; Partial is set when the
// poll budget ran out before every probe reported.
type ProviderReport struct {
	Provider     string        `json:"provider"`
	Observations []Observation `json:"observations"`
	Err          *string       `json:"error,omitempty"`
	Partial      bool          `json:"partial"`
}

type ProviderError struct {
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

type Summary struct {
	ProbesTotal       int      `json:"probes_total"`
	Completed         int      `json:"completed"`
	Failed            int      `json:"failed"`
	Deduplicated      int      `json:"deduplicated"`
	DistinctASNs      int      `json:"distinct_asns"`
	DistinctCountries int      `json:"distinct_countries"`
	MinLatencyMs      float64  `json:"min_latency_ms"`
	MedianLatencyMs   float64  `json:"median_latency_ms"`
	P95LatencyMs      float64  `json:"p95_latency_ms"`
	AvgLossPct        float64  `json:"avg_loss_pct"`
	ConsensusAddrs    []string `json:"consensus_addrs,omitempty"`
	DisputedAddrs     []string `json:"disputed_addrs,omitempty"`
}

// DiagnosticReport is the merged, deduplicated, ranked result of one
// diagnostic run. This is what the store holds and every renderer consumes.
type DiagnosticReport struct {
	ID             string          `json:"id"`
	Domain         string          `json:"domain"`
	ASCIIDomain    string          `json:"ascii_domain"`
	Type           MeasurementType `json:"type"`
	Scope          string          `json:"scope"`
	Limit          int             `json:"limit"`
	Observations   []Observation   `json:"observations"`
	Summary        Summary         `json:"summary"`
	ProviderErrors []ProviderError `json:"provider_errors,omitempty"`
	Partial        bool            `json:"partial"`
	DurationSec    float64         `json:"duration_sec"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (r *DiagnosticReport) Succeeded() bool {
	return r.Summary.Completed > 0
}

// ToDict flattens the report for NDJSON export and the JSON API, matching
// the shape the web table consumes.
func (r *DiagnosticReport) ToDict() map[string]interface{} {
	result := map[string]interface{}{
		"id":           r.ID,
		"domain":       r.Domain,
		"ascii_domain": r.ASCIIDomain,
		"type":         string(r.Type),
		"scope":        r.Scope,
		"limit":        r.Limit,
		"observations": r.Observations,
		"summary":      r.Summary,
		"partial":      r.Partial,
		"duration_sec": r.DurationSec,
	}
	if len(r.ProviderErrors) > 0 {
		result["provider_errors"] = r.ProviderErrors
	}
	if !r.CreatedAt.IsZero() {
		result["created_at"] = r.CreatedAt.Format(time.RFC3339)
	}
	return result
}
