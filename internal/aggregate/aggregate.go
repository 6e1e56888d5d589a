// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package aggregate merges the per-provider measurement reports into one
// deduplicated, ranked observation list with a synthesized summary. It is
// deliberately pure: no I/O, deterministic output for a given input.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
)

// Merge combines provider reports in the order given. Earlier providers win
// duplicate conflicts, so callers should pass the richer provider first.
//
// Deduplication key, in order of preference: ASN, probe IP, then
// provider/probe-id (never collides across providers). A duplicate is not
// dropped silently: the kept observation's Duplicates counter grows and
// missing fields are backfilled from the duplicate.
//
// A provider-level error becomes a ProviderErrors entry and never disturbs
// the other providers' data.
func Merge(spec models.MeasurementSpec, reports ...models.ProviderReport) *models.DiagnosticReport {
	out := &models.DiagnosticReport{
		Domain:      spec.Domain,
		ASCIIDomain: spec.ASCIIDomain,
		Type:        spec.Type,
		Scope:       spec.Scope,
		Limit:       spec.Limit,
	}

	index := newDedupIndex()
	received := 0

	for _, report := range reports {
		if report.Err != nil {
			out.ProviderErrors = append(out.ProviderErrors, models.ProviderError{
				Provider: report.Provider,
				Message:  *report.Err,
			})
		}
		if report.Partial {
			out.Partial = true
		}

		for _, obs := range report.Observations {
			received++
			index.add(obs)
		}
	}

	sort.Slice(out.ProviderErrors, func(i, j int) bool {
		return out.ProviderErrors[i].Provider < out.ProviderErrors[j].Provider
	})

	merged := index.observations()
	rank(merged)
	out.Observations = merged

	out.Summary = synthesize(merged, received)
	return out
}

// dedupIndex tracks kept observations under every identity they expose, so
// an ASN-less observation still collides with a same-IP one that knows its
// ASN (and inherits it via backfill).
type dedupIndex struct {
	byASN map[string]*models.Observation
	byIP  map[string]*models.Observation
	order []*models.Observation
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{
		byASN: make(map[string]*models.Observation),
		byIP:  make(map[string]*models.Observation),
	}
}

func (d *dedupIndex) add(obs models.Observation) {
	var existing *models.Observation
	if obs.ASN != "" {
		existing = d.byASN[obs.ASN]
	}
	if existing == nil && obs.ProbeIP != "" {
		existing = d.byIP[obs.ProbeIP]
	}

	if existing != nil {
		existing.Duplicates++
		backfill(existing, obs)
		d.reindex(existing)
		return
	}

	copied := obs
	d.order = append(d.order, &copied)
	d.reindex(&copied)
}

func (d *dedupIndex) reindex(obs *models.Observation) {
	if obs.ASN != "" {
		if _, taken := d.byASN[obs.ASN]; !taken {
			d.byASN[obs.ASN] = obs
		}
	}
	if obs.ProbeIP != "" {
		if _, taken := d.byIP[obs.ProbeIP]; !taken {
			d.byIP[obs.ProbeIP] = obs
		}
	}
}

func (d *dedupIndex) observations() []models.Observation {
	result := make([]models.Observation, 0, len(d.order))
	for _, obs := range d.order {
		result = append(result, *obs)
	}
	return result
}

// backfill fills holes in the kept observation from a same-key duplicate.
// Existing fields are never overwritten: first observation wins.
func backfill(dst *models.Observation, src models.Observation) {
	if dst.ASN == "" {
		dst.ASN = src.ASN
	}
	if dst.ASName == "" {
		dst.ASName = src.ASName
	}
	if dst.Network == "" {
		dst.Network = src.Network
	}
	if dst.Country == "" {
		dst.Country = src.Country
	}
	if dst.City == "" {
		dst.City = src.City
	}
	if dst.ProbeIP == "" {
		dst.ProbeIP = src.ProbeIP
	}
	if len(dst.Resolved) == 0 {
		dst.Resolved = src.Resolved
	}
}

// rank orders observations for display: completed before failed, measured
// latency before unmeasured, then ascending median latency. Country code and
// probe id break remaining ties so the output is stable.
func rank(observations []models.Observation) {
	sort.SliceStable(observations, func(i, j int) bool {
		a, b := observations[i], observations[j]

		if a.Completed != b.Completed {
			return a.Completed
		}
		aHas, bHas := a.MedianMs > 0, b.MedianMs > 0
		if aHas != bHas {
			return aHas
		}
		if aHas && a.MedianMs != b.MedianMs {
			return a.MedianMs < b.MedianMs
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		return a.ProbeID < b.ProbeID
	})
}

func synthesize(observations []models.Observation, received int) models.Summary {
	s := models.Summary{
		ProbesTotal:  received,
		Deduplicated: received - len(observations),
	}

	asns := make(map[string]struct{})
	countries := make(map[string]struct{})
	var medians []float64
	var mins []float64
	var losses []float64

	for _, obs := range observations {
		if obs.ASN != "" {
			asns[obs.ASN] = struct{}{}
		}
		if obs.Country != "" {
			countries[strings.ToUpper(obs.Country)] = struct{}{}
		}
		if !obs.Completed {
			s.Failed++
			continue
		}
		s.Completed++
		losses = append(losses, obs.LossPct)
		if obs.MedianMs > 0 {
			medians = append(medians, obs.MedianMs)
			mins = append(mins, obs.MinMs)
		}
	}

	s.DistinctASNs = len(asns)
	s.DistinctCountries = len(countries)

	if len(medians) > 0 {
		s.MinLatencyMs, _ = stats.Min(mins)
		s.MedianLatencyMs, _ = stats.Median(medians)
		s.P95LatencyMs, _ = stats.Percentile(medians, 95)
	}
	if len(losses) > 0 {
		s.AvgLossPct, _ = stats.Mean(losses)
	}

	s.ConsensusAddrs, s.DisputedAddrs = resolveConsensus(observations)
	return s
}

// resolveConsensus picks the most common resolved answer set as the
// consensus and reports every other seen address as disputed. Ties go to
// the lexicographically smallest set so reruns agree.
func resolveConsensus(observations []models.Observation) (consensus, disputed []string) {
	counts := make(map[string]int)
	union := make(map[string]struct{})

	for _, obs := range observations {
		if len(obs.Resolved) == 0 {
			continue
		}
		set := append([]string(nil), obs.Resolved...)
		sort.Strings(set)
		counts[strings.Join(set, ",")]++
		for _, addr := range set {
			union[addr] = struct{}{}
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}

	var bestKey string
	bestCount := -1
	for key, count := range counts {
		if count > bestCount || (count == bestCount && key < bestKey) {
			bestKey, bestCount = key, count
		}
	}

	consensus = strings.Split(bestKey, ",")
	inConsensus := make(map[string]struct{}, len(consensus))
	for _, addr := range consensus {
		inConsensus[addr] = struct{}{}
	}
	for addr := range union {
		if _, ok := inConsensus[addr]; !ok {
			disputed = append(disputed, addr)
		}
	}
	sort.Strings(disputed)
	return consensus, disputed
}

// Describe renders the one-line verdict shown above the web table.
func Describe(r *models.DiagnosticReport) string {
	switch {
	case len(r.Observations) == 0:
		return "No probe observations were collected."
	case r.Summary.Completed == 0:
		return fmt.Sprintf("All %d probes failed to reach %s.", r.Summary.Failed, r.Domain)
	case r.Summary.Failed > 0:
		return fmt.Sprintf("%d of %d probes reached %s (median %.1f ms).",
			r.Summary.Completed, r.Summary.Completed+r.Summary.Failed, r.Domain, r.Summary.MedianLatencyMs)
	default:
		return fmt.Sprintf("All %d probes reached %s (median %.1f ms).",
			r.Summary.Completed, r.Domain, r.Summary.MedianLatencyMs)
	}
}
