// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package diagnose runs one diagnostic end to end: fan out to every
// measurement provider, enrich, merge, and stamp the result.
package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/aggregate"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/asnlookup"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/metrics"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/probes"
)

// ErrNoProviders means every provider failed outright and no observations
// exist at all. Partial data never produces this error.
var ErrNoProviders = fmt.Errorf("all measurement providers failed")

type Runner struct {
	clients []probes.Client
	asn     *asnlookup.Resolver
}

// New builds a runner over the given provider clients. Client order matters:
// earlier clients win deduplication conflicts, so the provider with richer
// probe metadata goes first.
func New(asn *asnlookup.Resolver, clients ...probes.Client) *Runner {
	return &Runner{clients: clients, asn: asn}
}

func (r *Runner) Run(ctx context.Context, spec models.MeasurementSpec) (*models.DiagnosticReport, error) {
	start := time.Now()
	reports := make([]models.ProviderReport, len(r.clients))

	// Providers run concurrently. A provider error is data (it becomes a
	// provider_errors entry), so goroutines never return one: that would
	// cancel the sibling provider through the group context.
	g, gctx := errgroup.WithContext(ctx)
	for i, client := range r.clients {
		i, client := i, client
		g.Go(func() error {
			rep, err := client.Run(gctx, spec)
			rep.Provider = client.Name()
			if err != nil {
				slog.Warn("Provider run failed", "provider", client.Name(), "domain", spec.ASCIIDomain, "error", err)
				msg := err.Error()
				rep.Err = &msg
				metrics.ProviderFailures.WithLabelValues(client.Name()).Inc()
			}
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()

	for i := range reports {
		r.asn.EnrichObservations(ctx, reports[i].Observations)
	}

	merged := aggregate.Merge(spec, reports...)
	merged.ID = uuid.New().String()
	merged.CreatedAt = time.Now().UTC()
	merged.DurationSec = time.Since(start).Seconds()

	if len(merged.Observations) == 0 && len(merged.ProviderErrors) == len(r.clients) {
		metrics.DiagnosticRuns.WithLabelValues("failed").Inc()
		return merged, ErrNoProviders
	}

	outcome := "ok"
	if len(merged.ProviderErrors) > 0 || merged.Partial {
		outcome = "degraded"
	}
	metrics.DiagnosticRuns.WithLabelValues(outcome).Inc()

	slog.Info("Diagnostic complete",
		"id", merged.ID,
		"domain", spec.ASCIIDomain,
		"probes", merged.Summary.ProbesTotal,
		"deduplicated", merged.Summary.Deduplicated,
		"provider_errors", len(merged.ProviderErrors),
		"duration_sec", fmt.Sprintf("%.1f", merged.DurationSec),
	)
	return merged, nil
}
