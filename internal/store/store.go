// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package store keeps finished diagnostic reports in process memory.
// Reports survive until they expire, the cap evicts them, or the process
// exits. There is no durable backend here on purpose.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/metrics"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
)

var ErrNotFound = fmt.Errorf("report not found")

type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]*models.DiagnosticReport
	ttl     time.Duration
	cap     int
	cron    *cron.Cron
}

func New(ttl time.Duration, capacity int) *ReportStore {
	return &ReportStore{
		reports: make(map[string]*models.DiagnosticReport),
		ttl:     ttl,
		cap:     capacity,
	}
}

// StartRetention schedules the expiry sweep. Separate from New so tests can
// drive Sweep directly.
func (s *ReportStore) StartRetention() {
	s.cron = cron.New()
	_, err := s.cron.AddFunc("*/10 * * * *", func() {
		removed := s.Sweep(time.Now())
		if removed > 0 {
			slog.Info("Report retention sweep", "removed", removed, "remaining", s.Len())
		}
	})
	if err != nil {
		slog.Error("Failed to schedule retention sweep", "error", err)
		return
	}
	s.cron.Start()
}

func (s *ReportStore) StopRetention() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *ReportStore) Save(report *models.DiagnosticReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.reports) >= s.cap {
		s.evictOldestLocked()
	}
	s.reports[report.ID] = report
	metrics.StoredReports.Set(float64(len(s.reports)))
}

func (s *ReportStore) Get(id string) (*models.DiagnosticReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return report, nil
}

func (s *ReportStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
	metrics.StoredReports.Set(float64(len(s.reports)))
}

// List returns up to limit reports, newest first.
func (s *ReportStore) List(limit int) []*models.DiagnosticReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.DiagnosticReport, 0, len(s.reports))
	for _, r := range s.reports {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Each streams every stored report to fn, newest first, stopping early if
// the context is cancelled. Used by the NDJSON export.
func (s *ReportStore) Each(ctx context.Context, fn func(*models.DiagnosticReport) error) error {
	for _, report := range s.List(0) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(report); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Sweep removes reports older than the TTL relative to now and reports how
// many were removed.
func (s *ReportStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := now.Add(-s.ttl)
	for id, report := range s.reports {
		if report.CreatedAt.Before(cutoff) {
			delete(s.reports, id)
			removed++
		}
	}
	metrics.StoredReports.Set(float64(len(s.reports)))
	return removed
}

func (s *ReportStore) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	first := true

	for id, report := range s.reports {
		if first || report.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = report.CreatedAt
			first = false
		}
	}
	if !first {
		delete(s.reports, oldestID)
	}
}
