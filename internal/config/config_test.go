// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != "5000" {
		t.Errorf("expected default port 5000, got %s", cfg.Port)
	}
	if cfg.GlobalpingBaseURL != defaultGlobalpingBaseURL {
		t.Errorf("expected default Globalping base URL, got %s", cfg.GlobalpingBaseURL)
	}
	if cfg.CheckHostBaseURL != defaultCheckHostBaseURL {
		t.Errorf("expected default Check-Host base URL, got %s", cfg.CheckHostBaseURL)
	}
	if cfg.PollInterval != 1500*time.Millisecond {
		t.Errorf("expected default poll interval 1.5s, got %v", cfg.PollInterval)
	}
	if cfg.DefaultProbeLimit > cfg.MaxProbeLimit {
		t.Errorf("default probe limit %d exceeds max %d", cfg.DefaultProbeLimit, cfg.MaxProbeLimit)
	}
	if cfg.ReportTTL != 24*time.Hour {
		t.Errorf("expected default report TTL 24h, got %v", cfg.ReportTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_PROBE_LIMIT", "4")
	t.Setenv("DEFAULT_PROBE_LIMIT", "10")
	t.Setenv("REPORT_TTL_HOURS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.MaxProbeLimit != 4 {
		t.Errorf("expected max probe limit 4, got %d", cfg.MaxProbeLimit)
	}
	if cfg.DefaultProbeLimit != 4 {
		t.Errorf("default probe limit should clamp to max, got %d", cfg.DefaultProbeLimit)
	}
	if cfg.ReportTTL != 2*time.Hour {
		t.Errorf("expected report TTL 2h, got %v", cfg.ReportTTL)
	}
}

func TestLoadRejectsBadIntegers(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric", "MAX_POLLS", "soon"},
		{"zero", "POLL_INTERVAL_MS", "0"},
		{"negative", "REPORT_CAP", "-5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}
