// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port              string
	AppVersion        string
	GlobalpingBaseURL string
	GlobalpingToken   string
	CheckHostBaseURL  string
	PollInterval      time.Duration
	MaxPolls          int
	MaxProbeLimit     int
	DefaultProbeLimit int
	ReportTTL         time.Duration
	ReportCap         int
	MaintenanceNote   string
}

const (
	defaultGlobalpingBaseURL = "https://api.globalping.io/v1"
	defaultCheckHostBaseURL  = "https://check-host.net"
)

func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	gpBase := os.Getenv("GLOBALPING_BASE_URL")
	if gpBase == "" {
		gpBase = defaultGlobalpingBaseURL
	}

	chBase := os.Getenv("CHECKHOST_BASE_URL")
	if chBase == "" {
		chBase = defaultCheckHostBaseURL
	}

	pollMs, err := intEnv("POLL_INTERVAL_MS", 1500)
	if err != nil {
		return nil, err
	}

	maxPolls, err := intEnv("MAX_POLLS", 12)
	if err != nil {
		return nil, err
	}

	maxLimit, err := intEnv("MAX_PROBE_LIMIT", 16)
	if err != nil {
		return nil, err
	}

	defaultLimit, err := intEnv("DEFAULT_PROBE_LIMIT", 6)
	if err != nil {
		return nil, err
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	ttlHours, err := intEnv("REPORT_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}

	reportCap, err := intEnv("REPORT_CAP", 200)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:              port,
		AppVersion:        "1.4.2",
		GlobalpingBaseURL: gpBase,
		GlobalpingToken:   os.Getenv("GLOBALPING_API_TOKEN"),
		CheckHostBaseURL:  chBase,
		PollInterval:      time.Duration(pollMs) * time.Millisecond,
		MaxPolls:          maxPolls,
		MaxProbeLimit:     maxLimit,
		DefaultProbeLimit: defaultLimit,
		ReportTTL:         time.Duration(ttlHours) * time.Hour,
		ReportCap:         reportCap,
		MaintenanceNote:   os.Getenv("MAINTENANCE_NOTE"),
	}, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", name, v)
	}
	return v, nil
}
