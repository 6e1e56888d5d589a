// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package asnlookup resolves the ASN behind an IP address through Team
// Cymru's DNS interface. It exists purely to supply deduplication keys and
// display metadata for probe observations; no measurement happens here.
package asnlookup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
	"github.com/gxfn33157/diagnostico-rede-leste/internal/telemetry"
)

type Info struct {
	ASN     string `json:"asn"`
	ASName  string `json:"as_name"`
	Country string `json:"country"`
	Prefix  string `json:"prefix"`
}

const (
	originSuffixV4 = ".origin.asn.cymru.com"
	originSuffixV6 = ".origin6.asn.cymru.com"

	cacheTTL  = 12 * time.Hour
	cacheSize = 2048
)

type Resolver struct {
	server  string
	client  *dns.Client
	ipCache *telemetry.TTLCache[Info]
	asCache *telemetry.TTLCache[string]
}

type Option func(*Resolver)

func WithServer(addr string) Option {
	return func(r *Resolver) { r.server = addr }
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		server:  "1.1.1.1:53",
		client:  &dns.Client{Timeout: 3 * time.Second},
		ipCache: telemetry.NewTTLCache[Info]("asn_by_ip", cacheSize, cacheTTL),
		asCache: telemetry.NewTTLCache[string]("asn_names", cacheSize, cacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) CacheStats() []telemetry.CacheStats {
	return []telemetry.CacheStats{r.ipCache.Stats(), r.asCache.Stats()}
}

func (r *Resolver) Lookup(ctx context.Context, ip string) (Info, error) {
	if cached, ok := r.ipCache.Get(ip); ok {
		return cached, nil
	}

	name, err := originQuery(ip)
	if err != nil {
		return Info{}, err
	}

	records, err := r.queryTXT(ctx, name)
	if err != nil {
		return Info{}, err
	}
	if len(records) == 0 {
		return Info{}, fmt.Errorf("no origin ASN data for %s", ip)
	}

	info := parseOriginRecord(records[0])
	if info.ASN == "" {
		return Info{}, fmt.Errorf("unparseable origin record for %s", ip)
	}

	if name, err := r.lookupASName(ctx, info.ASN); err == nil {
		info.ASName = name
	}

	r.ipCache.Set(ip, info)
	return info, nil
}

// EnrichObservations backfills ASN metadata on observations that carry a
// probe IP but no ASN (Check-Host nodes). Lookup failures are logged and
// skipped; enrichment never blocks a report.
func (r *Resolver) EnrichObservations(ctx context.Context, observations []models.Observation) {
	for i := range observations {
		obs := &observations[i]
		if obs.ASN != "" || obs.ProbeIP == "" {
			continue
		}
		info, err := r.Lookup(ctx, obs.ProbeIP)
		if err != nil {
			slog.Debug("ASN lookup failed", "ip", obs.ProbeIP, "error", err)
			continue
		}
		obs.ASN = info.ASN
		if obs.ASName == "" {
			obs.ASName = info.ASName
		}
		if obs.Country == "" {
			obs.Country = info.Country
		}
	}
}

func (r *Resolver) lookupASName(ctx context.Context, asn string) (string, error) {
	if cached, ok := r.asCache.Get(asn); ok {
		return cached, nil
	}

	records, err := r.queryTXT(ctx, fmt.Sprintf("AS%s.asn.cymru.com", asn))
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no AS name data for AS%s", asn)
	}

	parts := strings.Split(strings.Trim(records[0], "\""), "|")
	if len(parts) < 5 {
		return "", fmt.Errorf("unparseable AS record for AS%s", asn)
	}
	name := strings.TrimSpace(parts[4])
	r.asCache.Set(asn, name)
	return name, nil
}

func (r *Resolver) queryTXT(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("TXT query for %s returned %s", name, dns.RcodeToString[in.Rcode])
	}

	var records []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// Origin records look like "15169 | 8.8.8.0/24 | US | arin | 1992-12-01".
// Multi-origin answers ("64512 64513 | ...") keep only the first ASN.
func parseOriginRecord(record string) Info {
	parts := strings.Split(strings.Trim(record, "\""), "|")
	if len(parts) < 3 {
		return Info{}
	}
	asn := strings.TrimSpace(parts[0])
	if fields := strings.Fields(asn); len(fields) > 1 {
		asn = fields[0]
	}
	return Info{
		ASN:     asn,
		Prefix:  strings.TrimSpace(parts[1]),
		Country: strings.TrimSpace(parts[2]),
	}
}

func originQuery(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid IP address %q", ip)
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d%s", v4[3], v4[2], v4[1], v4[0], originSuffixV4), nil
	}

	v6 := parsed.To16()
	nibbles := make([]string, 0, 32)
	for i := 15; i >= 0; i-- {
		nibbles = append(nibbles,
			fmt.Sprintf("%x", v6[i]&0x0f),
			fmt.Sprintf("%x", v6[i]>>4),
		)
	}
	return strings.Join(nibbles, ".") + originSuffixV6, nil
}
