// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package probes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gxfn33157/diagnostico-rede-leste/internal/models"
)

// Client is one third-party measurement provider. Run creates a measurement,
// polls it to completion within the client's poll budget, and returns
// whatever observations arrived. A non-nil error means the provider produced
// nothing usable; partial data comes back as a report with Partial set.
type Client interface {
	Name() string
	Run(ctx context.Context, spec models.MeasurementSpec) (models.ProviderReport, error)
}

var UserAgent = "diagnostico-rede-leste/1.0 (+https://github.com/gxfn33157/diagnostico-rede-leste)"

func SetUserAgentVersion(version string) {
	UserAgent = fmt.Sprintf("diagnostico-rede-leste/%s (+https://github.com/gxfn33157/diagnostico-rede-leste)", version)
}

const maxResponseBytes = 4 << 20

type apiHTTPClient struct {
	client    *http.Client
	userAgent string
}

func newAPIHTTPClient(timeout time.Duration) *apiHTTPClient {
	return &apiHTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     30 * time.Second,
				DisableKeepAlives:   false,
				MaxIdleConnsPerHost: 5,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: UserAgent,
	}
}

func (c *apiHTTPClient) do(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

func (c *apiHTTPClient) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

func strPtr(s string) *string {
	return &s
}
