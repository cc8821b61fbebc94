// Package readerproxy fetches through a hosted reader endpoint that
// renders a page server-side and returns markdown. It handles
// JavaScript-heavy pages without a local browser, at the cost of an
// external dependency.
package readerproxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

const (
	defaultEndpoint = "https://r.jina.ai/"
	maxBodyBytes    = 10 << 20
)

// Config controls the proxy strategy.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Strategy fetches markdown through the reader proxy.
type Strategy struct {
	cfg    Config
	client *http.Client
}

// New builds the strategy. A zero Endpoint uses the public endpoint.
func New(cfg Config, client *http.Client) *Strategy {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Strategy{cfg: cfg, client: client}
}

// Name identifies the strategy in outcomes and logs.
func (s *Strategy) Name() string { return "readerproxy" }

// Fetch requests the proxied markdown rendition of url. The proxy URL
// is the endpoint with the target appended, so the target's own query
// string rides along unescaped.
func (s *Strategy) Fetch(ctx context.Context, url string, plat platform.Platform) (*reader.RawPage, error) {
	target := strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + url

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/markdown")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	if plat.Referer != "" {
		req.Header.Set("X-Target-Referer", plat.Referer)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read proxy body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, &reader.FatalError{Strategy: s.Name(), Reason: "target not found"}
	default:
		return nil, fmt.Errorf("proxy status %d", resp.StatusCode)
	}

	markdown := strings.TrimSpace(string(body))
	if markdown == "" {
		return nil, fmt.Errorf("proxy returned empty body")
	}

	return &reader.RawPage{
		URL:        url,
		FinalURL:   url,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Markdown:   markdown,
		Duration:   time.Since(start),
	}, nil
}
