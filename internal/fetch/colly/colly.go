// Package collyfetch retrieves pages with a plain HTTP collector. It is
// the cheapest strategy and runs first for platforms without a login
// wall or heavy client-side rendering.
package collyfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Strategy fetches over plain HTTP using the Colly collector.
type Strategy struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds the strategy with a pooled transport shared across fetches.
func New(cfg Config) *Strategy {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Strategy{cfg: cfg, baseCollector: c}
}

// Name identifies the strategy in outcomes and logs.
func (s *Strategy) Name() string { return "colly" }

// Fetch executes a single HTTP GET. Server-side 4xx on the document
// itself is fatal; transport errors are recoverable misses.
func (s *Strategy) Fetch(ctx context.Context, url string, plat platform.Platform) (*reader.RawPage, error) {
	var (
		page     *reader.RawPage
		fetchErr error
	)
	start := time.Now()

	collector := s.baseCollector.Clone()
	collector.UserAgent = s.userAgentFor(plat)
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		if plat.Referer != "" {
			r.Headers.Set("Referer", plat.Referer)
		}
		r.Headers.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	})
	collector.OnResponse(func(r *colly.Response) {
		page = &reader.RawPage{
			URL:        url,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && permanentStatus(r.StatusCode) {
			fetchErr = &reader.FatalError{
				Strategy: s.Name(),
				Reason:   fmt.Sprintf("status %d", r.StatusCode),
			}
			return
		}
		fetchErr = err
	})

	visitErr := s.runCollector(ctx, collector, url)
	if ctx.Err() != nil {
		// The visit goroutine may still be running; do not touch its state.
		if visitErr == nil {
			visitErr = ctx.Err()
		}
		return nil, visitErr
	}
	// OnError classifies the failure; prefer it over the generic error
	// Visit surfaces for the same miss.
	if fetchErr != nil {
		return nil, fetchErr
	}
	if visitErr != nil {
		return nil, visitErr
	}
	if page == nil {
		return nil, fmt.Errorf("no response received")
	}
	return page, nil
}

// runCollector wraps the blocking Visit call so cancellation is honored.
func (s *Strategy) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (s *Strategy) userAgentFor(plat platform.Platform) string {
	if plat.UserAgent != "" {
		return plat.UserAgent
	}
	if s.cfg.UserAgent != "" {
		return s.cfg.UserAgent
	}
	return defaultUserAgent
}

// permanentStatus marks statuses that will not improve on retry or with
// a different strategy. 403 and 429 are excluded: they are usually
// anti-bot and a browser often gets through.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusNotFound, http.StatusGone, http.StatusUnavailableForLegalReasons:
		return true
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
