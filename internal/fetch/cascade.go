// Package fetch runs an ordered cascade of retrieval strategies until
// one yields usable content. Strategy failures are classified so the
// caller can tell a retryable miss from a dead URL.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/fetch/detector"
	"github.com/metisreader/metis/internal/fetch/ratelimit"
	"github.com/metisreader/metis/internal/metrics"
	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

// challengeMarkers are phrases anti-bot walls serve instead of content.
// A page containing one is a recoverable miss, not a success.
var challengeMarkers = []string{
	"环境异常",
	"完成验证",
	"验证码",
	"please verify you are a human",
	"checking your browser",
}

const minUsefulBytes = 256

// Config controls cascade execution.
type Config struct {
	StrategyTimeout time.Duration
	// PerDomainRPS bounds request rate per host across all strategies.
	// Zero disables limiting.
	PerDomainRPS float64
	// RenderThreshold is the body size below which high script density
	// marks a page as an app shell. Zero uses the detector default.
	RenderThreshold int
}

// Cascade tries strategies in order. Login-walled platforms move the
// headless strategy to the front, since plain HTTP rarely gets past
// the wall and the failed attempts just burn time.
type Cascade struct {
	strategies []reader.Strategy
	cfg        Config
	logger     *zap.Logger
	limiter    *ratelimit.Limiter
	detect     *detector.Heuristic
}

// New builds a cascade over the given strategies, tried in order.
func New(strategies []reader.Strategy, cfg Config, logger *zap.Logger) *Cascade {
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = 60 * time.Second
	}
	return &Cascade{
		strategies: strategies,
		cfg:        cfg,
		logger:     logger,
		limiter:    ratelimit.New(ratelimit.Config{DefaultRPS: cfg.PerDomainRPS}),
		detect:     detector.NewHeuristic(cfg.RenderThreshold),
	}
}

// Run fetches url, returning the first successful page. A fatal
// classification from any strategy stops the cascade immediately; when
// every strategy misses recoverably the outcome aggregates their
// reasons.
func (c *Cascade) Run(ctx context.Context, url string, plat platform.Platform) reader.FetchOutcome {
	ordered := c.orderFor(plat)
	var subreasons []string

	for _, strat := range ordered {
		if ctx.Err() != nil {
			subreasons = append(subreasons, "canceled: "+ctx.Err().Error())
			break
		}

		if err := c.limiter.Wait(ctx, url); err != nil {
			subreasons = append(subreasons, "rate limit: "+err.Error())
			break
		}

		start := time.Now()
		page, err := c.runStrategy(ctx, strat, url, plat)
		elapsed := time.Since(start)

		if err != nil {
			var fatal *reader.FatalError
			if errors.As(err, &fatal) {
				c.observe(strat.Name(), "fatal", elapsed)
				c.logger.Warn("strategy reported fatal failure, stopping cascade",
					zap.String("url", url),
					zap.String("strategy", strat.Name()),
					zap.Error(err))
				return reader.Fatal(strat.Name(), fatal.Reason)
			}
			c.observe(strat.Name(), "miss", elapsed)
			c.logger.Info("strategy missed, trying next",
				zap.String("url", url),
				zap.String("strategy", strat.Name()),
				zap.Error(err))
			subreasons = append(subreasons, strat.Name()+": "+err.Error())
			continue
		}

		if marker := challengeMarker(page); marker != "" {
			c.observe(strat.Name(), "challenge", elapsed)
			c.logger.Info("strategy returned a challenge page, trying next",
				zap.String("url", url),
				zap.String("strategy", strat.Name()),
				zap.String("marker", marker))
			subreasons = append(subreasons, strat.Name()+": challenge page ("+marker+")")
			continue
		}
		if thin(page) {
			c.observe(strat.Name(), "thin", elapsed)
			subreasons = append(subreasons, strat.Name()+": response too thin")
			continue
		}
		if strat.Name() != "headless" && c.detect.NeedsRender(page) {
			c.observe(strat.Name(), "shell", elapsed)
			c.logger.Info("page looks like an app shell, escalating",
				zap.String("url", url),
				zap.String("strategy", strat.Name()))
			subreasons = append(subreasons, strat.Name()+": app shell, render required")
			continue
		}

		c.observe(strat.Name(), "success", elapsed)
		page.Strategy = strat.Name()
		page.Duration = elapsed
		c.logger.Info("fetched",
			zap.String("url", url),
			zap.String("strategy", strat.Name()),
			zap.Duration("duration", elapsed))
		return reader.Success(page, strat.Name())
	}

	if len(subreasons) == 0 {
		subreasons = append(subreasons, "no strategies configured")
	}
	return reader.Recoverable("cascade", "all strategies failed", subreasons...)
}

// runStrategy bounds one attempt and converts panics into recoverable
// errors so a misbehaving strategy cannot take down a sync run.
func (c *Cascade) runStrategy(ctx context.Context, strat reader.Strategy, url string, plat platform.Platform) (page *reader.RawPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = fmt.Errorf("strategy %s panicked: %v", strat.Name(), r)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.StrategyTimeout)
	defer cancel()
	return strat.Fetch(attemptCtx, url, plat)
}

func (c *Cascade) orderFor(plat platform.Platform) []reader.Strategy {
	if !plat.RequiresLogin {
		return c.strategies
	}
	ordered := make([]reader.Strategy, 0, len(c.strategies))
	var rest []reader.Strategy
	for _, s := range c.strategies {
		if s.Name() == "headless" {
			ordered = append(ordered, s)
			continue
		}
		rest = append(rest, s)
	}
	return append(ordered, rest...)
}

func (c *Cascade) observe(strategy, outcome string, elapsed time.Duration) {
	metrics.ObserveFetch(strategy, outcome, elapsed)
}

func challengeMarker(page *reader.RawPage) string {
	content := page.Markdown
	if content == "" {
		content = string(page.Body)
	}
	lowered := strings.ToLower(content)
	for _, marker := range challengeMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return marker
		}
	}
	return ""
}

func thin(page *reader.RawPage) bool {
	return len(page.Markdown) == 0 && len(page.Body) < minUsefulBytes
}
