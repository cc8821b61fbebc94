// Package engine orchestrates the ingestion pipeline: classify, fetch,
// normalize, transform, persist. It owns workflow transitions and keeps
// every step idempotent per canonical URL.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/metisreader/metis/internal/document"
	"github.com/metisreader/metis/internal/hash"
	"github.com/metisreader/metis/internal/inbox"
	"github.com/metisreader/metis/internal/metrics"
	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/store"
	"github.com/metisreader/metis/internal/transform"
	"github.com/metisreader/metis/internal/workflow"
)

// Fetcher runs the strategy cascade for one URL.
type Fetcher interface {
	Run(ctx context.Context, url string, plat platform.Platform) reader.FetchOutcome
}

// Normalizer converts a raw page into a canonical document.
type Normalizer interface {
	Normalize(ctx context.Context, page *reader.RawPage, plat platform.Platform) (*reader.CanonicalDocument, error)
}

// Transformer applies optional translation and summarization in place.
type Transformer interface {
	Apply(ctx context.Context, doc *reader.CanonicalDocument) error
}

// Config controls sync execution.
type Config struct {
	Concurrency int
}

// Engine wires the pipeline stages together.
type Engine struct {
	fetcher    Fetcher
	normalizer Normalizer
	transform  Transformer
	writer     *document.Writer
	index      *store.Store
	inbox      *inbox.Inbox
	clock      reader.Clock
	logger     *zap.Logger
	cfg        Config
	locks      *keyedLocks
}

// New builds an engine. The inbox may be nil when no capture file is
// configured; transform may be nil when no provider is configured.
func New(fetcher Fetcher, normalizer Normalizer, transformer Transformer,
	writer *document.Writer, index *store.Store, box *inbox.Inbox,
	clock reader.Clock, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if transformer == nil {
		transformer = transform.NewPipeline(nil, transform.Options{}, logger)
	}
	return &Engine{
		fetcher:    fetcher,
		normalizer: normalizer,
		transform:  transformer,
		writer:     writer,
		index:      index,
		inbox:      box,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
		locks:      newKeyedLocks(),
	}
}

// Submit registers a URL for ingestion. The URL is canonicalized and
// classified; resubmitting a tracked URL returns the existing record
// without resetting its workflow state.
func (e *Engine) Submit(rawURL string) (*workflow.Record, error) {
	canonical, err := reader.CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	plat := platform.Classify(canonical)
	return e.index.Submit(canonical, plat.Name)
}

// SyncResult reports the outcome for one URL in a sync run.
type SyncResult struct {
	URL     string
	Outcome string
	Path    string
	Err     error
}

// Sync processes every pending URL, bounded by the configured
// concurrency. Per-URL failures are reported in the results, not as an
// error; the returned error is reserved for listing or cancellation.
func (e *Engine) Sync(ctx context.Context) ([]SyncResult, error) {
	pending, err := e.index.List(workflow.StatePending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	results := make([]SyncResult, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, rec := range pending {
		g.Go(func() error {
			results[i] = e.SyncOne(gctx, rec.URL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// SyncOne runs the full pipeline for a single tracked URL. Concurrent
// calls for the same canonical URL are serialized.
func (e *Engine) SyncOne(ctx context.Context, url string) SyncResult {
	canonical, err := reader.CanonicalURL(url)
	if err != nil {
		return SyncResult{URL: url, Outcome: "invalid", Err: err}
	}

	unlock := e.locks.lock(canonical)
	defer unlock()

	metrics.IncActiveSyncs()
	defer metrics.DecActiveSyncs()

	res := e.syncLocked(ctx, canonical)
	metrics.ObserveSync(res.Outcome)
	return res
}

func (e *Engine) syncLocked(ctx context.Context, url string) SyncResult {
	rec, err := e.index.Get(url)
	if errors.Is(err, store.ErrNotFound) {
		if rec, err = e.Submit(url); err != nil {
			return SyncResult{URL: url, Outcome: "error", Err: err}
		}
	} else if err != nil {
		return SyncResult{URL: url, Outcome: "error", Err: err}
	}

	plat := platform.Classify(url)
	outcome := e.fetcher.Run(ctx, url, plat)
	switch outcome.Kind {
	case reader.OutcomeRecoverable:
		return e.recordMiss(rec, "recoverable", outcome.Reason, outcome.Subreasons)
	case reader.OutcomeFatal:
		return e.recordMiss(rec, "fatal", outcome.Reason, nil)
	}

	doc, err := e.normalizer.Normalize(ctx, outcome.Page, plat)
	if err != nil {
		return e.recordMiss(rec, "extraction_failed", err.Error(), nil)
	}
	doc.SourceURL = url

	fingerprint := hash.Fingerprint([]byte(doc.Title + "\n" + doc.Body))
	if rec.State != workflow.StatePending && rec.Fingerprint == fingerprint && rec.DocumentPath != "" {
		// Content unchanged since the last sync; leave the artifact alone
		// so user edits are not even re-staged.
		if err := e.index.Upsert(rec); err != nil {
			return SyncResult{URL: url, Outcome: "error", Err: err}
		}
		e.logger.Debug("content unchanged, skipping rewrite", zap.String("url", url))
		return SyncResult{URL: url, Outcome: "unchanged", Path: rec.DocumentPath}
	}

	if err := e.transform.Apply(ctx, doc); err != nil {
		return e.recordMiss(rec, "transform_failed", err.Error(), nil)
	}

	now := e.clock.Now()
	if rec.State == workflow.StatePending {
		if err := workflow.Transition(rec, workflow.StateExtracted, now); err != nil {
			return SyncResult{URL: url, Outcome: "error", Err: err}
		}
	} else {
		rec.UpdatedAt = now.UTC()
	}
	rec.Title = doc.Title
	rec.Platform = doc.Platform
	rec.Fingerprint = fingerprint
	rec.FailureText = ""

	path, err := e.writer.Write(doc, rec)
	if err != nil {
		return SyncResult{URL: url, Outcome: "error", Err: err}
	}
	rec.DocumentPath = path

	if err := e.index.Upsert(rec); err != nil {
		return SyncResult{URL: url, Outcome: "error", Err: err}
	}
	return SyncResult{URL: url, Outcome: "synced", Path: path}
}

// recordMiss stores the failure text without touching workflow state so
// the URL stays eligible for the next pass.
func (e *Engine) recordMiss(rec *workflow.Record, outcome, reason string, subreasons []string) SyncResult {
	text := reason
	for _, sub := range subreasons {
		text += "; " + sub
	}
	if err := e.index.RecordFailure(rec.URL, text); err != nil {
		e.logger.Warn("record failure text", zap.String("url", rec.URL), zap.Error(err))
	}
	return SyncResult{URL: rec.URL, Outcome: outcome, Err: errors.New(text)}
}

// IngestInbox submits every pending inbox URL and checks off the ones
// accepted. Returns the submitted canonical URLs.
func (e *Engine) IngestInbox(ctx context.Context) ([]string, error) {
	if e.inbox == nil {
		return nil, nil
	}
	entries, err := e.inbox.Pending()
	if err != nil {
		return nil, err
	}

	var accepted []string
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if _, err := e.Submit(entry.URL); err != nil {
			e.logger.Warn("inbox submit failed",
				zap.String("url", entry.URL), zap.Error(err))
			continue
		}
		accepted = append(accepted, entry.URL)
	}
	if len(accepted) > 0 {
		if err := e.inbox.MarkProcessed(accepted); err != nil {
			return accepted, fmt.Errorf("mark inbox processed: %w", err)
		}
	}
	return accepted, nil
}

// Transition moves a tracked URL to a new workflow state and rewrites
// the artifact's status block. Disallowed transitions are rejected
// without side effects.
func (e *Engine) Transition(url string, to workflow.State) (*workflow.Record, error) {
	canonical, err := reader.CanonicalURL(url)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(canonical)
	defer unlock()

	rec, err := e.index.Get(canonical)
	if err != nil {
		return nil, err
	}
	if err := workflow.Transition(rec, to, e.clock.Now()); err != nil {
		return nil, err
	}
	if err := e.index.Upsert(rec); err != nil {
		return nil, err
	}
	if rec.DocumentPath != "" {
		if err := e.writer.UpdateStatus(rec.DocumentPath, rec); err != nil {
			e.logger.Warn("artifact status update failed, index is ahead",
				zap.String("path", rec.DocumentPath), zap.Error(err))
		}
	}
	return rec, nil
}

// Reset returns a URL to pending so the next sync refetches it.
func (e *Engine) Reset(url string) (*workflow.Record, error) {
	canonical, err := reader.CanonicalURL(url)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(canonical)
	defer unlock()

	rec, err := e.index.Get(canonical)
	if err != nil {
		return nil, err
	}
	workflow.Reset(rec, e.clock.Now())
	if err := e.index.Upsert(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns tracked records, optionally filtered by state.
func (e *Engine) List(state workflow.State) ([]*workflow.Record, error) {
	return e.index.List(state)
}

// Reconcile rebuilds the index from the vault documents.
func (e *Engine) Reconcile() (store.ReconcileReport, error) {
	return e.index.Reconcile(e.writer.Root())
}
