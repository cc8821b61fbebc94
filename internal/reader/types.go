// Package reader defines the core types shared across the fetch,
// normalize, transform, and persistence subsystems.
package reader

import (
	"net/http"
	"time"
)

// RawPage is the unprocessed output of a single fetch strategy attempt.
// Body may be HTML or already-rendered markdown depending on the strategy.
type RawPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	// Markdown is set when the strategy produces markdown directly
	// (reader proxies do); normalization then skips HTML conversion.
	Markdown string
	Strategy string
	Duration time.Duration
}

// MediaRef maps a remote media URL to its localized path. Local is empty
// when the download failed and the document still points at the remote URL.
type MediaRef struct {
	Remote string `yaml:"remote"`
	Local  string `yaml:"local,omitempty"`
}

// CanonicalDocument is the normalized in-memory representation of extracted
// content. It is transient: produced per fetch and consumed by the document
// writer, never persisted directly.
type CanonicalDocument struct {
	Title       string
	Body        string
	Media       []MediaRef
	Platform    string
	SourceURL   string
	Strategy    string
	Summary     string
	Translation string
}

// OutcomeKind tags the result of one strategy attempt.
type OutcomeKind int

// Outcome variants drive cascade fallthrough: recoverable failures move to
// the next strategy, fatal failures stop the cascade immediately.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRecoverable
	OutcomeFatal
)

// FetchOutcome is the tagged result of a strategy attempt or of the whole
// cascade. Page is set only on success.
type FetchOutcome struct {
	Kind     OutcomeKind
	Page     *RawPage
	Strategy string
	Reason   string
	// Subreasons carries every strategy's failure when the cascade
	// exhausts with only recoverable failures.
	Subreasons []string
}

// Success builds a successful outcome for the page produced by strategy.
func Success(page *RawPage, strategy string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSuccess, Page: page, Strategy: strategy}
}

// Recoverable builds a recoverable failure outcome. Subreasons carry the
// per-strategy failures when a whole cascade run exhausts.
func Recoverable(strategy, reason string, subreasons ...string) FetchOutcome {
	return FetchOutcome{
		Kind:       OutcomeRecoverable,
		Strategy:   strategy,
		Reason:     reason,
		Subreasons: subreasons,
	}
}

// Fatal builds a fatal failure outcome.
func Fatal(strategy, reason string) FetchOutcome {
	return FetchOutcome{Kind: OutcomeFatal, Strategy: strategy, Reason: reason}
}
