package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/metrics"
	"github.com/metisreader/metis/internal/reader"
)

// Options selects which transforms run on a document.
type Options struct {
	Translate      bool
	TargetLanguage string
	Summarize      bool
	ChunkRunes     int
	ChunkTimeout   time.Duration
}

const (
	defaultChunkTimeout = 90 * time.Second
	defaultTarget       = "English"
	summaryInputRunes   = 6000
)

// Pipeline applies translation and summarization through a provider.
// Each chunk is processed independently; a failed chunk passes through
// unmodified so one bad call never loses content.
type Pipeline struct {
	provider Provider
	opts     Options
	logger   *zap.Logger
}

// NewPipeline builds a pipeline. The provider may be nil when both
// transforms are disabled.
func NewPipeline(provider Provider, opts Options, logger *zap.Logger) *Pipeline {
	if opts.ChunkRunes <= 0 {
		opts.ChunkRunes = DefaultChunkRunes
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = defaultChunkTimeout
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = defaultTarget
	}
	return &Pipeline{provider: provider, opts: opts, logger: logger}
}

// Apply runs the enabled transforms on doc in place. Translation and
// summarization are best effort: partial or failed output degrades the
// result, never the document itself. The returned error is only for
// context cancellation.
func (p *Pipeline) Apply(ctx context.Context, doc *reader.CanonicalDocument) error {
	if p.provider == nil || (!p.opts.Translate && !p.opts.Summarize) {
		return nil
	}

	if p.opts.Translate {
		if err := p.translate(ctx, doc); err != nil {
			return err
		}
	}
	if p.opts.Summarize {
		if err := p.summarize(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) translate(ctx context.Context, doc *reader.CanonicalDocument) error {
	if looksEnglish(doc.Body) && strings.EqualFold(p.opts.TargetLanguage, defaultTarget) {
		p.logger.Debug("body already in target language, skipping translation",
			zap.String("url", doc.SourceURL))
		return nil
	}

	chunks := SplitChunks(doc.Body, p.opts.ChunkRunes)
	translated := make([]string, len(chunks))
	var failed int
	for i, chunk := range chunks {
		out, err := p.completeChunk(ctx, translatePrompt(p.opts.TargetLanguage, chunk))
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("translation canceled: %w", ctx.Err())
			}
			failed++
			metrics.ObserveTransformChunk("passthrough")
			p.logger.Warn("chunk translation failed, passing original through",
				zap.String("url", doc.SourceURL),
				zap.Int("chunk", i),
				zap.Error(err))
			translated[i] = chunk
			continue
		}
		metrics.ObserveTransformChunk("translated")
		translated[i] = out
	}

	doc.Translation = strings.Join(translated, "\n\n")
	if failed > 0 {
		p.logger.Info("translation completed with untranslated chunks",
			zap.String("url", doc.SourceURL),
			zap.Int("failed", failed),
			zap.Int("total", len(chunks)))
	}
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, doc *reader.CanonicalDocument) error {
	input := doc.Body
	if runes := []rune(input); len(runes) > summaryInputRunes {
		input = string(runes[:summaryInputRunes])
	}
	out, err := p.completeChunk(ctx, summaryPrompt(doc.Title, input))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("summarization canceled: %w", ctx.Err())
		}
		p.logger.Warn("summarization failed, continuing without summary",
			zap.String("url", doc.SourceURL), zap.Error(err))
		return nil
	}
	doc.Summary = out
	return nil
}

func (p *Pipeline) completeChunk(ctx context.Context, prompt string) (string, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, p.opts.ChunkTimeout)
	defer cancel()
	out, err := p.provider.Complete(chunkCtx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("provider %s returned empty output", p.provider.Name())
	}
	return strings.TrimSpace(out), nil
}

func translatePrompt(target, chunk string) string {
	return fmt.Sprintf(`Translate the following markdown content into %s.
Preserve all markdown formatting, links and image references exactly.
Output only the translation, with no preamble or commentary.

%s`, target, chunk)
}

func summaryPrompt(title, body string) string {
	return fmt.Sprintf(`Summarize the following article in 3 to 5 sentences.
Capture the main argument and any concrete takeaways.
Output only the summary.

Title: %s

%s`, title, body)
}
