// Package normalize converts raw fetch output into canonical documents:
// it isolates the main content, converts HTML to markdown, derives a
// title, rejects empty pages, and localizes referenced images.
package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

// minContentRunes is the emptiness threshold: a page whose extracted body
// is shorter than this has no discernible content even when the fetch
// returned 200.
const minContentRunes = 100

// noiseSelectors are stripped before extraction; they contribute no
// meaningful content to the page text.
var noiseSelectors = []string{
	"script", "style", "noscript",
	"nav", "footer", "header",
	"iframe", "svg", "canvas",
	"form", "button", "input", "select", "textarea",
	".sidebar", ".menu", ".navigation", ".ads", ".advertisement",
}

// contentSelectors are tried in priority order when isolating the main
// content container. Platform-specific selectors come first because some
// platforms wrap the article in markup generic selectors miss.
var contentSelectors = map[string][]string{
	"wechat": {"#js_content", "article", "main", "body"},
	"zhihu":  {".Post-RichTextContainer", ".RichContent-inner", "article", "main", "body"},
	"":       {"article", "main", "body"},
}

// titleSelectors override the <title> tag on platforms where it carries
// site chrome instead of the article title.
var titleSelectors = map[string]string{
	"wechat": "#activity-name",
	"zhihu":  ".Post-Title",
}

// boilerplatePatterns match metadata lines some platforms inline into the
// article body (view counts, share prompts). They are dropped from the
// canonical body.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^来源：`),
	regexp.MustCompile(`^作者：`),
	regexp.MustCompile(`^发布时间：`),
	regexp.MustCompile(`^阅读：`),
	regexp.MustCompile(`^点赞：`),
	regexp.MustCompile(`^收藏：`),
	regexp.MustCompile(`^分享：`),
}

// Normalizer builds canonical documents from raw pages.
type Normalizer struct {
	images *ImageLocalizer
	logger *zap.Logger
}

// New constructs a Normalizer. images may be nil to skip localization.
func New(images *ImageLocalizer, logger *zap.Logger) *Normalizer {
	return &Normalizer{images: images, logger: logger}
}

// Normalize converts a raw page into a canonical document, failing with
// reader.ErrExtraction when no usable title and body can be derived.
func (n *Normalizer) Normalize(ctx context.Context, page *reader.RawPage, plat platform.Platform) (*reader.CanonicalDocument, error) {
	var (
		title string
		body  string
		err   error
	)
	if page.Markdown != "" {
		title, body = fromMarkdown(page.Markdown)
	} else {
		title, body, err = n.fromHTML(string(page.Body), plat)
		if err != nil {
			return nil, err
		}
	}

	body = stripBoilerplate(body)
	body = strings.TrimSpace(body)

	if title == "" || len([]rune(body)) < minContentRunes {
		return nil, fmt.Errorf("%w: title=%q, body runes=%d (%s)",
			reader.ErrExtraction, title, len([]rune(body)), page.URL)
	}

	doc := &reader.CanonicalDocument{
		Title:     clampTitle(title),
		Body:      body,
		Platform:  plat.Name,
		SourceURL: page.URL,
		Strategy:  page.Strategy,
	}

	if n.images != nil {
		n.images.Localize(ctx, doc, plat)
	}
	return doc, nil
}

// fromHTML isolates the main container and converts it to markdown.
func (n *Normalizer) fromHTML(html string, plat platform.Platform) (string, string, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("%w: parse html: %v", reader.ErrExtraction, err)
	}

	title := extractTitle(gq, plat)

	for _, sel := range noiseSelectors {
		gq.Find(sel).Remove()
	}

	selectors := contentSelectors[plat.Name]
	if selectors == nil {
		selectors = contentSelectors[""]
	}
	var content *goquery.Selection
	for _, sel := range selectors {
		if found := gq.Find(sel); found.Length() > 0 {
			content = found.First()
			break
		}
	}
	if content == nil {
		return title, "", nil
	}

	fragment, err := goquery.OuterHtml(content)
	if err != nil {
		return "", "", fmt.Errorf("serialize content: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return "", "", fmt.Errorf("convert to markdown: %w", err)
	}
	if title == "" {
		title = titleFromBody(markdown)
	}
	return title, markdown, nil
}

func extractTitle(gq *goquery.Document, plat platform.Platform) string {
	if sel, ok := titleSelectors[plat.Name]; ok {
		if t := strings.TrimSpace(gq.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(gq.Find("title").First().Text()); t != "" {
		return t
	}
	if t, ok := gq.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

// fromMarkdown handles strategies that already deliver markdown, such as
// reader proxies. Their preamble convention puts "Title:" on a leading
// line.
func fromMarkdown(markdown string) (string, string) {
	lines := strings.Split(markdown, "\n")
	title := ""
	bodyStart := 0

	for i, line := range lines {
		if i > 10 {
			break
		}
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "Title: "); ok {
			title = strings.TrimSpace(after)
			bodyStart = i + 1
			break
		}
	}

	body := strings.Join(lines[bodyStart:], "\n")
	// Reader proxies prepend more "Key: value" header lines; skip them.
	body = strings.TrimLeft(body, "\n")
	for {
		head, rest, ok := strings.Cut(body, "\n")
		if !ok {
			break
		}
		if matched, _ := regexp.MatchString(`^[A-Z][A-Za-z ]{1,20}: \S`, head); !matched {
			break
		}
		body = strings.TrimLeft(rest, "\n")
	}

	if title == "" {
		title = titleFromBody(body)
	}
	return title, body
}

// titleFromBody falls back to the first heading, then the first plausible
// text line.
func titleFromBody(markdown string) string {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		if i > 30 {
			break
		}
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	for i, line := range lines {
		if i > 30 {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "[") ||
			strings.Contains(trimmed, "http") || len([]rune(trimmed)) < 10 {
			continue
		}
		return trimmed
	}
	return ""
}

func stripBoilerplate(body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		drop := false
		for _, pattern := range boilerplatePatterns {
			if pattern.MatchString(trimmed) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func clampTitle(title string) string {
	runes := []rune(title)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return title
}
