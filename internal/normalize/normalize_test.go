package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

func htmlPage(title, paragraph string) *reader.RawPage {
	return &reader.RawPage{
		URL:        "https://example.com/a",
		StatusCode: 200,
		Strategy:   "colly",
		Body: []byte(`<html><head><title>` + title + `</title></head>
<body>
<nav>site navigation</nav>
<article><h1>` + title + `</h1><p>` + paragraph + `</p></article>
<footer>footer junk</footer>
</body></html>`),
	}
}

func longParagraph() string {
	return strings.Repeat("This sentence pads the article body well past the emptiness threshold. ", 5)
}

func TestNormalizeExtractsTitleAndBody(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	doc, err := n.Normalize(context.Background(), htmlPage("An Article", longParagraph()), platform.Web)
	require.NoError(t, err)
	require.Equal(t, "An Article", doc.Title)
	require.Contains(t, doc.Body, "pads the article body")
	require.NotContains(t, doc.Body, "site navigation")
	require.NotContains(t, doc.Body, "footer junk")
	require.Equal(t, "colly", doc.Strategy)
	require.Equal(t, "web", doc.Platform)
}

func TestNormalizeRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	page := &reader.RawPage{
		URL:        "https://example.com/empty",
		StatusCode: 200,
		Body:       []byte(`<html><head><title>Empty</title></head><body><article><p>tiny</p></article></body></html>`),
	}
	_, err := n.Normalize(context.Background(), page, platform.Web)
	require.Error(t, err)
	require.True(t, errors.Is(err, reader.ErrExtraction))
}

func TestNormalizeRejectsMissingTitle(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	page := &reader.RawPage{
		URL:        "https://example.com/notitle",
		StatusCode: 200,
		Markdown:   "???\n\n" + strings.Repeat("[link](https://example.com/x)\n", 30),
	}
	_, err := n.Normalize(context.Background(), page, platform.Web)
	require.ErrorIs(t, err, reader.ErrExtraction)
}

func TestNormalizeReaderProxyMarkdown(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	page := &reader.RawPage{
		URL:      "https://example.com/a",
		Strategy: "readerproxy",
		Markdown: "Title: Proxy Extracted Title\nURL Source: https://example.com/a\n\n" + longParagraph(),
	}
	doc, err := n.Normalize(context.Background(), page, platform.Web)
	require.NoError(t, err)
	require.Equal(t, "Proxy Extracted Title", doc.Title)
	require.NotContains(t, doc.Body, "URL Source:")
	require.Contains(t, doc.Body, "pads the article body")
}

func TestNormalizeFallsBackToHeadingTitle(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	page := &reader.RawPage{
		URL:      "https://example.com/a",
		Markdown: "# Heading Title\n\n" + longParagraph(),
	}
	doc, err := n.Normalize(context.Background(), page, platform.Web)
	require.NoError(t, err)
	require.Equal(t, "Heading Title", doc.Title)
}

func TestNormalizeStripsBoilerplateLines(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	page := &reader.RawPage{
		URL:      "https://example.com/a",
		Markdown: "# 标题文章内容测试\n\n来源：某公众号\n阅读：10万+\n\n" + longParagraph(),
	}
	doc, err := n.Normalize(context.Background(), page, platform.Web)
	require.NoError(t, err)
	require.NotContains(t, doc.Body, "来源：")
	require.NotContains(t, doc.Body, "阅读：")
}

func TestNormalizeUsesPlatformContainer(t *testing.T) {
	t.Parallel()

	n := New(nil, zap.NewNop())
	page := &reader.RawPage{
		URL: "https://mp.weixin.qq.com/s/abc",
		Body: []byte(`<html><head><title>site chrome</title></head><body>
<h2 id="activity-name"> WeChat Article Title </h2>
<div id="js_content"><p>` + longParagraph() + `</p></div>
<div class="footer">unrelated footer content that should not appear</div>
</body></html>`),
	}
	doc, err := n.Normalize(context.Background(), page, platform.Classify(page.URL))
	require.NoError(t, err)
	require.Equal(t, "WeChat Article Title", doc.Title)
	require.NotContains(t, doc.Body, "unrelated footer content")
}
