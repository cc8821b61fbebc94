package normalize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfakepngpayload")

func TestLocalizeDownloadsWithReferer(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		referers []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		referers = append(referers, r.Header.Get("Referer"))
		mu.Unlock()
		w.Write(pngBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	l := NewImageLocalizer(srv.Client(), dir, "metis-test/1.0", zap.NewNop())

	doc := &reader.CanonicalDocument{
		SourceURL: "https://example.com/article",
		Body:      "intro\n\n![pic](" + srv.URL + "/img1.png)\n\nmore text",
	}
	l.Localize(context.Background(), doc, platform.Platform{Name: "wechat", Referer: "https://mp.weixin.qq.com/"})

	require.Len(t, doc.Media, 1)
	require.NotEmpty(t, doc.Media[0].Local)
	require.NotContains(t, doc.Body, srv.URL)
	require.Contains(t, doc.Body, doc.Media[0].Local)

	data, err := os.ReadFile(doc.Media[0].Local)
	require.NoError(t, err)
	require.Equal(t, pngBytes, data)

	require.Equal(t, []string{"https://mp.weixin.qq.com/"}, referers)
}

func TestLocalizeFallsBackToSourceOrigin(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Referer")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	l := NewImageLocalizer(srv.Client(), t.TempDir(), "", zap.NewNop())
	doc := &reader.CanonicalDocument{
		SourceURL: "https://blog.example.com/post/1",
		Body:      "![p](" + srv.URL + "/a.png)",
	}
	l.Localize(context.Background(), doc, platform.Web)
	require.Equal(t, "https://blog.example.com/", got)
}

func TestLocalizeKeepsRemoteOnFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	l := NewImageLocalizer(srv.Client(), t.TempDir(), "", zap.NewNop())
	remote := srv.URL + "/blocked.jpg"
	doc := &reader.CanonicalDocument{
		SourceURL: "https://example.com/a",
		Body:      "![p](" + remote + ")",
	}
	l.Localize(context.Background(), doc, platform.Web)

	// Document still points at the original remote URL.
	require.Contains(t, doc.Body, remote)
	require.Len(t, doc.Media, 1)
	require.Empty(t, doc.Media[0].Local)
}

func TestLocalizeDeterministicFilenames(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(pngBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	l := NewImageLocalizer(srv.Client(), dir, "", zap.NewNop())

	run := func() string {
		doc := &reader.CanonicalDocument{
			SourceURL: "https://example.com/a",
			Body:      "![p](" + srv.URL + "/stable.png)",
		}
		l.Localize(context.Background(), doc, platform.Web)
		require.Len(t, doc.Media, 1)
		return doc.Media[0].Local
	}

	first := run()
	second := run()
	require.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExtractImageURLs(t *testing.T) {
	t.Parallel()

	body := `![a](https://cdn.example.com/a.png) text
<img src="https://cdn.example.com/b.jpg" alt="b">
![dup](https://cdn.example.com/a.png)
![local](local/path.png)`
	urls := extractImageURLs(body)
	require.Equal(t, []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.jpg"}, urls)
}
