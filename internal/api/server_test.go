package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/document"
	"github.com/metisreader/metis/internal/engine"
	"github.com/metisreader/metis/internal/platform"
	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/store"
)

type stubFetcher struct{}

func (stubFetcher) Run(_ context.Context, url string, _ platform.Platform) reader.FetchOutcome {
	return reader.Success(&reader.RawPage{
		URL:        url,
		StatusCode: 200,
		Body:       []byte("<html><body>stub</body></html>"),
	}, "colly")
}

type stubNormalizer struct{}

func (stubNormalizer) Normalize(_ context.Context, page *reader.RawPage, plat platform.Platform) (*reader.CanonicalDocument, error) {
	return &reader.CanonicalDocument{
		Title:     "Stub " + page.URL[strings.LastIndex(page.URL, "/")+1:],
		Body:      "stub body for " + page.URL,
		Platform:  plat.Name,
		SourceURL: page.URL,
		Strategy:  page.Strategy,
	}, nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	index, err := store.Open(filepath.Join(dir, "index.db"), realClock{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	writer, err := document.NewWriter(filepath.Join(dir, "vault"), logger)
	require.NoError(t, err)

	eng := engine.New(stubFetcher{}, stubNormalizer{}, nil, writer, index, nil,
		realClock{}, engine.Config{}, logger)
	srv := httptest.NewServer(NewServer(eng, logger).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeJSON(t, resp)["status"])
}

func TestSubmitAndListURLs(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/urls", map[string]string{"url": "https://example.com/a?utm_source=x"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeJSON(t, resp)
	require.Equal(t, "https://example.com/a", body["url"])
	require.Equal(t, "pending", body["state"])

	resp, err := http.Get(srv.URL + "/v1/urls?state=pending")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeJSON(t, resp)
	require.Len(t, list["urls"], 1)
}

func TestSubmitRejectsBadURL(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/urls", map[string]string{"url": "ftp://example.com/x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestListRejectsUnknownState(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/urls?state=bogus")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSyncEndpointProcessesPending(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/urls", map[string]string{"url": "https://example.com/post"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/sync", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	results := body["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	require.Equal(t, "synced", first["outcome"])
}

func TestTransitionEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	url := "https://example.com/post"
	postJSON(t, srv.URL+"/v1/urls", map[string]string{"url": url}).Body.Close()
	postJSON(t, srv.URL+"/v1/sync", map[string]string{}).Body.Close()

	resp := postJSON(t, srv.URL+"/v1/urls/transition", map[string]string{"url": url, "to": "read"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "read", decodeJSON(t, resp)["state"])

	// Moving backwards is outside the transition table.
	resp = postJSON(t, srv.URL+"/v1/urls/transition", map[string]string{"url": url, "to": "extracted"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/urls/transition", map[string]string{"url": "https://example.com/unknown", "to": "read"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestResetEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	url := "https://example.com/post"
	postJSON(t, srv.URL+"/v1/urls", map[string]string{"url": url}).Body.Close()
	postJSON(t, srv.URL+"/v1/sync", map[string]string{}).Body.Close()

	resp := postJSON(t, srv.URL+"/v1/urls/reset", map[string]string{"url": url})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pending", decodeJSON(t, resp)["state"])
}

func TestReconcileEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/v1/urls", map[string]string{"url": "https://example.com/post"}).Body.Close()
	postJSON(t, srv.URL+"/v1/sync", map[string]string{}).Body.Close()

	resp := postJSON(t, srv.URL+"/v1/reconcile", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeJSON(t, resp)
	require.Equal(t, float64(1), body["scanned"])
	require.Equal(t, float64(1), body["indexed"])
}
