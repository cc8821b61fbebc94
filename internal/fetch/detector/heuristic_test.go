package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metisreader/metis/internal/reader"
)

func TestNeedsRenderEmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := &reader.RawPage{StatusCode: 200, Body: []byte("")}
	require.True(t, h.NeedsRender(page))
}

func TestNeedsRenderSPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := &reader.RawPage{StatusCode: 200, Body: []byte(`<div id="__next"></div>`)}
	require.True(t, h.NeedsRender(page))
}

func TestNeedsRenderScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	page := &reader.RawPage{StatusCode: 200, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)}
	require.True(t, h.NeedsRender(page))
}

func TestNeedsRenderSkipsNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := &reader.RawPage{StatusCode: 404, Body: []byte("not found")}
	require.False(t, h.NeedsRender(page))
}

func TestNeedsRenderSkipsMarkdownPages(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := &reader.RawPage{StatusCode: 200, Markdown: "already rendered"}
	require.False(t, h.NeedsRender(page))
}

func TestNeedsRenderAcceptsStaticHTML(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := &reader.RawPage{
		StatusCode: 200,
		Body:       []byte(`<html><body><article><p>plenty of static article text</p></article></body></html>`),
	}
	require.False(t, h.NeedsRender(page))
}
