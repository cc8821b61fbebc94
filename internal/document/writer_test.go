package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/workflow"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := NewWriter(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return w
}

func testDoc() *reader.CanonicalDocument {
	return &reader.CanonicalDocument{
		Title:     "Interesting Article",
		Body:      "# Interesting Article\n\nFirst paragraph.",
		Platform:  "web",
		SourceURL: "https://example.com/a",
		Strategy:  "colly",
		Summary:   "short summary",
	}
}

func testRecord() *workflow.Record {
	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return &workflow.Record{
		URL:         "https://example.com/a",
		Platform:    "web",
		State:       workflow.StateExtracted,
		Fingerprint: "fp-1",
		Tags:        []string{"web"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestWriteCreatesArtifact(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	path, err := w.Write(testDoc(), testRecord())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(w.Root(), "Interesting-Article-web.md"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := Parse(string(raw))
	require.NoError(t, err)
	require.Equal(t, "Interesting Article", parsed.Meta.Title)
	require.Equal(t, "extracted", parsed.Meta.Status)
	require.Contains(t, parsed.Body, "First paragraph.")
}

func TestWriteIsIdempotent(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	doc, rec := testDoc(), testRecord()

	path, err := w.Write(doc, rec)
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	rec.DocumentPath = path
	_, err = w.Write(doc, rec)
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, string(first), string(second))
}

func TestWritePreservesUserNotesOnResync(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	doc, rec := testDoc(), testRecord()
	path, err := w.Write(doc, rec)
	require.NoError(t, err)
	rec.DocumentPath = path

	// Simulate the user appending notes below the marker.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := string(raw) + "my precious annotation\n- a list item\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o640))

	// Re-sync with updated source content.
	doc.Body = "# Interesting Article\n\nRewritten paragraph."
	rec.Fingerprint = "fp-2"
	_, err = w.Write(doc, rec)
	require.NoError(t, err)

	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := Parse(string(raw))
	require.NoError(t, err)
	require.Contains(t, parsed.Body, "Rewritten paragraph.")
	require.NotContains(t, parsed.Body, "First paragraph.")
	require.Contains(t, parsed.Notes, "my precious annotation")
	require.Contains(t, parsed.Notes, "- a list item")
}

func TestWritePreservesForeignFileAsNotes(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	doc, rec := testDoc(), testRecord()
	target := w.DocumentPath(doc.Title, doc.Platform)
	require.NoError(t, os.WriteFile(target, []byte("someone else's file\n"), 0o640))

	_, err := w.Write(doc, rec)
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	parsed, err := Parse(string(raw))
	require.NoError(t, err)
	require.Contains(t, parsed.Notes, "someone else's file")
}

func TestWriteAppendsTranslationSection(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	doc, rec := testDoc(), testRecord()
	doc.Translation = "翻译后的内容"
	path, err := w.Write(doc, rec)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "## Translation")
	require.Contains(t, string(raw), "翻译后的内容")

	// Translation stays above the notes marker: it is system-owned.
	content := string(raw)
	require.Less(t, strings.Index(content, "## Translation"), strings.Index(content, NotesMarker))
}

func TestUpdateStatusTouchesOnlyMetadata(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t)
	doc, rec := testDoc(), testRecord()
	path, err := w.Write(doc, rec)
	require.NoError(t, err)

	rec.State = workflow.StateRead
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Hour)
	require.NoError(t, w.UpdateStatus(path, rec))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := Parse(string(raw))
	require.NoError(t, err)
	require.Equal(t, "read", parsed.Meta.Status)
	require.Contains(t, parsed.Body, "First paragraph.")
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"Plain Title", "Plain-Title"},
		{`What? A "quoted" <title>/\|`, "What-A-quoted-title"},
		{"  spaced   out  ", "spaced-out"},
		{"", "untitled"},
		{"///???", "untitled"},
		{"中文标题 测试", "中文标题-测试"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}

	long := strings.Repeat("a", 200)
	require.LessOrEqual(t, len([]rune(SanitizeFilename(long))), 80)
}
