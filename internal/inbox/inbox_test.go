package inbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeInbox(t *testing.T, content string) *Inbox {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inbox.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return New(path, zap.NewNop())
}

func TestPendingParsesAllLinkForms(t *testing.T) {
	t.Parallel()

	in := writeInbox(t, `# Inbox

https://example.com/bare
- [ ] https://example.com/task
- [x] https://example.com/done
[An Article](https://example.com/linked) worth reading
some note without a url
`)
	entries, err := in.Pending()
	require.NoError(t, err)

	var urls []string
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	require.Equal(t, []string{
		"https://example.com/bare",
		"https://example.com/task",
		"https://example.com/linked",
	}, urls)
}

func TestPendingDeduplicatesCanonicalURLs(t *testing.T) {
	t.Parallel()

	in := writeInbox(t, `https://example.com/a?utm_source=tw
https://example.com/a
HTTPS://EXAMPLE.COM/a
`)
	entries, err := in.Pending()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "https://example.com/a", entries[0].URL)
	require.Equal(t, 1, entries[0].Line)
}

func TestPendingSkipsMalformedURLs(t *testing.T) {
	t.Parallel()

	in := writeInbox(t, "ftp://example.com/file\nhttps://example.com/good\n")
	entries, err := in.Pending()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "https://example.com/good", entries[0].URL)
}

func TestPendingMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	in := New(filepath.Join(t.TempDir(), "absent.md"), zap.NewNop())
	entries, err := in.Pending()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMarkProcessedChecksOffLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inbox.md")
	require.NoError(t, os.WriteFile(path, []byte(`# Inbox

- [ ] https://example.com/task
https://example.com/bare
- https://example.com/plain-item
- [ ] https://example.com/untouched
`), 0o640))
	in := New(path, zap.NewNop())

	require.NoError(t, in.MarkProcessed([]string{
		"https://example.com/task",
		"https://example.com/bare",
		"https://example.com/plain-item",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "- [x] https://example.com/task")
	require.Contains(t, content, "- [x] https://example.com/bare")
	require.Contains(t, content, "- [x] https://example.com/plain-item")
	require.Contains(t, content, "- [ ] https://example.com/untouched")
	require.Contains(t, content, "# Inbox")
}

func TestMarkProcessedPreservesUnrelatedLines(t *testing.T) {
	t.Parallel()

	original := "notes here\n\nhttps://example.com/a\n\nmore notes\n"
	path := filepath.Join(t.TempDir(), "inbox.md")
	require.NoError(t, os.WriteFile(path, []byte(original), 0o640))
	in := New(path, zap.NewNop())

	require.NoError(t, in.MarkProcessed([]string{"https://example.com/a"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "notes here\n\n- [x] https://example.com/a\n\nmore notes\n", string(data))
}

func TestMarkProcessedIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inbox.md")
	require.NoError(t, os.WriteFile(path, []byte("- [x] https://example.com/a\n"), 0o640))
	in := New(path, zap.NewNop())

	require.NoError(t, in.MarkProcessed([]string{"https://example.com/a"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "- [x] https://example.com/a\n", string(data))
}
