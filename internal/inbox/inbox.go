// Package inbox reads URLs out of a markdown capture file and marks
// them processed in place, touching only the lines it consumed.
package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/reader"
)

var (
	markdownLinkPattern = regexp.MustCompile(`\[[^\]]*\]\((https?://[^)\s]+)\)`)
	bareURLPattern      = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	taskItemPattern     = regexp.MustCompile(`^\s*[-*]\s+\[( |x|X)\]\s+`)
)

// Entry is one URL found in the inbox file.
type Entry struct {
	URL  string
	Line int
}

// Inbox manages one markdown file of captured URLs.
type Inbox struct {
	path   string
	logger *zap.Logger
}

// New builds an inbox over path. The file does not need to exist yet.
func New(path string, logger *zap.Logger) *Inbox {
	return &Inbox{path: path, logger: logger}
}

// Path returns the inbox file path.
func (i *Inbox) Path() string { return i.path }

// Dir returns the directory containing the inbox file.
func (i *Inbox) Dir() string { return filepath.Dir(i.path) }

// Pending returns the unprocessed URLs in file order. Checked task
// items are skipped; duplicate URLs are reported once, at their first
// occurrence. URLs that do not canonicalize are skipped with a log line
// rather than failing the whole file.
func (i *Inbox) Pending() ([]Entry, error) {
	data, err := os.ReadFile(i.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	seen := map[string]bool{}
	var entries []Entry
	for n, line := range strings.Split(string(data), "\n") {
		if m := taskItemPattern.FindStringSubmatch(line); m != nil && m[1] != " " {
			continue
		}
		raw := firstURL(line)
		if raw == "" {
			continue
		}
		canonical, err := reader.CanonicalURL(raw)
		if err != nil {
			i.logger.Warn("skipping malformed inbox URL",
				zap.String("url", raw), zap.Int("line", n+1), zap.Error(err))
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		entries = append(entries, Entry{URL: canonical, Line: n + 1})
	}
	return entries, nil
}

// MarkProcessed checks off every line carrying one of the given URLs.
// Task items get their checkbox ticked; plain lines are converted to
// checked task items. Lines without a matching URL are left untouched.
func (i *Inbox) MarkProcessed(urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	data, err := os.ReadFile(i.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}

	processed := map[string]bool{}
	for _, u := range urls {
		processed[u] = true
	}

	lines := strings.Split(string(data), "\n")
	changed := false
	for n, line := range lines {
		raw := firstURL(line)
		if raw == "" {
			continue
		}
		canonical, err := reader.CanonicalURL(raw)
		if err != nil || !processed[canonical] {
			continue
		}
		if updated := checkOff(line); updated != line {
			lines[n] = updated
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return i.replaceFile(strings.Join(lines, "\n"))
}

// firstURL pulls the first URL from a line, preferring the markdown
// link target so link titles containing URLs do not confuse parsing.
func firstURL(line string) string {
	if m := markdownLinkPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return strings.TrimRight(bareURLPattern.FindString(line), ".,;")
}

func checkOff(line string) string {
	if m := taskItemPattern.FindStringSubmatch(line); m != nil {
		if m[1] != " " {
			return line
		}
		return strings.Replace(line, "[ ]", "[x]", 1)
	}
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]
	if cut, ok := strings.CutPrefix(trimmed, "- "); ok {
		return indent + "- [x] " + cut
	}
	if cut, ok := strings.CutPrefix(trimmed, "* "); ok {
		return indent + "* [x] " + cut
	}
	return indent + "- [x] " + trimmed
}

// replaceFile writes atomically so a crash cannot truncate the inbox.
func (i *Inbox) replaceFile(content string) error {
	dir := filepath.Dir(i.path)
	tmp, err := os.CreateTemp(dir, ".metis-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, i.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace inbox: %w", err)
	}
	return nil
}
