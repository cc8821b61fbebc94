package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/workflow"
)

// PersistenceError wraps a disk failure during document persistence. It is
// surfaced to the sync caller, never swallowed.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Writer persists canonical documents under the vault root.
type Writer struct {
	root   string
	logger *zap.Logger
}

// NewWriter returns a writer rooted at dir, creating it if needed.
func NewWriter(root string, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, &PersistenceError{Op: "create vault dir", Path: root, Err: err}
	}
	return &Writer{root: root, logger: logger}, nil
}

// Root returns the vault root directory.
func (w *Writer) Root() string { return w.root }

// Write persists doc for rec and returns the artifact path. If an artifact
// already exists at the target path its user notes are preserved and the
// metadata block and system body are overwritten. The write is staged: the
// new content is assembled in memory and written to a temp file that is
// renamed over the target, so a crash leaves either the old or the new
// complete artifact.
func (w *Writer) Write(doc *reader.CanonicalDocument, rec *workflow.Record) (string, error) {
	target := w.DocumentPath(doc.Title, doc.Platform)
	if rec.DocumentPath != "" {
		// Re-syncs keep writing to the original artifact even when the
		// title changed upstream, so the identity stays stable.
		target = rec.DocumentPath
	}

	notes := ""
	if existing, err := os.ReadFile(target); err == nil {
		notes = w.preservedNotes(string(existing), target)
	} else if !os.IsNotExist(err) {
		return "", &PersistenceError{Op: "read existing", Path: target, Err: err}
	}

	body := doc.Body
	if doc.Translation != "" {
		body += "\n\n---\n\n## Translation\n\n" + doc.Translation
	}

	meta := Frontmatter{
		Title:       doc.Title,
		URL:         rec.URL,
		Platform:    doc.Platform,
		Status:      string(rec.State),
		Tags:        rec.Tags,
		Summary:     doc.Summary,
		Fingerprint: rec.Fingerprint,
		Strategy:    doc.Strategy,
		Created:     rec.CreatedAt.UTC().Truncate(time.Second),
		Updated:     rec.UpdatedAt.UTC().Truncate(time.Second),
	}
	content, err := Render(meta, body, notes)
	if err != nil {
		return "", err
	}

	if err := w.replaceFile(target, []byte(content)); err != nil {
		return "", err
	}
	return target, nil
}

// UpdateStatus rewrites only the metadata block of an existing artifact,
// leaving body and notes untouched. Used for pure state transitions.
func (w *Writer) UpdateStatus(path string, rec *workflow.Record) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &PersistenceError{Op: "read", Path: path, Err: err}
	}
	parsed, err := Parse(string(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	parsed.Meta.Status = string(rec.State)
	parsed.Meta.Updated = rec.UpdatedAt.UTC().Truncate(time.Second)
	content, err := Render(parsed.Meta, parsed.Body, parsed.Notes)
	if err != nil {
		return err
	}
	return w.replaceFile(path, []byte(content))
}

// preservedNotes extracts the user-owned region of an existing artifact.
// Artifacts without a parseable frontmatter or without the notes marker
// were not written by this system in their current form, so the whole body
// is treated as user content.
func (w *Writer) preservedNotes(existing, path string) string {
	parsed, err := Parse(existing)
	if err != nil {
		w.logger.Warn("existing document unparseable, preserving full content as notes",
			zap.String("path", path), zap.Error(err))
		return strings.TrimSpace(existing)
	}
	if parsed.HasMarker {
		return parsed.Notes
	}
	return strings.TrimSpace(parsed.Body)
}

func (w *Writer) replaceFile(target string, content []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &PersistenceError{Op: "create dir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".metis-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "stage", Path: target, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Op: "stage write", Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "stage close", Path: target, Err: err}
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "stage chmod", Path: target, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Op: "replace", Path: target, Err: err}
	}
	return nil
}

var (
	disallowedChars = regexp.MustCompile(`[<>:"/\\|?*#^\[\]]+`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
	separatorRuns   = regexp.MustCompile(`-{2,}`)
)

// DocumentPath derives the deterministic artifact path for a title and
// platform so that re-syncs are idempotent on identity.
func (w *Writer) DocumentPath(title, platform string) string {
	return filepath.Join(w.root, SanitizeFilename(title)+"-"+platform+".md")
}

// SanitizeFilename strips disallowed path characters and collapses
// whitespace to a single separator. Falls back to "untitled" when nothing
// survives.
func SanitizeFilename(title string) string {
	name := disallowedChars.ReplaceAllString(title, "")
	name = whitespaceRuns.ReplaceAllString(strings.TrimSpace(name), "-")
	name = separatorRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if runes := []rune(name); len(runes) > 80 {
		name = strings.Trim(string(runes[:80]), "-.")
	}
	if name == "" {
		return "untitled"
	}
	return name
}
