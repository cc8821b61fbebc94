package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/document"
	"github.com/metisreader/metis/internal/reader"
	"github.com/metisreader/metis/internal/workflow"
)

// QuarantineDir is the vault subdirectory that receives documents whose
// state cannot be parsed during reconciliation.
const QuarantineDir = "quarantine"

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Scanned     int
	Indexed     int
	Quarantined []string
	Orphaned    []string
}

// Reconcile scans the vault and rebuilds/validates the index from the
// persisted documents. Documents are authoritative: frontmatter state wins
// over the index on mismatch. Unparseable documents are moved aside into
// the quarantine directory and reported, never overwritten or deleted.
// Indexed records in extracted or later states whose document disappeared
// fall back to pending so the next sync pass re-fetches them.
func (s *Store) Reconcile(vaultDir string) (ReconcileReport, error) {
	report := ReconcileReport{}

	entries, err := os.ReadDir(vaultDir)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, fmt.Errorf("scan vault: %w", err)
	}

	seen := map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		report.Scanned++
		path := filepath.Join(vaultDir, entry.Name())

		url, err := s.reconcileDocument(path)
		if err != nil {
			qPath, qErr := quarantine(vaultDir, path)
			if qErr != nil {
				return report, qErr
			}
			s.logger.Warn("quarantined unparseable document",
				zap.String("path", path), zap.String("quarantine", qPath), zap.Error(err))
			report.Quarantined = append(report.Quarantined, qPath)
			continue
		}
		seen[url] = true
		report.Indexed++
	}

	orphaned, err := s.resetOrphans(seen)
	if err != nil {
		return report, err
	}
	report.Orphaned = orphaned
	return report, nil
}

// reconcileDocument indexes one document and returns its canonical URL.
func (s *Store) reconcileDocument(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	parsed, err := document.Parse(string(raw))
	if err != nil {
		return "", err
	}
	state := workflow.State(parsed.Meta.Status)
	if !state.Valid() {
		return "", fmt.Errorf("unknown workflow state %q", parsed.Meta.Status)
	}
	url, err := reader.CanonicalURL(parsed.Meta.URL)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(url)
	if errors.Is(err, ErrNotFound) {
		rec = &workflow.Record{URL: url, CreatedAt: parsed.Meta.Created}
	} else if err != nil {
		return "", err
	}

	rec.Title = parsed.Meta.Title
	rec.Platform = parsed.Meta.Platform
	rec.State = state
	rec.Fingerprint = parsed.Meta.Fingerprint
	rec.DocumentPath = path
	rec.Tags = parsed.Meta.Tags
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = parsed.Meta.Created
	}
	rec.UpdatedAt = parsed.Meta.Updated
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.clock.Now().UTC().Truncate(time.Second)
	}
	return url, s.put(rec)
}

// resetOrphans downgrades extracted-or-later records whose document no
// longer exists on disk.
func (s *Store) resetOrphans(seen map[string]bool) ([]string, error) {
	records, err := s.List("")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var orphaned []string
	for _, rec := range records {
		if rec.State == workflow.StatePending || seen[rec.URL] {
			continue
		}
		if _, err := os.Stat(rec.DocumentPath); err == nil {
			// Document lives outside the scanned vault dir; trust it.
			continue
		}
		workflow.Reset(rec, s.clock.Now().UTC().Truncate(time.Second))
		rec.FailureText = "document missing during reconciliation"
		rec.DocumentPath = ""
		if err := s.put(rec); err != nil {
			return nil, err
		}
		orphaned = append(orphaned, rec.URL)
	}
	return orphaned, nil
}

// quarantine moves a document aside, keeping the original name plus a
// short unique suffix so repeated runs never clobber earlier quarantines.
func quarantine(vaultDir, path string) (string, error) {
	dir := filepath.Join(vaultDir, QuarantineDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), ".md")
	target := filepath.Join(dir, fmt.Sprintf("%s-%s.md", base, uuid.NewString()[:8]))
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}
	return target, nil
}
