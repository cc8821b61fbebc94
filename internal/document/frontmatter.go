// Package document serializes canonical documents to markdown artifacts
// with a YAML frontmatter block, and merges re-synced content without
// destroying user edits.
package document

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NotesMarker separates the system-generated body from user notes. This is
// a contract: everything at and below the marker is preserved verbatim on
// re-sync, and the system never writes content below it.
const NotesMarker = "<!-- metis:notes -->"

const frontmatterDelim = "---"

// Frontmatter is the structured metadata block at the top of a persisted
// document. Every field is system-owned and overwritten on re-sync.
type Frontmatter struct {
	Title       string    `yaml:"title"`
	URL         string    `yaml:"url"`
	Platform    string    `yaml:"platform"`
	Status      string    `yaml:"status"`
	Tags        []string  `yaml:"tags,omitempty"`
	Summary     string    `yaml:"summary,omitempty"`
	Fingerprint string    `yaml:"fingerprint,omitempty"`
	Strategy    string    `yaml:"strategy,omitempty"`
	Created     time.Time `yaml:"created"`
	Updated     time.Time `yaml:"updated"`
}

// Parsed is a persisted document split into its structured parts.
type Parsed struct {
	Meta Frontmatter
	// Body is the system-generated body above the notes marker.
	Body string
	// Notes is the user-owned region below the marker, marker excluded.
	// Empty when the document has no marker or nothing below it.
	Notes string
	// HasMarker records whether the artifact carried a notes marker.
	HasMarker bool
}

// Parse splits raw document content into frontmatter, system body, and
// user notes. Content without a valid frontmatter block is an error; the
// store quarantines such documents rather than overwriting them.
func Parse(content string) (Parsed, error) {
	rest, ok := strings.CutPrefix(content, frontmatterDelim+"\n")
	if !ok {
		return Parsed{}, fmt.Errorf("missing frontmatter block")
	}
	metaRaw, body, ok := strings.Cut(rest, "\n"+frontmatterDelim+"\n")
	if !ok {
		return Parsed{}, fmt.Errorf("unterminated frontmatter block")
	}

	var meta Frontmatter
	if err := yaml.Unmarshal([]byte(metaRaw), &meta); err != nil {
		return Parsed{}, fmt.Errorf("decode frontmatter: %w", err)
	}
	if meta.URL == "" {
		return Parsed{}, fmt.Errorf("frontmatter missing url")
	}

	p := Parsed{Meta: meta}
	// Render separates frontmatter and body with a blank line; strip it so
	// a parse/render cycle stays byte-stable.
	body = strings.TrimPrefix(body, "\n")
	if sys, notes, found := strings.Cut(body, NotesMarker); found {
		p.HasMarker = true
		p.Body = strings.TrimRight(sys, "\n")
		p.Notes = strings.TrimPrefix(notes, "\n")
	} else {
		p.Body = strings.TrimRight(body, "\n")
	}
	return p, nil
}

// Render assembles the full artifact: frontmatter, system body, notes
// marker, and the preserved user notes. Output is deterministic for
// identical inputs so that unchanged re-syncs stay byte-identical.
func Render(meta Frontmatter, body, notes string) (string, error) {
	metaRaw, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString(frontmatterDelim + "\n")
	b.Write(metaRaw)
	b.WriteString(frontmatterDelim + "\n\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n" + NotesMarker + "\n")
	if notes != "" {
		b.WriteString(notes)
		if !strings.HasSuffix(notes, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
