// Package transform applies optional translation and summarization to
// canonical text, splitting long text into bounded chunks processed
// independently and reassembled in order.
package transform

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkRunes bounds one chunk. Most providers cap request size
// around 5000 characters; staying under leaves prompt headroom.
const DefaultChunkRunes = 4500

var sentenceBoundary = regexp.MustCompile(`(?:[.!?。！？])\s+`)

// SplitChunks splits text into chunks of at most maxRunes, preferring
// paragraph boundaries and falling back to sentence boundaries for
// oversized paragraphs. Split points depend only on the text and
// maxRunes, so re-running with identical input reproduces identical
// chunk boundaries.
func SplitChunks(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = DefaultChunkRunes
	}
	if len([]rune(text)) <= maxRunes {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		currLen int
	)
	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
		currLen = 0
	}
	appendPiece := func(piece, sep string) {
		pieceLen := len([]rune(piece))
		sepLen := len([]rune(sep))
		if currLen > 0 && currLen+sepLen+pieceLen > maxRunes {
			flush()
		}
		if currLen > 0 {
			current.WriteString(sep)
			currLen += sepLen
		}
		current.WriteString(piece)
		currLen += pieceLen
	}

	for _, para := range strings.Split(text, "\n\n") {
		if len([]rune(para)) > maxRunes {
			// Oversized paragraph: split at sentence boundaries. A single
			// sentence longer than the bound is kept whole rather than
			// cut mid-sentence.
			for _, sentence := range splitSentences(para) {
				appendPiece(sentence, " ")
			}
			continue
		}
		appendPiece(para, "\n\n")
	}
	flush()
	return chunks
}

// splitSentences splits after sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	rest := text
	for {
		loc := sentenceBoundary.FindStringIndex(rest)
		if loc == nil {
			break
		}
		// The match ends after the trailing whitespace; the sentence ends
		// after the punctuation rune itself.
		_, size := utf8.DecodeRuneInString(rest[loc[0]:])
		end := loc[0] + size
		sentences = append(sentences, strings.TrimSpace(rest[:end]))
		rest = rest[loc[1]:]
	}
	if trimmed := strings.TrimSpace(rest); trimmed != "" {
		sentences = append(sentences, trimmed)
	}
	return sentences
}
