package reader

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Strategy-level failures are
// converted to FetchOutcome variants at the cascade boundary; these errors
// surface to callers of a sync operation.
var (
	// ErrParse marks a malformed URL. Fatal, never retried.
	ErrParse = errors.New("url parse error")

	// ErrExtraction marks content with no discernible title and body
	// after all strategies were tried.
	ErrExtraction = errors.New("no extractable content")
)

// RecoverableError wraps a failure eligible for cascade fallthrough or a
// scheduled retry on the next sync pass.
type RecoverableError struct {
	Strategy string
	Reason   string
	Sub      []string
}

func (e *RecoverableError) Error() string {
	if len(e.Sub) > 0 {
		return fmt.Sprintf("all strategies failed: %v", e.Sub)
	}
	if e.Strategy != "" {
		return fmt.Sprintf("%s: %s", e.Strategy, e.Reason)
	}
	return e.Reason
}

// FatalError wraps a permanent failure that stops the cascade, such as an
// explicit block or a login wall with no session available.
type FatalError struct {
	Strategy string
	Reason   string
}

func (e *FatalError) Error() string {
	if e.Strategy != "" {
		return fmt.Sprintf("%s: %s", e.Strategy, e.Reason)
	}
	return e.Reason
}

// IsRecoverable reports whether err allows a retry on a later sync pass.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}
