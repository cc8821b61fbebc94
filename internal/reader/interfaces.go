package reader

import (
	"context"
	"time"

	"github.com/metisreader/metis/internal/platform"
)

// Strategy is one interchangeable way to fetch a URL. Implementations must
// respect ctx cancellation and must not panic across the boundary; the
// cascade still recovers panics defensively but treats them as bugs.
type Strategy interface {
	// Name identifies the strategy in outcomes and logs.
	Name() string
	// Fetch attempts to retrieve the URL. Errors are classified by the
	// cascade: a FatalError stops the cascade, anything else falls
	// through to the next strategy.
	Fetch(ctx context.Context, url string, plat platform.Platform) (*RawPage, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }
