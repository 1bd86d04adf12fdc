package source

import (
	"context"
	"errors"
	"fmt"
)

// DiscoveredItem is one unit of work found on a source listing.
type DiscoveredItem struct {
	NaturalKey string // stable business identifier (GTIN, product URL, video id)
	DetailURL  string // where the item's detail can be scraped
	Title      string
}

// DiscoveryResult is the outcome of walking a source listing.
type DiscoveryResult struct {
	// TotalReported is the item count the source claims for the listing;
	// 0 when the source does not report one.
	TotalReported int
	Items         []DiscoveredItem
}

// ScrapedItem carries the outcome of one scrape. Raw is the source payload
// as received, archived by the tick loop; Data is driver-private and handed
// back unchanged to Save.
type ScrapedItem struct {
	NaturalKey string
	URL        string
	Raw        []byte
	Data       interface{}
}

// Driver is the capability set every source (retailer or video platform)
// implements. Drivers are pure strategy objects: they hold clients and
// repositories but no job state, so one instance serves all jobs.
type Driver interface {
	// ID returns the unique identifier for this source.
	ID() string

	// DisplayName returns a human-readable name for this source.
	DisplayName() string

	// MatchHostnames returns the hostnames this driver handles, used for
	// registry lookup by URL.
	MatchHostnames() []string

	// Discover walks the source listing (paginating or triggering "load
	// more") until the reported total is reached or no new items appear
	// across a bounded number of attempts, and returns every item found.
	Discover(ctx context.Context, listingURL string) (*DiscoveryResult, error)

	// Scrape fetches one item by its natural key. A nil result with nil
	// error means the source has no exploitable data for the item.
	Scrape(ctx context.Context, naturalKey string) (*ScrapedItem, error)

	// Save persists a scraped item as an idempotent upsert keyed by the
	// natural key, and returns the destination entity id.
	Save(ctx context.Context, item *ScrapedItem) (string, error)
}

// FatalError marks an infrastructure failure (client torn down, source
// unreachable) that should abort the remainder of the current batch instead
// of being recorded against a single item.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal source error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
