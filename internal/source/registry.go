package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoDriver is returned when no registered driver matches a lookup.
var ErrNoDriver = errors.New("no driver registered for source")

// Registry maps source ids and hostnames to drivers. Registration is
// explicit; the list is scanned linearly, which is fine at this scale.
type Registry struct {
	drivers []Driver
}

// NewRegistry creates a registry holding the given drivers.
func NewRegistry(drivers ...Driver) *Registry {
	return &Registry{drivers: drivers}
}

// Register adds a driver to the registry.
func (r *Registry) Register(d Driver) {
	r.drivers = append(r.drivers, d)
}

// ResolveByID returns the driver with the given source id.
// Parameters:
//   - id: source identifier as stored on the job record.
// Returns:
//   - Driver: matching driver.
//   - error: ErrNoDriver if no driver matches.
func (r *Registry) ResolveByID(id string) (Driver, error) {
	for _, d := range r.drivers {
		if d.ID() == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDriver, id)
}

// ResolveByHostname returns the driver whose hostnames match the URL's host.
// A driver hostname matches exactly or as a dot-separated suffix, so
// "carrefour.fr" covers "www.carrefour.fr".
// Parameters:
//   - rawURL: absolute URL to match.
// Returns:
//   - Driver: matching driver.
//   - error: ErrNoDriver if no driver matches, or a parse error.
func (r *Registry) ResolveByHostname(rawURL string) (Driver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: URL %q has no hostname", ErrNoDriver, rawURL)
	}

	for _, d := range r.drivers {
		for _, h := range d.MatchHostnames() {
			h = strings.ToLower(h)
			if host == h || strings.HasSuffix(host, "."+h) {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: host %q", ErrNoDriver, host)
}

// List returns all registered drivers in registration order.
func (r *Registry) List() []Driver {
	out := make([]Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}
