package platform

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/progress"
)

// Adapter scrapes one booking platform into the shared venue model.
//
// Per-venue and per-field problems are handled inside the adapter and show up
// as venues without slots. A returned error fails the whole job.
type Adapter interface {
	Platform() scrape.Platform
	Scrape(ctx context.Context, req scrape.Request, r progress.Reporter) ([]venue.Venue, error)
}

type Registry map[scrape.Platform]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	reg := Registry{}
	for _, a := range adapters {
		reg[a.Platform()] = a
	}
	return reg
}

// Select returns the adapters for req in run order.
func (r Registry) Select(req scrape.Request) ([]Adapter, error) {
	var out []Adapter
	for _, p := range req.Platforms() {
		a, ok := r[p]
		if !ok {
			return nil, fmt.Errorf("no adapter registered for platform %q", p)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r Registry) Names() []string {
	var out []string
	for p := range r {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
