package platform

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out requests to one remote site. The first Wait returns
// immediately; later ones wait until interval has passed since the previous.
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer returns a pacer with the given minimum interval. A zero interval
// never waits.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}
