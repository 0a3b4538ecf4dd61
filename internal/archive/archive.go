package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/slotscout/internal/db"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/migrate"
)

// Record is the stored summary of one finished scrape job.
type Record struct {
	ID         string        `json:"id"`
	Platform   string        `json:"platform"`
	Location   string        `json:"lokasi"`
	Sport      int           `json:"cabor"`
	StartDate  string        `json:"start_date"`
	EndDate    string        `json:"end_date"`
	Success    bool          `json:"success"`
	VenueCount int           `json:"venue_count"`
	Error      string        `json:"error,omitempty"`
	Report     string        `json:"report,omitempty"`
	Venues     []venue.Venue `json:"venues,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Archive keeps finished jobs beyond the lifetime of the in-memory registry.
// Get returns internaltypes.ErrNotFound for unknown ids.
type Archive interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	// Recent returns up to limit records, newest first, without venues.
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

type Options struct {
	DatabaseURL string
	Path        string
}

// Open picks postgres when a database url is set, else bbolt when a path is
// set. Neither returns a nil Archive and no error.
func Open(ctx context.Context, opts Options) (Archive, error) {
	switch {
	case opts.DatabaseURL != "":
		d, err := db.Open(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrate.Up(ctx, d); err != nil {
			d.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		slog.InfoContext(ctx, "archive: postgres")
		return NewPostgres(d), nil
	case opts.Path != "":
		b, err := NewBolt(opts.Path)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "archive: bolt", "path", opts.Path)
		return b, nil
	default:
		return nil, nil
	}
}
