package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/slotscout/internal/db"
	"github.com/example/slotscout/internal/domain/venue"
)

type Postgres struct{ db *db.DB }

func NewPostgres(d *db.DB) *Postgres { return &Postgres{db: d} }

func (p *Postgres) Save(ctx context.Context, rec Record) error {
	venues := rec.Venues
	if venues == nil {
		venues = []venue.Venue{}
	}
	b, err := json.Marshal(venues)
	if err != nil {
		return fmt.Errorf("marshal venues: %w", err)
	}
	return p.db.Exec(ctx, `
INSERT INTO scrape_jobs(id,platform,location,sport,start_date,end_date,success,venue_count,error,report,venues,created_at,finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  success=EXCLUDED.success, venue_count=EXCLUDED.venue_count, error=EXCLUDED.error,
  report=EXCLUDED.report, venues=EXCLUDED.venues, finished_at=EXCLUDED.finished_at`,
		rec.ID, rec.Platform, rec.Location, rec.Sport, rec.StartDate, rec.EndDate, rec.Success, rec.VenueCount,
		rec.Error, rec.Report, b, rec.CreatedAt, rec.FinishedAt)
}

func (p *Postgres) Get(ctx context.Context, id string) (Record, error) {
	var (
		rec    Record
		venues []byte
	)
	err := p.db.QueryRow(ctx, `
SELECT id,platform,location,sport,start_date,end_date,success,venue_count,error,report,venues,created_at,finished_at
FROM scrape_jobs
WHERE id=$1`, id).
		Scan(&rec.ID, &rec.Platform, &rec.Location, &rec.Sport, &rec.StartDate, &rec.EndDate, &rec.Success,
			&rec.VenueCount, &rec.Error, &rec.Report, &venues, &rec.CreatedAt, &rec.FinishedAt)
	if err != nil {
		return Record{}, db.WrapNotFound(err)
	}
	if err := json.Unmarshal(venues, &rec.Venues); err != nil {
		return Record{}, fmt.Errorf("unmarshal venues: %w", err)
	}
	return rec, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := p.db.Query(ctx, `
SELECT id,platform,location,sport,start_date,end_date,success,venue_count,error,created_at,finished_at
FROM scrape_jobs
ORDER BY finished_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Platform, &rec.Location, &rec.Sport, &rec.StartDate, &rec.EndDate,
			&rec.Success, &rec.VenueCount, &rec.Error, &rec.CreatedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
