package ayo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/platform"
	"github.com/example/slotscout/internal/progress"
)

const pricingPath = "/venues-ajax/field-slots"

type discoveredField struct {
	ID        string
	Name      string
	SportType string
	Status    string
	// fallback holds the slots rendered on the venue page itself, used when
	// the pricing request fails.
	fallback []venue.TimeSlot
}

// scrapeVenue never fails: anything that goes wrong for one venue leaves it
// without fields.
func (a *Adapter) scrapeVenue(ctx context.Context, pacer *platform.Pacer, req scrape.Request, l listing, r progress.Reporter) venue.Venue {
	v := venue.Venue{Name: l.Name, URL: l.URL}

	r.Logf("  Checking slots for: %s", l.URL)
	if err := pacer.Wait(ctx); err != nil {
		return v
	}
	doc, err := platform.FetchDocument(ctx, a.client, l.URL, map[string]string{"date": req.StartDate})
	if err != nil {
		slog.WarnContext(ctx, "ayo venue page failed", "url", l.URL, "err", err)
		r.Logf("  ❌ %s | url -> %s | slot available -> Error loading page", l.Name, l.URL)
		return v
	}

	v.ID = venueID(doc)
	fields := discoverFields(doc, req.Sport)
	slog.DebugContext(ctx, "ayo fields discovered", "venue", l.Name, "venue_id", v.ID, "fields", len(fields))

	var errs []error
	for _, f := range fields {
		offered, err := a.fieldSlots(ctx, pacer, req, v.ID, f)
		if err != nil {
			if ctx.Err() != nil {
				return v
			}
			errs = append(errs, fmt.Errorf("field %s: %w", f.ID, err))
			offered = f.fallback
		}
		// a field the site lists as available stays even without slots; one
		// emptied by the requested dates or times does not
		slots := filterSlots(req, offered)
		if len(slots) == 0 && len(offered) > 0 {
			continue
		}
		if slots == nil {
			slots = []venue.TimeSlot{}
		}
		for i := range slots {
			slots[i].FieldName = f.Name
		}
		v.Fields = append(v.Fields, venue.Field{
			Name:      f.Name,
			ID:        f.ID,
			SportType: f.SportType,
			Status:    f.Status,
			Slots:     slots,
		})
	}
	if err := errors.Join(errs...); err != nil {
		slog.DebugContext(ctx, "ayo pricing failures", "venue", l.Name, "err", err)
	}

	if len(v.Fields) == 0 {
		r.Logf("  ❌ %s | url -> %s | slot available -> No available slots", l.Name, l.URL)
		return v
	}
	r.Logf("  ✅ %s | url -> %s | slot available -> %d available fields", l.Name, l.URL, len(v.Fields))
	for _, f := range v.Fields {
		r.Logf("    Field: %s - %s (%d slots)", f.Name, f.Status, len(f.Slots))
	}
	return v
}

func venueID(doc *goquery.Document) int64 {
	candidates := []string{}
	if s, ok := doc.Find("[venue-id]").First().Attr("venue-id"); ok {
		candidates = append(candidates, s)
	}
	if s, ok := doc.Find(`input[name="venue_id"]`).First().Attr("value"); ok {
		candidates = append(candidates, s)
	}
	for _, c := range candidates {
		if id, err := strconv.ParseInt(strings.TrimSpace(c), 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// discoverFields reads the field buttons on a venue page, skipping fields
// marked unavailable and fields of another sport.
func discoverFields(doc *goquery.Document, sport int) []discoveredField {
	var out []discoveredField
	doc.Find("div.field_slot_btn").Each(func(_ int, btn *goquery.Selection) {
		statusEl := btn.Find("span.slot-available-text").First()
		if statusEl.Length() == 0 {
			return
		}
		status := strings.TrimSpace(statusEl.Text())
		if status == unavailable {
			return
		}

		id, _ := btn.Attr("field-id")
		id = strings.TrimSpace(id)
		name := venue.UnknownField
		if n, ok := btn.Attr("field-name"); ok && strings.TrimSpace(n) != "" {
			name = strings.TrimSpace(n)
		}

		container := btn.Closest("div.field-container")
		sportType := fieldSport(container)
		if !sportMatches(sport, sportType) {
			return
		}

		f := discoveredField{ID: id, Name: name, SportType: sportType, Status: status}
		doc.Find("div.field-slot-item").Each(func(_ int, s *goquery.Selection) {
			if fid, _ := s.Attr("field-id"); fid != id {
				return
			}
			if s.HasClass("field-slot-item-disabled") {
				return
			}
			if d, _ := s.Attr("is-disabled"); d == "true" {
				return
			}
			price, raw := venue.ParsePrice(s.AttrOr("price", ""))
			f.fallback = append(f.fallback, venue.TimeSlot{
				ID:        s.AttrOr("slot-id", ""),
				Date:      s.AttrOr("date", ""),
				StartTime: s.AttrOr("start-time", ""),
				EndTime:   s.AttrOr("end-time", ""),
				Price:     price,
				RawPrice:  raw,
			})
		})
		out = append(out, f)
	})
	return out
}

func fieldSport(container *goquery.Selection) string {
	if container.Length() == 0 {
		return ""
	}
	desc := strings.ToLower(container.Find("div.field_desc_point").Text())
	switch {
	case strings.Contains(desc, "tennis"):
		return "Tennis"
	case strings.Contains(desc, "padel"):
		return "Padel"
	case strings.Contains(desc, "pickleball"):
		return "Pickleball"
	}
	return strings.TrimSpace(container.AttrOr("sport", ""))
}

func sportMatches(code int, sportType string) bool {
	if sportType == "" {
		return true
	}
	switch code {
	case 7, 12, 15:
		return strings.EqualFold(sportType, scrape.SportLabel(code))
	default:
		return true
	}
}

type pricingResponse struct {
	Data []pricingSlot `json:"data"`
}

type pricingSlot struct {
	SlotID      json.RawMessage `json:"slot_id"`
	Date        string          `json:"date"`
	StartTime   string          `json:"start_time"`
	EndTime     string          `json:"end_time"`
	Price       json.RawMessage `json:"price"`
	IsAvailable *bool           `json:"is_available"`
}

// fieldSlots fetches the priced slots of one field across the whole requested
// range in a single call. The result is not yet filtered by the request.
func (a *Adapter) fieldSlots(ctx context.Context, pacer *platform.Pacer, req scrape.Request, venueID int64, f discoveredField) ([]venue.TimeSlot, error) {
	if venueID == 0 || f.ID == "" {
		return nil, errors.New("missing venue or field id")
	}
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}

	var body pricingResponse
	res, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"venue_id":   strconv.FormatInt(venueID, 10),
			"field_id":   f.ID,
			"start_date": req.StartDate,
			"end_date":   req.EndDate,
		}).
		SetHeader("X-Requested-With", "XMLHttpRequest").
		SetResult(&body).
		Get(pricingPath)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("pricing: unexpected status %s", res.Status())
	}

	var slots []venue.TimeSlot
	for _, s := range body.Data {
		if s.IsAvailable != nil && !*s.IsAvailable {
			continue
		}
		price, raw := venue.ParsePrice(unquote(s.Price))
		slots = append(slots, venue.TimeSlot{
			ID:        unquote(s.SlotID),
			Date:      s.Date,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Price:     price,
			RawPrice:  raw,
		})
	}
	return slots, nil
}

func filterSlots(req scrape.Request, slots []venue.TimeSlot) []venue.TimeSlot {
	var out []venue.TimeSlot
	for _, s := range slots {
		if s.Date != "" && (s.Date < req.StartDate || s.Date > req.EndDate) {
			continue
		}
		if !req.InTimeWindow(s.StartTime) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// unquote flattens a JSON scalar that may be sent as a number or a string.
func unquote(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}
