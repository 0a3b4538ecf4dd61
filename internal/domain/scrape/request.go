package scrape

import (
	"strconv"
	"strings"
	"time"

	"github.com/example/slotscout/internal/internaltypes"
)

type Platform string

const (
	PlatformAYO    Platform = "ayo"
	PlatformGelora Platform = "gelora"
	PlatformAll    Platform = "all"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultSport  = 7
	DefaultSortBy = 5

	// MaxRangeDays bounds how many days one job may scrape.
	MaxRangeDays = 31
)

// Request is a normalized scrape configuration as handed to every adapter.
type Request struct {
	Platform  Platform `json:"platform"`
	Location  string   `json:"lokasi"`
	Sport     int      `json:"cabor"`
	SortBy    int      `json:"sortby"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	// StartTime and EndTime are an optional HH:MM window applied to slot start times.
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	MaxPages      int    `json:"max_pages"`
	MaxVenues     int    `json:"max_venues"`
	CheapestFirst bool   `json:"cheapest_first"`
}

// Normalize fills defaults and validates the request. now supplies "today".
func (r Request) Normalize(now time.Time) (Request, error) {
	out := r
	out.Platform = Platform(strings.ToLower(strings.TrimSpace(string(r.Platform))))
	if out.Platform == "" {
		out.Platform = PlatformAYO
	}
	switch out.Platform {
	case PlatformAYO, PlatformGelora, PlatformAll:
	default:
		return Request{}, &internaltypes.ValidationError{Field: "platform", Reason: "must be one of ayo, gelora, all"}
	}

	out.Location = strings.TrimSpace(r.Location)
	if out.Sport == 0 {
		out.Sport = DefaultSport
	}
	if out.Sport < 0 {
		return Request{}, &internaltypes.ValidationError{Field: "cabor", Reason: "must be positive"}
	}
	if out.SortBy == 0 {
		out.SortBy = DefaultSortBy
	}

	out.StartDate = strings.TrimSpace(r.StartDate)
	if out.StartDate == "" {
		out.StartDate = now.Format(DateLayout)
	}
	out.EndDate = strings.TrimSpace(r.EndDate)
	if out.EndDate == "" {
		out.EndDate = out.StartDate
	}
	start, err := time.Parse(DateLayout, out.StartDate)
	if err != nil {
		return Request{}, &internaltypes.ValidationError{Field: "start_date", Reason: "want YYYY-MM-DD"}
	}
	end, err := time.Parse(DateLayout, out.EndDate)
	if err != nil {
		return Request{}, &internaltypes.ValidationError{Field: "end_date", Reason: "want YYYY-MM-DD"}
	}
	if end.Before(start) {
		return Request{}, &internaltypes.ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	if int(end.Sub(start).Hours()/24)+1 > MaxRangeDays {
		return Request{}, &internaltypes.ValidationError{
			Field:  "end_date",
			Reason: "date range longer than " + strconv.Itoa(MaxRangeDays) + " days",
		}
	}

	out.StartTime = strings.TrimSpace(r.StartTime)
	out.EndTime = strings.TrimSpace(r.EndTime)
	if out.StartTime != "" {
		if _, ok := minutes(out.StartTime); !ok {
			return Request{}, &internaltypes.ValidationError{Field: "start_time", Reason: "want HH:MM"}
		}
	}
	if out.EndTime != "" {
		if _, ok := minutes(out.EndTime); !ok {
			return Request{}, &internaltypes.ValidationError{Field: "end_time", Reason: "want HH:MM"}
		}
	}

	if out.MaxPages < 0 {
		return Request{}, &internaltypes.ValidationError{Field: "max_pages", Reason: "must be >= 0"}
	}
	if out.MaxVenues < 0 {
		return Request{}, &internaltypes.ValidationError{Field: "max_venues", Reason: "must be >= 0"}
	}
	return out, nil
}

// Platforms lists the adapters to run, always in the same order.
func (r Request) Platforms() []Platform {
	switch r.Platform {
	case PlatformAll:
		return []Platform{PlatformAYO, PlatformGelora}
	case PlatformGelora:
		return []Platform{PlatformGelora}
	default:
		return []Platform{PlatformAYO}
	}
}

// Dates returns every day from StartDate to EndDate inclusive. The request
// must already be normalized.
func (r Request) Dates() []time.Time {
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return nil
	}
	end, err := time.Parse(DateLayout, r.EndDate)
	if err != nil {
		return []time.Time{start}
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// InTimeWindow reports whether a slot starting at start (HH:MM) falls inside
// the optional [StartTime, EndTime] window.
func (r Request) InTimeWindow(start string) bool {
	if r.StartTime == "" && r.EndTime == "" {
		return true
	}
	slot, ok := minutes(start)
	if !ok {
		return false
	}
	if lo, ok := minutes(r.StartTime); ok && slot < lo {
		return false
	}
	if hi, ok := minutes(r.EndTime); ok && slot > hi {
		return false
	}
	return true
}

func minutes(hhmm string) (int, bool) {
	h, m, found := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !found {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 24 {
		return 0, false
	}
	// tolerate HH:MM:SS
	m, _, _ = strings.Cut(m, ":")
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

var sportLabels = map[int]string{
	7:  "Tennis",
	12: "Padel",
	15: "Pickleball",
}

func SportLabel(code int) string {
	if l, ok := sportLabels[code]; ok {
		return l
	}
	return strconv.Itoa(code)
}

func PlatformLabel(p Platform) string {
	switch p {
	case PlatformAYO:
		return "AYO"
	case PlatformGelora:
		return "Gelora"
	case PlatformAll:
		return "AYO + Gelora"
	default:
		return string(p)
	}
}
