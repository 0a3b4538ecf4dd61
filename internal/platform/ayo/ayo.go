package ayo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/platform"
	"github.com/example/slotscout/internal/progress"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://ayo.co.id"
	DefaultTimeout = 10 * time.Second

	pageDelay  = time.Second
	venueDelay = 2 * time.Second

	unavailable = "Tidak tersedia"
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	// PageDelay and VenueDelay override the politeness delays. Tests only.
	PageDelay  *time.Duration
	VenueDelay *time.Duration
	TracerName string
}

// Adapter scrapes ayo.co.id in two phases: the listing and venue pages
// discover fields, then one pricing request per field covers the whole date
// range.
type Adapter struct {
	client  *resty.Client
	baseURL *url.URL

	pageDelay  time.Duration
	venueDelay time.Duration
}

func New(opts Options) (*Adapter, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ayo base url: %w", err)
	}
	a := &Adapter{
		client: platform.NewClient(platform.ClientOptions{
			BaseURL:    base.String(),
			Timeout:    opts.Timeout,
			TracerName: opts.TracerName,
		}),
		baseURL:    base,
		pageDelay:  pageDelay,
		venueDelay: venueDelay,
	}
	if opts.PageDelay != nil {
		a.pageDelay = *opts.PageDelay
	}
	if opts.VenueDelay != nil {
		a.venueDelay = *opts.VenueDelay
	}
	return a, nil
}

func (a *Adapter) Platform() scrape.Platform { return scrape.PlatformAYO }

type listing struct {
	Name string
	URL  string
}

func (a *Adapter) Scrape(ctx context.Context, req scrape.Request, r progress.Reporter) ([]venue.Venue, error) {
	pages := platform.NewPacer(a.pageDelay)
	venues := platform.NewPacer(a.venueDelay)
	// venue pages and pricing calls share one pacer for the whole run
	requests := platform.NewPacer(a.pageDelay)

	r.Logf("Starting to scrape venues from %s", a.baseURL)
	slog.DebugContext(ctx, "ayo search parameters",
		"sortby", req.SortBy, "lokasi", req.Location, "cabor", req.Sport)

	if err := pages.Wait(ctx); err != nil {
		return nil, err
	}
	doc, err := platform.FetchDocument(ctx, a.client, "/venues", a.listingQuery(req, 1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.WarnContext(ctx, "ayo listing failed", "err", err)
		r.Logf("❌ Failed to fetch first page")
		return nil, nil
	}

	total := totalPages(doc)
	toScrape := total
	if req.MaxPages > 0 && req.MaxPages < total {
		toScrape = req.MaxPages
	}
	r.Logf("Total pages found: %d", total)

	seen := map[string]bool{}
	var found []listing
	collect := func(doc *goquery.Document) int {
		n := 0
		for _, l := range a.extractListings(doc) {
			if seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			found = append(found, l)
			r.Logf("Found venue: %s -> %s", l.Name, l.URL)
			n++
		}
		return n
	}
	r.Logf("Page 1: Found %d venues", collect(doc))

	for page := 2; page <= toScrape; page++ {
		r.Logf("Scraping page %d...", page)
		if err := pages.Wait(ctx); err != nil {
			return nil, err
		}
		doc, err := platform.FetchDocument(ctx, a.client, "/venues", a.listingQuery(req, page))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "ayo listing page failed", "page", page, "err", err)
			r.Logf("❌ Failed to fetch page %d", page)
			continue
		}
		r.Logf("Page %d: Found %d venues", page, collect(doc))
	}

	r.Logf("Scraping completed! Total venues found: %d (pages scraped: %d of %d)", len(found), toScrape, total)

	if req.MaxVenues > 0 && len(found) > req.MaxVenues {
		found = found[:req.MaxVenues]
		r.Logf("Processing %d venues (limited by max venues)", len(found))
	} else {
		r.Logf("Processing all %d venues", len(found))
	}

	out := make([]venue.Venue, 0, len(found))
	for i, l := range found {
		if err := venues.Wait(ctx); err != nil {
			return nil, err
		}
		r.Logf("[%d/%d] Processing: %s", i+1, len(found), l.Name)

		v := a.scrapeVenue(ctx, requests, req, l, r)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out = append(out, v)
		r.Progress(string(scrape.PlatformAYO), i+1, len(found))
	}
	return out, nil
}

func (a *Adapter) listingQuery(req scrape.Request, page int) map[string]string {
	q := map[string]string{
		"sortby": strconv.Itoa(req.SortBy),
		"tipe":   "venue",
		"cabor":  strconv.Itoa(req.Sport),
	}
	if req.Location != "" {
		q["lokasi"] = req.Location
	}
	if page > 1 {
		q["page"] = strconv.Itoa(page)
	}
	return q
}

func (a *Adapter) extractListings(doc *goquery.Document) []listing {
	var out []listing
	doc.Find("div.venue-card-item").Each(func(_ int, card *goquery.Selection) {
		name := "Unknown"
		if alt, ok := card.Find("img").First().Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			name = strings.TrimSpace(alt)
		}
		href, ok := card.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		out = append(out, listing{Name: name, URL: a.resolve(href)})
	})
	return out
}

func (a *Adapter) resolve(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return a.baseURL.ResolveReference(u).String()
}

// totalPages reads the pagination block: the page before the "next" link,
// falling back to the largest page= number linked.
func totalPages(doc *goquery.Document) int {
	ul := doc.Find("#venue-pagination ul.pagination").First()
	if ul.Length() == 0 {
		return 1
	}
	next := ul.Find(`a[rel="next"]`).First()
	if next.Length() > 0 {
		prev := next.Closest("li").Prev().Find("a").First()
		if n, err := strconv.Atoi(strings.TrimSpace(prev.Text())); err == nil && n > 0 {
			return n
		}
	}
	highest := 1
	ul.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > highest {
			highest = n
		}
	})
	return highest
}

// AutoCity proxies the location autocomplete endpoint.
func (a *Adapter) AutoCity(ctx context.Context, term string) (json.RawMessage, error) {
	res, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("term", term).
		Get("/autocity")
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("autocity: unexpected status %s", res.Status())
	}
	body := res.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("autocity: response is not json")
	}
	return json.RawMessage(body), nil
}
