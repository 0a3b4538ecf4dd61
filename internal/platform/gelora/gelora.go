package gelora

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
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
	DefaultBaseURL = "https://www.gelora.id"
	DefaultTimeout = 15 * time.Second

	pageDelay = time.Second

	dateLayout = "02-Jan-2006"
	available  = "Tersedia"
	// separates a label from its detail in card text, e.g. "Tennis ◦ Outdoor"
	bullet = "◦"
)

var (
	pageParam = regexp.MustCompile(`page=(\d+)`)
	fieldPath = regexp.MustCompile(`/field/(\d+)`)
)

type Options struct {
	BaseURL string
	Timeout time.Duration
	// PageDelay overrides the politeness delay. Tests only.
	PageDelay  *time.Duration
	TracerName string
}

// Adapter scrapes gelora.id, whose listing pages embed every field and its
// slots per venue card, so one pass per date is enough.
type Adapter struct {
	client    *resty.Client
	baseURL   string
	pageDelay time.Duration
}

func New(opts Options) *Adapter {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	a := &Adapter{
		client: platform.NewClient(platform.ClientOptions{
			BaseURL:    base,
			Timeout:    opts.Timeout,
			TracerName: opts.TracerName,
		}),
		baseURL:   base,
		pageDelay: pageDelay,
	}
	if opts.PageDelay != nil {
		a.pageDelay = *opts.PageDelay
	}
	return a
}

func (a *Adapter) Platform() scrape.Platform { return scrape.PlatformGelora }

func (a *Adapter) Scrape(ctx context.Context, req scrape.Request, r progress.Reporter) ([]venue.Venue, error) {
	pacer := platform.NewPacer(a.pageDelay)
	dates := req.Dates()
	if len(dates) == 0 {
		return nil, fmt.Errorf("gelora: no dates in request")
	}
	sport := sportName(req.Sport)

	r.Logf("Starting Gelora scraper for %d date(s)", len(dates))
	location := req.Location
	if location == "" {
		location = "All"
	}
	r.Logf("Sport: %s | Location: %s", sport, location)

	first := dates[0]
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}
	doc, err := a.fetchListing(ctx, req, first, 1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.WarnContext(ctx, "gelora listing failed", "err", err)
		r.Logf("❌ Failed to fetch first page")
		return nil, nil
	}

	total := totalPages(doc)
	toScrape := total
	if req.MaxPages > 0 && req.MaxPages < total {
		toScrape = req.MaxPages
	}
	r.Logf("Total pages found: %d", total)
	r.Logf("Will scrape %d page(s)", toScrape)

	var (
		order []string
		byURL = map[string]*venue.Venue{}
	)
	keep := func(vs []venue.Venue) {
		for _, v := range vs {
			if existing, ok := byURL[v.URL]; ok {
				*existing = v
				continue
			}
			v := v
			byURL[v.URL] = &v
			order = append(order, v.URL)
		}
	}

	pageVenues := a.extract(doc, req, first, r)
	keep(pageVenues)
	r.Logf("Page 1: Found %d venues", len(pageVenues))

	for page := 2; page <= toScrape; page++ {
		r.Logf("Scraping page %d...", page)
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		doc, err := a.fetchListing(ctx, req, first, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.WarnContext(ctx, "gelora listing page failed", "page", page, "err", err)
			r.Logf("❌ Failed to fetch page %d", page)
			continue
		}
		pv := a.extract(doc, req, first, r)
		keep(pv)
		r.Logf("Page %d: Found %d venues", page, len(pv))
	}

	if req.MaxVenues > 0 && len(order) > req.MaxVenues {
		order = order[:req.MaxVenues]
	}

	if len(dates) > 1 {
		r.Logf("Fetching slot data for %d additional date(s)...", len(dates)-1)
		for _, day := range dates[1:] {
			r.Logf("  Fetching date: %s (%s)", day.Format(scrape.DateLayout), day.Format(dateLayout))
			for page := 1; page <= toScrape; page++ {
				if err := pacer.Wait(ctx); err != nil {
					return nil, err
				}
				doc, err := a.fetchListing(ctx, req, day, page)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					slog.WarnContext(ctx, "gelora date page failed", "date", day, "page", page, "err", err)
					continue
				}
				for _, dv := range a.extract(doc, req, day, progress.Discard) {
					if existing, ok := byURL[dv.URL]; ok {
						existing.MergeFields(dv.Fields)
					}
				}
			}
		}
	}

	r.Logf("Processing %d venues...", len(order))
	out := make([]venue.Venue, 0, len(order))
	for i, u := range order {
		v := *byURL[u]
		v.Finalize()
		if len(v.Fields) > 0 {
			r.Logf("  [%d/%d] %s - %s (%d total slots)", i+1, len(order), v.Name, v.Status, len(v.Slots))
		} else {
			r.Logf("  [%d/%d] %s - No available slots", i+1, len(order), v.Name)
		}
		out = append(out, v)
		r.Progress(string(scrape.PlatformGelora), i+1, len(order))
	}
	r.Logf("Gelora scraping completed! Total venues: %d", len(out))
	return out, nil
}

func (a *Adapter) fetchListing(ctx context.Context, req scrape.Request, day time.Time, page int) (*goquery.Document, error) {
	q := map[string]string{
		"sport": sportName(req.Sport),
		"date":  day.Format(dateLayout),
	}
	if city := cityParam(req.Location); city != "" {
		q["city"] = city
	}
	if page > 1 {
		q["page"] = strconv.Itoa(page)
	}
	return platform.FetchDocument(ctx, a.client, "/venue", q)
}

// cityParam turns an AYO style location ("Kota+Jakarta+Selatan,Kota+Depok")
// into the plain city name gelora expects.
func cityParam(location string) string {
	if location == "" {
		return ""
	}
	city, _, _ := strings.Cut(location, ",")
	city = strings.TrimSpace(strings.ReplaceAll(city, "+", " "))
	return strings.TrimPrefix(city, "Kota ")
}

func sportName(code int) string {
	switch code {
	case 12:
		return "Padel"
	case 15:
		return "Pickleball"
	default:
		return "Tennis"
	}
}

func sportMatches(code int, sportType string) bool {
	s := strings.ToLower(strings.TrimSpace(sportType))
	switch code {
	case 7:
		return s == "tenis" || s == "tennis"
	case 12:
		return s == "padel"
	case 15:
		return s == "pickleball"
	default:
		return true
	}
}

func totalPages(doc *goquery.Document) int {
	pag := doc.Find("div.pagination").First()
	if pag.Length() == 0 {
		return 1
	}
	if href, ok := pag.Find("a.pagination__next").First().Attr("href"); ok {
		if m := pageParam.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	highest := 1
	pag.Find("li").Each(func(_ int, li *goquery.Selection) {
		if href, ok := li.Find("a").First().Attr("href"); ok {
			if m := pageParam.FindStringSubmatch(href); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
					highest = n
				}
			}
			return
		}
		if li.HasClass("pagination__current") {
			if n, err := strconv.Atoi(strings.TrimSpace(li.Text())); err == nil && n > highest {
				highest = n
			}
		}
	})
	return highest
}

// extract reads every venue card on a listing page. Slots are tagged with day.
func (a *Adapter) extract(doc *goquery.Document, req scrape.Request, day time.Time, r progress.Reporter) []venue.Venue {
	date := day.Format(scrape.DateLayout)
	var out []venue.Venue

	doc.Find("div.col-12.col-md-6.col-lg-4.mb-xs-3").Each(func(_ int, card *goquery.Selection) {
		boxed := card.Find("div.boxed").First()
		if boxed.Length() == 0 {
			return
		}
		product := boxed.Find("div.product").First()
		if product.Length() == 0 {
			return
		}

		nameTag := product.Find("h5.text--darkblue").First()
		if nameTag.Length() == 0 {
			nameTag = product.Find("h5").First()
		}
		name := strings.TrimSpace(nameTag.Text())
		if name == "" {
			name = "Unknown"
		}

		venueURL := ""
		product.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href := s.AttrOr("href", "")
			if strings.HasPrefix(href, "/v/") {
				venueURL = a.baseURL + href
				return false
			}
			return true
		})

		location := ""
		product.Find("a.block").First().Find("div").EachWithBreak(func(_ int, d *goquery.Selection) bool {
			if before, _, found := strings.Cut(d.Text(), bullet); found {
				location = strings.TrimSpace(before)
				return false
			}
			return true
		})

		v := venue.Venue{
			Platform:   string(scrape.PlatformGelora),
			Name:       name,
			URL:        venueURL,
			Location:   location,
			PriceRange: strings.TrimSpace(product.Find("span.text--green").First().Text()),
		}
		r.Logf("Found venue: %s (%s) -> %s", name, location, venueURL)

		boxed.Find("a.feature.good-card-4").Each(func(_ int, link *goquery.Selection) {
			if f, ok := extractField(link, req, date); ok {
				v.Fields = append(v.Fields, f)
			}
		})
		out = append(out, v)
	})
	return out
}

func extractField(link *goquery.Selection, req scrape.Request, date string) (venue.Field, bool) {
	name := strings.TrimSpace(link.Find("h5.mb-0").First().Text())
	if name == "" {
		name = venue.UnknownField
	}

	id := ""
	if m := fieldPath.FindStringSubmatch(link.AttrOr("href", "")); m != nil {
		id = m[1]
	}

	sportType := "Tennis"
	if span := link.Find("span").First(); span.Length() > 0 {
		text := strings.TrimSpace(span.Text())
		if before, _, found := strings.Cut(text, bullet); found {
			sportType = strings.TrimSpace(before)
		} else if words := strings.Fields(text); len(words) > 0 {
			sportType = words[0]
		}
	}
	if !sportMatches(req.Sport, sportType) {
		return venue.Field{}, false
	}

	var slots []venue.TimeSlot
	link.Find("div.btn.btn--sm").Each(func(_ int, btn *goquery.Selection) {
		start := strings.TrimSpace(btn.Text())
		if btn.AttrOr("data-tooltip", "") != available || start == "" {
			return
		}
		if !req.InTimeWindow(start) {
			return
		}
		slots = append(slots, venue.TimeSlot{
			Date:      date,
			StartTime: start,
			EndTime:   hourAfter(start),
			FieldName: name,
		})
	})
	if len(slots) == 0 {
		return venue.Field{}, false
	}
	return venue.Field{
		Name:      name,
		ID:        id,
		SportType: sportType,
		Status:    fmt.Sprintf("%d slots available", len(slots)),
		Slots:     slots,
	}, true
}

// hourAfter assumes one-hour slots; the listing does not show end times.
func hourAfter(start string) string {
	h, _, found := strings.Cut(start, ":")
	if !found {
		return ""
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%02d:00", hour+1)
}
