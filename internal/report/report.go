package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const PriceUnavailable = "Price not available"

var printer = message.NewPrinter(language.English)

// FormatPrice renders a slot price the same way everywhere: "Rp 150,000" for
// positive amounts, PriceUnavailable for zero or missing, and non-numeric
// input unchanged.
func FormatPrice(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return PriceUnavailable
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return raw
	}
	return formatAmount(n)
}

func formatAmount(n int) string {
	if n <= 0 {
		return PriceUnavailable
	}
	return printer.Sprintf("Rp %d", n)
}

// SlotPrice is FormatPrice for a parsed slot.
func SlotPrice(s venue.TimeSlot) string {
	if s.Price > 0 {
		return formatAmount(s.Price)
	}
	if s.RawPrice != "" {
		return FormatPrice(s.RawPrice)
	}
	return PriceUnavailable
}

// Partition splits venues into those with at least one field or slot and
// those without, preserving order within each.
func Partition(vs []venue.Venue) (withSlots, withoutSlots []venue.Venue) {
	for _, v := range vs {
		if v.HasSlots() {
			withSlots = append(withSlots, v)
		} else {
			withoutSlots = append(withoutSlots, v)
		}
	}
	return withSlots, withoutSlots
}

// SortCheapestFirst orders venues by their cheapest priced slot. Venues with
// no priced slot go last; ties keep discovery order.
func SortCheapestFirst(vs []venue.Venue) {
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].MinPositivePrice() < vs[j].MinPositivePrice()
	})
}

// Render produces the plain-text results report for a finished job.
func Render(vs []venue.Venue, req scrape.Request) string {
	withSlots, withoutSlots := Partition(vs)
	rule := strings.Repeat("=", 80)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("%s", rule)
	line("VENUE SCRAPING RESULTS")
	if req.StartDate == req.EndDate || req.EndDate == "" {
		line("Date: %s", req.StartDate)
	} else {
		line("Date: %s to %s", req.StartDate, req.EndDate)
	}
	location := req.Location
	if location == "" {
		location = "All Locations"
	}
	line("Location: %s", location)
	line("Sport: %s", scrape.SportLabel(req.Sport))
	line("Platform: %s", scrape.PlatformLabel(req.Platform))
	line("Total venues checked: %d", len(vs))
	line("Venues with available slots: %d", len(withSlots))
	line("Venues with no slots: %d", len(withoutSlots))
	if req.CheapestFirst {
		line("Sorted by: Cheapest First")
	}
	line("%s", rule)

	if len(withoutSlots) > 0 {
		line("")
		line("--- Checked but no slots available (%d) ---", len(withoutSlots))
		for _, v := range withoutSlots {
			line("  - %s (%s)", v.Name, v.URL)
		}
	}
	line("")

	if req.CheapestFirst {
		SortCheapestFirst(withSlots)
	}
	for i, v := range withSlots {
		renderVenue(line, v, i+1, req.Platform == scrape.PlatformAll)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func renderVenue(line func(string, ...any), v venue.Venue, index int, tagPlatform bool) {
	tag := ""
	if tagPlatform {
		p := v.Platform
		if p == "" {
			p = string(scrape.PlatformAYO)
		}
		tag = "[" + strings.ToUpper(p) + "] "
	}
	line("%d. %s%s", index, tag, v.Name)
	line("   URL: %s", v.URL)
	if v.ID != 0 {
		line("   Venue ID: %d", v.ID)
	}

	fields := v.Fields
	if len(fields) == 0 {
		// not finalized yet; render the flat slots grouped the same way
		tmp := venue.Venue{Slots: v.Slots}
		tmp.Finalize()
		fields = tmp.Fields
	}

	line("   \n   AVAILABLE SLOTS:")
	for _, f := range fields {
		name := f.Name
		if name == "" {
			name = venue.UnknownField
		}
		status := f.Status
		if status == "" {
			status = "Unknown"
		}
		line("\n   Field: %s (%s)", name, status)
		if len(f.Slots) == 0 {
			continue
		}
		line("   Available Hours & Prices:")
		for _, s := range f.Slots {
			date := ""
			if s.Date != "" {
				date = s.Date + "  "
			}
			line("      • %s%s - %s  |  %s", date, orNA(s.StartTime), orNA(s.EndTime), SlotPrice(s))
		}
	}
	line("")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
