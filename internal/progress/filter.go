package progress

import "strings"

var skipPhrases = []string{
	"API URL:",
	"Found count_drop",
	"innerHTML",
	"Selenium",
	"WebDriver",
	"field_id",
	"sport_id",
}

var keepPhrases = []string{
	"Found venue:",
	"Scraping page",
	"Processing:",
	"Checking slots",
	"Total venues",
	"Page",
	"Field:",
	"slot available",
	"✅",
	"❌",
	"Scraping completed",
	"available fields",
	"Processing all",
	"[AYO]",
	"[GELORA]",
	"Gelora scraper",
	"Gelora scraping",
	"Fetching date:",
	"total slots",
}

// FilterLines keeps the progress-relevant lines of text. ok is false when
// nothing survives, in which case no event should be shown.
func FilterLines(text string) (string, bool) {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || containsAny(line, skipPhrases) {
			continue
		}
		if containsAny(line, keepPhrases) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
