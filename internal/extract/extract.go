// Package extract turns a fetched programme page into show records. All
// knowledge of the venue's markup lives here, so source drift never leaks
// into scheduling or checkpoint logic.
//
// A day page lists shows as .event-item blocks:
//
//	<div class="event-item">
//	  <h2 class="event-title"><a href="/event/4711">Die Nerven</a></h2>
//	  <img class="event-image" src="/media/4711.jpg?w=300">
//	  <div class="event-date">
//	    <span class="event-day">14.</span>
//	    <span class="event-month">Juni</span>
//	    <span class="event-time">20:00</span>
//	  </div>
//	  <a class="ticket-link" href="https://tickets.example/4711">Tickets</a>
//	  <span class="event-status">Ausverkauft</span>
//	</div>
//
// Days without shows carry a marker text instead of listings.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/show"
)

const (
	// noEventsMarker is the venue's "nothing on this day" text.
	noEventsMarker = "Keine Veranstaltungen"
	// soldOutLabel marks a sold-out show; matched case-insensitively.
	soldOutLabel = "ausverkauft"
)

// eventURLPattern matches detail-page anchors, the cheap pre-scan that lets
// a crawl skip full parsing when every listing is already known.
var eventURLPattern = regexp.MustCompile(`/event/\d+`)

// germanMonths maps lowercased month names and their common abbreviations
// to calendar months.
var germanMonths = map[string]time.Month{
	"januar": time.January, "jan": time.January,
	"februar": time.February, "feb": time.February,
	"märz": time.March, "maerz": time.March, "mär": time.March,
	"april": time.April, "apr": time.April,
	"mai": time.May,
	"juni": time.June, "jun": time.June,
	"juli": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"oktober": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"dezember": time.December, "dez": time.December,
}

// Config controls extraction.
type Config struct {
	// BaseURL resolves relative hrefs on the page.
	BaseURL string
	// Location is the venue's timezone for occurrence times.
	Location *time.Location
	// Minimal skips the structured date parse and stamps records with the
	// current time.
	Minimal bool
}

// Extractor parses programme pages.
type Extractor struct {
	base     *url.URL
	location *time.Location
	minimal  bool
	clock    show.Clock
	logger   *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, clock show.Clock, logger *zap.Logger) (*Extractor, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	return &Extractor{
		base:     base,
		location: location,
		minimal:  cfg.Minimal,
		clock:    clock,
		logger:   logger,
	}, nil
}

// HasNoEventsMarker reports whether the page declares the day empty. This is
// a substring check on the raw body, cheap enough to run before any parsing.
func (e *Extractor) HasNoEventsMarker(body []byte) bool {
	return bytes.Contains(body, []byte(noEventsMarker))
}

// ScanEventURLs returns the absolute detail-page URLs found by a regexp pass
// over the raw body, without building a DOM. Callers use it with the seen
// index to skip full extraction for days with no unknown listings.
func (e *Extractor) ScanEventURLs(body []byte) []string {
	matches := eventURLPattern.FindAll(body, -1)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		abs := e.resolve(string(m))
		if abs == "" {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		urls = append(urls, abs)
	}
	return urls
}

// Extract walks every listing on the page and returns the normalized show
// records for the given day. Listings missing a title or detail URL are
// dropped silently: partial markup drift is expected and must not halt the
// crawl.
func (e *Extractor) Extract(body []byte, day time.Time) []show.Show {
	if e.HasNoEventsMarker(body) {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("programme page unparsable", zap.Error(err))
		return nil
	}

	var shows []show.Show
	doc.Find(".event-item").Each(func(_ int, sel *goquery.Selection) {
		record, ok := e.extractOne(sel, day)
		if !ok {
			return
		}
		record.Finalize()
		shows = append(shows, record)
	})
	return shows
}

func (e *Extractor) extractOne(sel *goquery.Selection, day time.Time) (show.Show, bool) {
	titleLink := sel.Find(".event-title a").First()
	title := strings.TrimSpace(titleLink.Text())
	if title == "" {
		title = strings.TrimSpace(sel.Find(".event-title").First().Text())
	}
	href, _ := titleLink.Attr("href")
	sourceURL := e.resolve(href)
	if title == "" || sourceURL == "" {
		return show.Show{}, false
	}

	record := show.Show{
		Title:     title,
		SourceURL: sourceURL,
		OccursAt:  e.occursAt(sel, day),
		SoldOut:   e.soldOut(sel),
	}
	if src, ok := sel.Find("img.event-image").First().Attr("src"); ok {
		record.ImageURL = stripQuery(e.resolve(src))
	}
	if ticket, ok := sel.Find("a.ticket-link").First().Attr("href"); ok {
		record.TicketURL = e.resolve(ticket)
	}
	return record, true
}

// occursAt derives the occurrence time from the structured date sub-fields,
// anchored to the year of the scraped day. Any parse failure falls back to
// the current time.
func (e *Extractor) occursAt(sel *goquery.Selection, day time.Time) time.Time {
	if e.minimal {
		return e.clock.Now()
	}
	dayNum, okDay := parseDayNumber(sel.Find(".event-day").First().Text())
	month, okMonth := parseMonth(sel.Find(".event-month").First().Text())
	hour, minute, okTime := parseClock(sel.Find(".event-time").First().Text())
	if !okDay || !okMonth || !okTime {
		return e.clock.Now()
	}
	return time.Date(day.Year(), month, dayNum, hour, minute, 0, 0, e.location)
}

func (e *Extractor) soldOut(sel *goquery.Selection) bool {
	status := strings.TrimSpace(sel.Find(".event-status").First().Text())
	return strings.EqualFold(status, soldOutLabel)
}

func (e *Extractor) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(ref).String()
}

// stripQuery drops the query string so resized or cache-busted image URLs
// deduplicate stably.
func stripQuery(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

func parseDayNumber(text string) (int, bool) {
	text = strings.TrimSuffix(strings.TrimSpace(text), ".")
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > 31 {
		return 0, false
	}
	return n, true
}

func parseMonth(text string) (time.Month, bool) {
	key := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(text), "."))
	month, ok := germanMonths[key]
	return month, ok
}

func parseClock(text string) (hour, minute int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(text), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(parts[1], "Uhr")))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
