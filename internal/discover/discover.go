// Package discover finds the candidate dates a crawl should visit by
// reading the venue's calendar index.
package discover

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/fetcher"
	"github.com/showwatch/showwatch/internal/show"
)

// datePattern extracts the canonical day from a calendar link target.
var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Config controls discovery.
type Config struct {
	// BaseURL is the venue root, e.g. https://venue.example.
	BaseURL string
	// CalendarPath is the calendar index path, e.g. /kalender.
	CalendarPath string
	// DayPath is the programme page path prefix, e.g. /programm.
	DayPath string
	// MaxDates caps the dates returned per invocation. Deeper lookback
	// happens across invocations by draining the checkpoint, not by
	// following next-month links here.
	MaxDates int
}

// Discoverer fetches one calendar page and extracts linked future dates.
type Discoverer struct {
	cfg     Config
	fetcher fetcher.Fetcher
	clock   show.Clock
	logger  *zap.Logger
}

// New builds a Discoverer.
func New(cfg Config, f fetcher.Fetcher, clock show.Clock, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		cfg:     cfg,
		fetcher: f,
		clock:   clock,
		logger:  logger,
	}
}

// CalendarURL returns the calendar index URL anchored at startDay.
func (d *Discoverer) CalendarURL(startDay string) string {
	return fmt.Sprintf("%s%s?start=%s",
		strings.TrimRight(d.cfg.BaseURL, "/"), d.cfg.CalendarPath, url.QueryEscape(startDay))
}

// DayURL returns the programme page URL for a day.
func (d *Discoverer) DayURL(day string) string {
	return fmt.Sprintf("%s%s/%s", strings.TrimRight(d.cfg.BaseURL, "/"), d.cfg.DayPath, day)
}

// Discover fetches the calendar index anchored at startDay and returns the
// linked dates that are not in the past: ascending, de-duplicated, capped at
// MaxDates. A linked entry without a recognizable date defaults to today,
// an explicit fallback rather than a failure.
func (d *Discoverer) Discover(ctx context.Context, startDay string) ([]string, error) {
	body, err := d.fetcher.Fetch(ctx, d.CalendarURL(startDay))
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	today := d.clock.Now().Format(show.DayFormat)
	seen := make(map[string]struct{})
	var days []string
	doc.Find(".calendar a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		day := datePattern.FindString(href)
		if day == "" {
			day = today
		}
		if day < today {
			return true
		}
		if _, dup := seen[day]; dup {
			return true
		}
		seen[day] = struct{}{}
		days = append(days, day)
		return len(days) < d.cfg.MaxDates
	})
	sort.Strings(days)

	d.logger.Debug("calendar discovery finished",
		zap.String("start", startDay),
		zap.Int("dates", len(days)),
	)
	return days, nil
}
