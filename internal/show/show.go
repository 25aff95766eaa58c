// Package show defines the core types shared across subsystems: the show
// record produced by extraction, the per-day scrape job, and the small
// interfaces the crawl pipeline is wired through.
package show

import (
	"fmt"
	"time"

	"github.com/showwatch/showwatch/internal/hash/sha256"
)

// DayFormat is the canonical wire format for a scrape day.
const DayFormat = "2006-01-02"

// Show is one event occurrence candidate extracted from a programme page.
type Show struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	SourceURL          string    `json:"source_url"`
	OccursAt           time.Time `json:"occurs_at"`
	ImageURL           string    `json:"image_url,omitempty"`
	TicketURL          string    `json:"ticket_url,omitempty"`
	SoldOut            bool      `json:"sold_out"`
	ContentFingerprint string    `json:"content_fingerprint"`
}

// Job is the unit of scheduling: scrape one day page.
type Job struct {
	URL string `json:"url"`
	Day string `json:"day"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ComputeID derives the stable record identifier from the immutable pair
// (source URL, occurrence time). Two extractions of the same occurrence on
// different days yield the same ID.
func ComputeID(sourceURL string, occursAt time.Time) string {
	h := sha256.New()
	return h.Short(fmt.Appendf(nil, "%s|%s", sourceURL, occursAt.UTC().Format(time.RFC3339)))
}

// ComputeFingerprint hashes the mutable fields so that a change to any of
// them is detectable without comparing full records. The ID is deliberately
// not part of the input.
func ComputeFingerprint(s Show) string {
	h := sha256.New()
	return h.Short(fmt.Appendf(nil, "%s|%s|%t|%s",
		s.Title, s.OccursAt.UTC().Format(time.RFC3339), s.SoldOut, s.TicketURL))
}

// CandidateKey derives the day-scoped dedup key for a detail-page URL. The
// lightweight pre-scan of a day page can compute it without full extraction,
// which is what makes the skip-known-listings fast path possible.
func CandidateKey(sourceURL string, day string) string {
	h := sha256.New()
	return h.Short(fmt.Appendf(nil, "candidate|%s|%s", sourceURL, day))
}

// Finalize fills in the derived ID and fingerprint after the scraped fields
// have been populated.
func (s *Show) Finalize() {
	s.ID = ComputeID(s.SourceURL, s.OccursAt)
	s.ContentFingerprint = ComputeFingerprint(*s)
}

// ParseDay parses a canonical YYYY-MM-DD day string.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayFormat, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return t, nil
}

// MergeByID folds src into dst keyed by record ID; a record re-derived by a
// later scrape overwrites the earlier version with the same ID. The merge is
// commutative and idempotent, so out-of-order job completion is safe.
func MergeByID(dst []Show, src []Show) []Show {
	index := make(map[string]int, len(dst))
	for i, s := range dst {
		index[s.ID] = i
	}
	for _, s := range src {
		if i, ok := index[s.ID]; ok {
			dst[i] = s
			continue
		}
		index[s.ID] = len(dst)
		dst = append(dst, s)
	}
	return dst
}
