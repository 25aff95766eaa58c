// Package delivery reconciles crawl results with the downstream catalog and
// notifies recipients about genuinely new shows. It is the only component
// that writes the seen index: a record is "seen" once it has been delivered,
// not once it has been scraped.
package delivery

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/catalog"
	"github.com/showwatch/showwatch/internal/metrics"
	"github.com/showwatch/showwatch/internal/notify"
	"github.com/showwatch/showwatch/internal/show"
)

// SeenIndex is the delivery-side surface of the checkpoint store.
type SeenIndex interface {
	HasSeen(ctx context.Context, id string) bool
	MarkSeen(ctx context.Context, id string)
}

// Config controls delivery.
type Config struct {
	// Recipients receive one message per new show each.
	Recipients []string
}

// Summary counts what one delivery pass did.
type Summary struct {
	New       int
	Updated   int
	Unchanged int
	Failed    int
}

// Deliverer runs the diff-upsert-notify pass.
type Deliverer struct {
	cfg      Config
	catalog  catalog.Store
	notifier notify.Notifier
	seen     SeenIndex
	logger   *zap.Logger
}

// New builds a Deliverer.
func New(cfg Config, cat catalog.Store, n notify.Notifier, seen SeenIndex, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		cfg:      cfg,
		catalog:  cat,
		notifier: n,
		seen:     seen,
		logger:   logger,
	}
}

// Deliver diffs the records against the catalog: unknown IDs are inserted
// and announced, changed fingerprints are updated silently, unchanged
// records are no-ops. A failing record or recipient is logged and skipped;
// only an unreadable catalog aborts, because without projections every
// record would look new.
func (d *Deliverer) Deliver(ctx context.Context, records []show.Show) (Summary, error) {
	projections, err := d.catalog.Projections(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load catalog projections: %w", err)
	}

	var sum Summary
	for _, rec := range records {
		fingerprint, exists := projections[rec.ID]
		if exists && fingerprint == rec.ContentFingerprint {
			sum.Unchanged++
			// Refresh the TTL so a long-running record keeps its fast path.
			d.markSeen(ctx, rec)
			continue
		}

		if err := d.catalog.Upsert(ctx, rec); err != nil {
			// Not marked seen: the next pass must retry the upsert.
			d.logger.Warn("catalog upsert failed",
				zap.String("id", rec.ID),
				zap.String("title", rec.Title),
				zap.Error(err),
			)
			sum.Failed++
			continue
		}

		if exists {
			sum.Updated++
			d.markSeen(ctx, rec)
			continue
		}

		sum.New++
		if !d.seen.HasSeen(ctx, rec.ID) {
			d.announce(ctx, rec)
		}
		d.markSeen(ctx, rec)
	}

	d.logger.Info("delivery finished",
		zap.Int("new", sum.New),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// announce sends one message per recipient. A failing recipient never stops
// the others.
func (d *Deliverer) announce(ctx context.Context, rec show.Show) {
	message := RenderMessage(rec)
	for _, recipient := range d.cfg.Recipients {
		if err := d.notifier.Send(ctx, recipient, message); err != nil {
			d.logger.Warn("notification failed",
				zap.String("recipient", recipient),
				zap.String("id", rec.ID),
				zap.Error(err),
			)
			metrics.IncNotification("failed")
			continue
		}
		metrics.IncNotification("sent")
	}
}

// markSeen records both the record ID and its day-scoped candidate key; the
// latter is what lets the scheduler skip extraction of fully known days.
func (d *Deliverer) markSeen(ctx context.Context, rec show.Show) {
	d.seen.MarkSeen(ctx, rec.ID)
	d.seen.MarkSeen(ctx, show.CandidateKey(rec.SourceURL, rec.OccursAt.Format(show.DayFormat)))
}

// RenderMessage formats the notification text for one show.
func RenderMessage(rec show.Show) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Neue Show: %s\n", rec.Title)
	fmt.Fprintf(&b, "Am %s\n", rec.OccursAt.Format("02.01.2006 15:04"))
	if rec.SoldOut {
		b.WriteString("Leider schon ausverkauft.\n")
	} else if rec.TicketURL != "" {
		fmt.Fprintf(&b, "Tickets: %s\n", rec.TicketURL)
	}
	b.WriteString(rec.SourceURL)
	return b.String()
}
