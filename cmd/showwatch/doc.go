// Package main hosts the showwatch service entrypoint.
//
// Architecture overview:
//   - Discovery: internal/discover reads the venue's calendar index once per
//     logical crawl and turns it into the set of day pages to scrape. The
//     date set is checkpointed before any scraping starts.
//   - Fetch pipeline: every page load goes through the budgeted fetcher
//     (internal/fetcher), which enforces the per-crawl request ceiling,
//     retries transient failures with a fixed delay, and serves repeat URLs
//     from a bounded in-memory cache. The actual GETs run through a
//     Colly-based getter with optional robots.txt enforcement.
//   - Scheduling: internal/scheduler drains per-day scrape jobs under a
//     concurrency bound and the invocation deadline. Jobs interrupted by the
//     deadline or bounced off the budget stay pending and are carried in the
//     checkpoint to the next invocation.
//   - Checkpointing: internal/checkpoint wraps a kv.Store (memory, embedded
//     Badger, or GCS) with JSON encoding, a freshness window, and the
//     seen-ID index. Losing a checkpoint costs re-scraping, never a failed
//     crawl.
//   - Delivery: internal/delivery diffs crawl results against the catalog
//     (noop or Postgres), upserts new and changed records, and announces
//     genuinely new shows to the configured recipients via the notifier
//     (noop, Telegram, or Pub/Sub). Delivered IDs and their day-scoped
//     candidate keys land in the seen index, which is what lets later
//     invocations skip extraction of fully known days.
//   - Configuration & plumbing: Viper populates config from env/files with
//     the SHOWWATCH_ prefix; zap provides structured logging; Prometheus
//     metrics are exported on /metrics; internal/api serves health and a
//     read-only view of the crawl state on /v1/crawl/state.
//
// Operational notes:
//   - Scheduling model: a cron loop (internal/runner) triggers one
//     crawl-and-deliver pass per tick; overlapping ticks are skipped and the
//     checkpoint carries the backlog forward. -once runs a single pass for
//     cron-job or Cloud Run Jobs style deployments.
//   - Budgets: budget.max_requests bounds a whole logical crawl across
//     invocations (the counter is checkpointed); crawler.timeout_seconds
//     bounds one invocation's wall clock.
//   - Run locally: go run ./cmd/showwatch -config config.yaml (or rely
//     solely on env overrides). The process reacts to SIGTERM for graceful
//     drain; in-flight work is bounded by the invocation timeout.
package main
