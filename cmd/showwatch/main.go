// Package main wires together the showwatch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/showwatch/showwatch/internal/api"
	"github.com/showwatch/showwatch/internal/catalog"
	catalogpostgres "github.com/showwatch/showwatch/internal/catalog/postgres"
	"github.com/showwatch/showwatch/internal/checkpoint"
	"github.com/showwatch/showwatch/internal/clock/system"
	"github.com/showwatch/showwatch/internal/config"
	"github.com/showwatch/showwatch/internal/crawl"
	"github.com/showwatch/showwatch/internal/delivery"
	"github.com/showwatch/showwatch/internal/discover"
	"github.com/showwatch/showwatch/internal/extract"
	"github.com/showwatch/showwatch/internal/fetcher"
	collyfetcher "github.com/showwatch/showwatch/internal/fetcher/colly"
	"github.com/showwatch/showwatch/internal/kv"
	kvbadger "github.com/showwatch/showwatch/internal/kv/badger"
	kvgcs "github.com/showwatch/showwatch/internal/kv/gcs"
	kvmemory "github.com/showwatch/showwatch/internal/kv/memory"
	"github.com/showwatch/showwatch/internal/logging"
	"github.com/showwatch/showwatch/internal/metrics"
	"github.com/showwatch/showwatch/internal/notify"
	notifypubsub "github.com/showwatch/showwatch/internal/notify/pubsub"
	"github.com/showwatch/showwatch/internal/notify/telegram"
	"github.com/showwatch/showwatch/internal/runner"
	"github.com/showwatch/showwatch/internal/show"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single crawl-and-deliver pass and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	kvStore, err := newKVStore(ctx, cfg, clock)
	if err != nil {
		logger.Fatal("checkpoint backend init failed", zap.Error(err))
	}
	defer func() {
		if closeErr := kvStore.Close(); closeErr != nil {
			logger.Warn("checkpoint backend close failed", zap.Error(closeErr))
		}
	}()
	cpStore := checkpoint.New(kvStore, cfg.Freshness(), clock, logger.Named("checkpoint"))

	getter := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Source.UserAgent,
		RespectRobots: cfg.Source.RespectRobots,
		Timeout:       cfg.SourceTimeout(),
	})
	budgeted := fetcher.New(getter, fetcher.Config{
		MaxRequests:     cfg.Budget.MaxRequests,
		MaxRetries:      cfg.Budget.MaxRetries,
		RetryDelay:      cfg.RetryDelay(),
		CacheMaxEntries: cfg.Budget.CacheMaxEntries,
	}, logger.Named("fetcher"))

	location, err := time.LoadLocation(cfg.Source.Timezone)
	if err != nil {
		logger.Fatal("load timezone failed", zap.String("timezone", cfg.Source.Timezone), zap.Error(err))
	}
	extractor, err := extract.New(extract.Config{
		BaseURL:  cfg.Source.BaseURL,
		Location: location,
		Minimal:  cfg.Crawler.ExtractionMinimal,
	}, clock, logger.Named("extract"))
	if err != nil {
		logger.Fatal("extractor init failed", zap.Error(err))
	}

	discoverer := discover.New(discover.Config{
		BaseURL:      cfg.Source.BaseURL,
		CalendarPath: cfg.Source.CalendarPath,
		DayPath:      cfg.Source.DayPath,
		MaxDates:     cfg.Crawler.MaxDates,
	}, budgeted, clock, logger.Named("discover"))

	orchestrator := crawl.New(crawl.Config{
		ChunkSize:     cfg.Crawler.ChunkSize,
		MaxConcurrent: cfg.Crawler.MaxConcurrent,
		Timeout:       cfg.InvocationTimeout(),
		MinRunway:     cfg.MinRunway(),
	}, discoverer, budgeted, extractor, cpStore, clock, logger.Named("crawl"))

	cat, err := newCatalog(ctx, cfg)
	if err != nil {
		logger.Fatal("catalog init failed", zap.Error(err))
	}
	defer cat.Close()

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		logger.Fatal("notifier init failed", zap.Error(err))
	}

	deliverer := delivery.New(delivery.Config{
		Recipients: cfg.Notify.Recipients,
	}, cat, notifier, cpStore, logger.Named("delivery"))

	run := runner.New(runner.Config{
		Schedule:   cfg.Schedule.Cron,
		RunOnStart: cfg.Schedule.RunOnStart,
	}, orchestrator, deliverer, logger.Named("runner"))

	if *once {
		if err := run.RunOnce(ctx); err != nil {
			logger.Error("pass failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	apiServer := api.NewServer(api.Config{
		RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}, cpStore, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := run.Start(ctx); err != nil {
		logger.Fatal("runner start failed", zap.Error(err))
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	run.Stop()
	logger.Info("shutdown complete")
}

func newKVStore(ctx context.Context, cfg config.Config, clock show.Clock) (kv.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "memory":
		return kvmemory.New(clock), nil
	case "badger":
		store, err := kvbadger.Open(kvbadger.Config{Path: cfg.Checkpoint.Path})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := kvgcs.New(client, clock, kvgcs.Config{
			Bucket: cfg.Checkpoint.GCSBucket,
			Prefix: cfg.Checkpoint.GCSPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func newCatalog(ctx context.Context, cfg config.Config) (catalog.Store, error) {
	switch cfg.Catalog.Backend {
	case "noop":
		return catalog.Noop{}, nil
	case "postgres":
		store, err := catalogpostgres.New(ctx, catalogpostgres.Config{
			DSN:             cfg.Catalog.DSN,
			Table:           cfg.Catalog.Table,
			MaxConns:        cfg.Catalog.MaxConns,
			MinConns:        cfg.Catalog.MinConns,
			MaxConnLifetime: time.Duration(cfg.Catalog.ConnLifetime) * time.Minute,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

func newNotifier(ctx context.Context, cfg config.Config) (notify.Notifier, error) {
	switch cfg.Notify.Backend {
	case "noop":
		return notify.Noop{}, nil
	case "telegram":
		n, err := telegram.New(telegram.Config{Token: cfg.Notify.TelegramToken})
		if err != nil {
			return nil, err
		}
		return n, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		return notifypubsub.New(client.Topic(cfg.Notify.TopicName)), nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
}
