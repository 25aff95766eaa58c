// Package gcs provides a kv.Store backed by Google Cloud Storage, for
// deployments that want the checkpoint in a managed bucket instead of a
// local embedded database. GCS has no per-read TTL, so expiry is recorded
// in object metadata and enforced on Get.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/showwatch/showwatch/internal/kv"
	"github.com/showwatch/showwatch/internal/show"
)

const expiresAtMetaKey = "showwatch-expires-at"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Store implements kv.Store over objects in a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
	clock  show.Clock
}

// New creates a GCS-backed store.
func New(client *storage.Client, clock show.Clock, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		clock:  clock,
	}, nil
}

func (s *Store) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Get reads the object for key, honoring the stored expiry.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	object := s.client.Bucket(s.bucket).Object(s.objectName(key))

	attrs, err := object.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("gcs attrs %q: %w", key, err)
	}
	if raw, ok := attrs.Metadata[expiresAtMetaKey]; ok && raw != "" {
		expiresAt, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr == nil && s.clock.Now().After(expiresAt) {
			// Expired entries read as absent; removal is best effort.
			_ = object.Delete(ctx)
			return "", kv.ErrNotFound
		}
	}

	reader, err := object.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", kv.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("gcs open %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("gcs read %q: %w", key, err)
	}
	return string(data), nil
}

// Put writes the object, stamping the expiry metadata when ttl > 0.
func (s *Store) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	writer := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	writer.ContentType = "application/json"
	if ttl > 0 {
		writer.Metadata = map[string]string{
			expiresAtMetaKey: s.clock.Now().Add(ttl).Format(time.RFC3339),
		}
	}
	if _, err := io.WriteString(writer, value); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("gcs write %q: %w (close writer: %v)", key, err, closeErr)
		}
		return fmt.Errorf("gcs write %q: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gcs close %q: %w", key, err)
	}
	return nil
}

// Delete removes the object; a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
