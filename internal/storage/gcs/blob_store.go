// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>, e.g. for a CDN.
	PublicBaseURL string
	// CacheControl is applied to every uploaded object.
	CacheControl string
}

// BlobStore writes cover images to a configured GCS bucket.
type BlobStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	cache   string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: PublicURLBase(cfg.Bucket, cfg.PublicBaseURL),
		cache:   cfg.CacheControl,
	}, nil
}

// PublicURLBase returns the URL prefix objects in bucket are served from.
func PublicURLBase(bucket, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return "https://storage.googleapis.com/" + bucket
}

// PutObject uploads data to the configured bucket and returns its public URL.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if s.cache != "" {
		writer.CacheControl = s.cache
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return s.baseURL + "/" + path, nil
}
