//go:build gcp

package anchor

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/atlasops/integrity-core/pkg/canonical"
)

// GCSPublisher writes anchor manifests to Google Cloud Storage. Built only
// with the gcp tag so default builds do not pull the GCP SDK chain.
type GCSPublisher struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSPublisherConfig holds configuration for GCSPublisher.
type GCSPublisherConfig struct {
	Bucket string
	Prefix string
}

// NewGCSPublisher creates a GCS-backed publisher using ambient credentials.
func NewGCSPublisher(ctx context.Context, cfg GCSPublisherConfig) (*GCSPublisher, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("anchor: create GCS client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Publish implements Publisher.
func (p *GCSPublisher) Publish(ctx context.Context, a Anchor) (string, error) {
	body, err := canonical.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("anchor: encode manifest: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.json", p.prefix, a.TenantID, a.BatchID)
	w := p.client.Bucket(p.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("anchor: write manifest: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("anchor: finalize manifest: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", p.bucket, key), nil
}
