//go:build gcp

package anchor

import (
	"context"
	"fmt"
	"os"
)

func newGCSPublisherFromEnv(ctx context.Context) (Publisher, error) {
	bucket := os.Getenv("ANCHOR_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("anchor: ANCHOR_GCS_BUCKET is required for gcs publishing")
	}
	return NewGCSPublisher(ctx, GCSPublisherConfig{
		Bucket: bucket,
		Prefix: os.Getenv("ANCHOR_GCS_PREFIX"),
	})
}
