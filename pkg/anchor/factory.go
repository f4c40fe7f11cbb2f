package anchor

import (
	"context"
	"fmt"
	"os"
)

// NewPublisherFromEnv selects a publisher by ANCHOR_PUBLISHER: "s3", "gcs"
// (requires the gcp build tag) or "none"/unset for local-only anchoring.
func NewPublisherFromEnv(ctx context.Context) (Publisher, error) {
	switch backend := os.Getenv("ANCHOR_PUBLISHER"); backend {
	case "", "none":
		return NopPublisher{}, nil
	case "s3":
		bucket := os.Getenv("ANCHOR_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("anchor: ANCHOR_S3_BUCKET is required for s3 publishing")
		}
		return NewS3Publisher(ctx, S3PublisherConfig{
			Bucket:   bucket,
			Region:   os.Getenv("ANCHOR_S3_REGION"),
			Endpoint: os.Getenv("ANCHOR_S3_ENDPOINT"),
			Prefix:   os.Getenv("ANCHOR_S3_PREFIX"),
		})
	case "gcs":
		return newGCSPublisherFromEnv(ctx)
	default:
		return nil, fmt.Errorf("anchor: unknown publisher backend %q", backend)
	}
}
