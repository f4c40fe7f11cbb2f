package anchor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/atlasops/integrity-core/pkg/canonical"
)

// S3Publisher writes anchor manifests to S3. The object key is derived from
// tenant and batch, the body is the canonical JSON of the anchor, so the
// published manifest hashes identically everywhere.
type S3Publisher struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3PublisherConfig holds configuration for S3Publisher.
type S3PublisherConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (MinIO, LocalStack)
	Prefix   string // Optional key prefix (e.g. "anchors/")
}

// NewS3Publisher creates an S3-backed publisher.
func NewS3Publisher(ctx context.Context, cfg S3PublisherConfig) (*S3Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("anchor: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	return &S3Publisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Publish implements Publisher.
func (p *S3Publisher) Publish(ctx context.Context, a Anchor) (string, error) {
	body, err := canonical.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("anchor: encode manifest: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.json", p.prefix, a.TenantID, a.BatchID)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("anchor: put manifest: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}
