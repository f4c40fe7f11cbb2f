//go:build !gcp

package anchor

import (
	"context"
	"fmt"
)

func newGCSPublisherFromEnv(ctx context.Context) (Publisher, error) {
	return nil, fmt.Errorf("anchor: gcs publishing requires building with the gcp tag")
}
