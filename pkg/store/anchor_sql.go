package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atlasops/integrity-core/pkg/anchor"
)

const anchorSchema = `
CREATE TABLE IF NOT EXISTS anchors (
	batch_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL DEFAULT '',
	root TEXT NOT NULL,
	leaf_hashes TEXT NOT NULL,
	leaf_count INTEGER NOT NULL,
	anchored_at TIMESTAMP NOT NULL,
	location TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_anchors_tenant ON anchors (tenant_id, anchored_at);
`

// SQLAnchorStore implements anchor.Store over database/sql.
type SQLAnchorStore struct {
	db *sql.DB
}

// NewSQLAnchorStore wraps an open database handle.
func NewSQLAnchorStore(db *sql.DB) *SQLAnchorStore {
	return &SQLAnchorStore{db: db}
}

// Init creates the anchors table if missing.
func (s *SQLAnchorStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, anchorSchema); err != nil {
		return fmt.Errorf("store: init anchor schema: %w", err)
	}
	return nil
}

// SaveAnchor persists an anchor. Anchors are immutable: saving a batch ID
// that already exists is an error, not an overwrite.
func (s *SQLAnchorStore) SaveAnchor(ctx context.Context, a anchor.Anchor) error {
	leaves, err := json.Marshal(a.LeafHashes)
	if err != nil {
		return fmt.Errorf("store: encode leaf hashes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO anchors (batch_id, tenant_id, root, leaf_hashes, leaf_count, anchored_at, location)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.BatchID, a.TenantID, a.Root, string(leaves), a.LeafCount, a.AnchoredAt, a.Location,
	)
	if err != nil {
		return fmt.Errorf("store: insert anchor: %w", err)
	}
	return nil
}

// GetAnchor loads an anchor by batch ID.
func (s *SQLAnchorStore) GetAnchor(ctx context.Context, batchID string) (anchor.Anchor, bool, error) {
	var a anchor.Anchor
	var leaves string
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id, tenant_id, root, leaf_hashes, leaf_count, anchored_at, location
		 FROM anchors WHERE batch_id = $1`,
		batchID,
	).Scan(&a.BatchID, &a.TenantID, &a.Root, &leaves, &a.LeafCount, &a.AnchoredAt, &a.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return anchor.Anchor{}, false, nil
	}
	if err != nil {
		return anchor.Anchor{}, false, fmt.Errorf("store: query anchor: %w", err)
	}
	if err := json.Unmarshal([]byte(leaves), &a.LeafHashes); err != nil {
		return anchor.Anchor{}, false, fmt.Errorf("store: decode leaf hashes: %w", err)
	}
	return a, true, nil
}
