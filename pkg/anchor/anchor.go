// Package anchor commits settlement-run batches to a single Merkle root
// suitable for external anchoring, and issues inclusion proofs against the
// stored batch. A new batch always produces a new tree; anchors are never
// rewritten.
package anchor

import (
	"context"
	"time"

	"github.com/atlasops/integrity-core/pkg/merkle"
)

// Batch is an ordered list of settlement events to anchor. Member order is
// part of the commitment: the same members in a different order produce a
// different root.
type Batch struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Members  []any  `json:"members"`
}

// Anchor is the durable commitment for one batch.
type Anchor struct {
	BatchID    string    `json:"batch_id"`
	TenantID   string    `json:"tenant_id"`
	Root       string    `json:"root"`
	LeafHashes []string  `json:"leaf_hashes"`
	LeafCount  int       `json:"leaf_count"`
	AnchoredAt time.Time `json:"anchored_at"`
	Location   string    `json:"location,omitempty"`
}

// Store persists anchors.
type Store interface {
	SaveAnchor(ctx context.Context, a Anchor) error
	GetAnchor(ctx context.Context, batchID string) (Anchor, bool, error)
}

// Publisher pushes an anchor to an external location (object storage, a
// chain gateway) and returns where it landed.
type Publisher interface {
	Publish(ctx context.Context, a Anchor) (location string, err error)
}

// NopPublisher keeps anchors local only.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(ctx context.Context, a Anchor) (string, error) {
	return "", nil
}

// VerifyMember checks a member object against a stored anchor's root.
func VerifyMember(a Anchor, member any, proof []merkle.ProofNode) (bool, error) {
	leaf, err := merkle.HashLeaf(member)
	if err != nil {
		return false, err
	}
	return merkle.VerifyProof(leaf, proof, a.Root), nil
}
