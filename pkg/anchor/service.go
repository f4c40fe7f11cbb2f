package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlasops/integrity-core/pkg/auditchain"
	"github.com/atlasops/integrity-core/pkg/merkle"
	"github.com/atlasops/integrity-core/pkg/observability"
)

// ErrEmptyBatch is returned for a batch with no members; an empty batch has
// no commitment to anchor.
var ErrEmptyBatch = errors.New("anchor: batch has no members")

// ErrUnknownBatch is returned when no anchor exists for a batch ID.
var ErrUnknownBatch = errors.New("anchor: unknown batch")

// Service anchors batches and answers proof requests. Anchoring is a
// compliance-relevant action: the audit append on this path is critical and
// its failure fails the whole anchoring.
type Service struct {
	store     Store
	publisher Publisher
	audit     *auditchain.Appender
	clock     func() time.Time
	tracer    trace.Tracer
}

// NewService creates a Service. publisher may be nil to keep anchors local;
// audit may be nil when no audit trail is wired (tests).
func NewService(store Store, publisher Publisher, audit *auditchain.Appender) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		audit:     audit,
		clock:     time.Now,
		tracer:    otel.Tracer("integrity-core/anchor"),
	}
}

// WithClock overrides the clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// AnchorBatch hashes every member, reduces the leaves to a root, persists
// the anchor, publishes it and records a critical audit entry.
func (s *Service) AnchorBatch(ctx context.Context, batch Batch) (Anchor, error) {
	ctx, span := s.tracer.Start(ctx, "anchor.batch",
		trace.WithAttributes(observability.AnchorAttrs(batch.TenantID, batch.ID, len(batch.Members))...))
	defer span.End()

	if len(batch.Members) == 0 {
		return Anchor{}, ErrEmptyBatch
	}

	leaves := make([]string, len(batch.Members))
	for i, m := range batch.Members {
		h, err := merkle.HashLeaf(m)
		if err != nil {
			return Anchor{}, fmt.Errorf("anchor: hash member %d: %w", i, err)
		}
		leaves[i] = h
	}

	a := Anchor{
		BatchID:    batch.ID,
		TenantID:   batch.TenantID,
		Root:       merkle.Root(leaves),
		LeafHashes: leaves,
		LeafCount:  len(leaves),
		AnchoredAt: s.clock().UTC(),
	}

	location, err := s.publisher.Publish(ctx, a)
	if err != nil {
		span.RecordError(err)
		return Anchor{}, fmt.Errorf("anchor: publish batch %s: %w", batch.ID, err)
	}
	a.Location = location

	if err := s.store.SaveAnchor(ctx, a); err != nil {
		span.RecordError(err)
		return Anchor{}, fmt.Errorf("anchor: persist batch %s: %w", batch.ID, err)
	}

	if s.audit != nil {
		_, err := s.audit.Append(ctx, batch.TenantID, auditchain.Record{
			Action:   "finance:settlement:anchor",
			Entity:   "settlement_batch",
			EntityID: batch.ID,
			Diff: map[string]any{
				"root":       a.Root,
				"leaf_count": a.LeafCount,
				"location":   a.Location,
			},
		})
		if err != nil {
			return Anchor{}, fmt.Errorf("anchor: audit batch %s: %w", batch.ID, err)
		}
	}

	return a, nil
}

// Proof builds the inclusion proof for the member at index in a previously
// anchored batch.
func (s *Service) Proof(ctx context.Context, batchID string, index int) ([]merkle.ProofNode, error) {
	a, ok, err := s.store.GetAnchor(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("anchor: load batch %s: %w", batchID, err)
	}
	if !ok {
		return nil, ErrUnknownBatch
	}
	return merkle.BuildProof(a.LeafHashes, index), nil
}

// VerifyMember checks a member object against the stored anchor for a batch.
func (s *Service) VerifyMember(ctx context.Context, batchID string, member any, proof []merkle.ProofNode) (bool, error) {
	a, ok, err := s.store.GetAnchor(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("anchor: load batch %s: %w", batchID, err)
	}
	if !ok {
		return false, ErrUnknownBatch
	}
	return VerifyMember(a, member, proof)
}
