// Package auditchain implements the per-tenant, tamper-evident audit log.
// Each entry's hash covers its canonical payload plus the previous entry's
// hash, so entries for one scope form a singly linked hash chain: recomputing
// any entry's hash must reproduce the stored value, and a mismatch marks the
// first tampered link.
package auditchain

import (
	"context"
	"time"

	"github.com/atlasops/integrity-core/pkg/canonical"
)

// Entry is one immutable link in a scope's audit chain. Entries are created
// exactly once via append and never mutated or deleted.
type Entry struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id,omitempty"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	Action      string         `json:"action"`
	Entity      string         `json:"entity,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	Diff        map[string]any `json:"diff,omitempty"`
	PrevHash    string         `json:"prev_hash"`
	Hash        string         `json:"hash"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Record holds the caller-supplied fields of an append. Actor is optional;
// when empty the context principal's actor ID is used.
type Record struct {
	Action   string
	Entity   string
	EntityID string
	Diff     map[string]any
	Actor    string
}

// Store is the persistence collaborator for audit entries. ListByScope must
// return entries ordered by creation time; Latest must return the newest
// entry for the scope.
type Store interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	Latest(ctx context.Context, scope string) (Entry, bool, error)
	ListByScope(ctx context.Context, scope string) ([]Entry, error)
}

// ComputeHash returns SHA-256(canonical(payload) || prevHash) for an entry.
// The payload covers action, entity, entityId, diff, actorUserId, tenantId
// and the append timestamp in RFC 3339 form.
func ComputeHash(e Entry) (string, error) {
	payload := map[string]any{
		"action":      e.Action,
		"entity":      e.Entity,
		"entityId":    e.EntityID,
		"diff":        e.Diff,
		"actorUserId": e.ActorUserID,
		"tenantId":    e.TenantID,
		"timestamp":   e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	c, err := canonical.MarshalString(payload)
	if err != nil {
		return "", err
	}
	return canonical.HashString(c + e.PrevHash), nil
}
