package store

import (
	"context"
	"sync"

	"github.com/atlasops/integrity-core/pkg/auditchain"
)

// MemoryAuditStore is an in-memory auditchain.Store for tests and ephemeral
// deployments. Entries are kept per scope in insertion order.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	byScope map[string][]auditchain.Entry
}

// NewMemoryAuditStore creates an empty in-memory store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{byScope: make(map[string][]auditchain.Entry)}
}

// Insert implements auditchain.Store.
func (m *MemoryAuditStore) Insert(ctx context.Context, e auditchain.Entry) (auditchain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.byScope[e.TenantID]
	head := ""
	if len(entries) > 0 {
		head = entries[len(entries)-1].Hash
	}
	if head != e.PrevHash {
		return auditchain.Entry{}, ErrStaleParent
	}
	m.byScope[e.TenantID] = append(entries, e)
	return e, nil
}

// Latest implements auditchain.Store.
func (m *MemoryAuditStore) Latest(ctx context.Context, scope string) (auditchain.Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.byScope[scope]
	if len(entries) == 0 {
		return auditchain.Entry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

// ListByScope implements auditchain.Store.
func (m *MemoryAuditStore) ListByScope(ctx context.Context, scope string) ([]auditchain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.byScope[scope]
	out := make([]auditchain.Entry, len(entries))
	copy(out, entries)
	return out, nil
}
