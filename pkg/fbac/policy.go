package fbac

import (
	"context"
	"strings"
	"sync"
)

// AccessType is the kind of field access being resolved.
type AccessType string

const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
)

// Policy is one resolved field-access rule.
type Policy struct {
	TenantID string
	Table    string
	Field    string
	Access   AccessType
	Allowed  bool
	Mask     MaskType
	// Guard is an optional CEL expression over {tenant, actor, roles, table,
	// field, access}. An empty guard is unconditional; a guard that fails to
	// compile or evaluate denies.
	Guard string
}

// PolicyStore resolves policies by point lookup. Absence of a row is a
// valid, meaningful state (the engine fails closed on it), distinct from a
// lookup error.
type PolicyStore interface {
	Lookup(ctx context.Context, tenantID, table, field string, access AccessType) (Policy, bool, error)
}

// StaticStore is an in-memory PolicyStore, used for tests and for policies
// installed from bundles.
type StaticStore struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewStaticStore creates an empty StaticStore.
func NewStaticStore() *StaticStore {
	return &StaticStore{policies: make(map[string]Policy)}
}

// Put installs or replaces a policy.
func (s *StaticStore) Put(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policyKey(p.TenantID, p.Table, p.Field, p.Access)] = p
}

// Lookup implements PolicyStore.
func (s *StaticStore) Lookup(ctx context.Context, tenantID, table, field string, access AccessType) (Policy, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[policyKey(tenantID, table, field, access)]
	return p, ok, nil
}

func policyKey(tenantID, table, field string, access AccessType) string {
	return strings.Join([]string{tenantID, table, field, string(access)}, "\x00")
}
