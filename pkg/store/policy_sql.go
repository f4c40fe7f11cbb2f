package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atlasops/integrity-core/pkg/fbac"
)

const policySchema = `
CREATE TABLE IF NOT EXISTS field_policies (
	tenant_id TEXT NOT NULL,
	table_name TEXT NOT NULL,
	field_name TEXT NOT NULL,
	access_type TEXT NOT NULL,
	allowed BOOLEAN NOT NULL DEFAULT FALSE,
	mask_type TEXT NOT NULL DEFAULT '',
	guard_expr TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, table_name, field_name, access_type)
);
`

// SQLPolicyStore implements fbac.PolicyStore over database/sql.
type SQLPolicyStore struct {
	db *sql.DB
}

// NewSQLPolicyStore wraps an open database handle.
func NewSQLPolicyStore(db *sql.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

// Init creates the policy table if missing.
func (s *SQLPolicyStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, policySchema); err != nil {
		return fmt.Errorf("store: init policy schema: %w", err)
	}
	return nil
}

// Upsert installs or replaces one policy row.
func (s *SQLPolicyStore) Upsert(ctx context.Context, p fbac.Policy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO field_policies (tenant_id, table_name, field_name, access_type, allowed, mask_type, guard_expr)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, table_name, field_name, access_type)
		 DO UPDATE SET allowed = EXCLUDED.allowed, mask_type = EXCLUDED.mask_type, guard_expr = EXCLUDED.guard_expr`,
		p.TenantID, p.Table, p.Field, string(p.Access), p.Allowed, string(p.Mask), p.Guard,
	)
	if err != nil {
		return fmt.Errorf("store: upsert policy: %w", err)
	}
	return nil
}

// Lookup implements fbac.PolicyStore. A missing row is (zero, false, nil),
// not an error: the engine fails closed on absence, and only genuine store
// failures surface as errors.
func (s *SQLPolicyStore) Lookup(ctx context.Context, tenantID, table, field string, access fbac.AccessType) (fbac.Policy, bool, error) {
	p := fbac.Policy{TenantID: tenantID, Table: table, Field: field, Access: access}

	var mask string
	err := s.db.QueryRowContext(ctx,
		`SELECT allowed, mask_type, guard_expr FROM field_policies
		 WHERE tenant_id = $1 AND table_name = $2 AND field_name = $3 AND access_type = $4`,
		tenantID, table, field, string(access),
	).Scan(&p.Allowed, &mask, &p.Guard)
	if errors.Is(err, sql.ErrNoRows) {
		return fbac.Policy{}, false, nil
	}
	if err != nil {
		return fbac.Policy{}, false, fmt.Errorf("store: lookup policy: %w", err)
	}

	p.Mask = fbac.MaskType(mask)
	return p, true, nil
}
