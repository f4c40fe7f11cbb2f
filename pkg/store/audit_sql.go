// Package store provides the database/sql persistence collaborators for the
// integrity core: audit entries, field policies and batch anchors. It works
// against Postgres and SQLite via standard drivers; no query strays beyond
// insert-one, latest-by-scope and all-by-scope.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/atlasops/integrity-core/pkg/auditchain"
)

// ErrStaleParent is returned when an entry's PrevHash no longer matches the
// stored head at insert time. It means two appends raced past the scope
// lock; the caller must re-read the head and retry, never reuse the stale
// value.
var ErrStaleParent = errors.New("store: chain head moved since prev hash was read")

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL DEFAULT '',
	actor_user_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	entity TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	diff TEXT NOT NULL DEFAULT '',
	prev_hash TEXT NOT NULL DEFAULT '',
	hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_scope_time ON audit_entries (tenant_id, created_at);
`

// SQLAuditStore implements auditchain.Store over database/sql.
type SQLAuditStore struct {
	db *sql.DB
}

// NewSQLAuditStore wraps an open database handle.
func NewSQLAuditStore(db *sql.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

// Init creates the audit table if missing.
func (s *SQLAuditStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, auditSchema); err != nil {
		return fmt.Errorf("store: init audit schema: %w", err)
	}
	return nil
}

// Insert persists one entry. The head re-check and the insert run inside a
// single transaction, so even if two appends slip past the scope lock (for
// example across processes without the distributed lock) a fork cannot
// commit: the loser sees ErrStaleParent.
func (s *SQLAuditStore) Insert(ctx context.Context, e auditchain.Entry) (auditchain.Entry, error) {
	diffJSON := ""
	if e.Diff != nil {
		b, err := json.Marshal(e.Diff)
		if err != nil {
			return auditchain.Entry{}, fmt.Errorf("store: encode diff: %w", err)
		}
		diffJSON = string(b)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auditchain.Entry{}, fmt.Errorf("store: begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var head string
	err = tx.QueryRowContext(ctx,
		`SELECT hash FROM audit_entries WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		e.TenantID,
	).Scan(&head)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		head = ""
	case err != nil:
		return auditchain.Entry{}, fmt.Errorf("store: read chain head: %w", err)
	}
	if head != e.PrevHash {
		return auditchain.Entry{}, ErrStaleParent
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_entries (id, tenant_id, actor_user_id, action, entity, entity_id, diff, prev_hash, hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TenantID, e.ActorUserID, e.Action, e.Entity, e.EntityID, diffJSON, e.PrevHash, e.Hash, e.CreatedAt,
	)
	if err != nil {
		return auditchain.Entry{}, fmt.Errorf("store: insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return auditchain.Entry{}, fmt.Errorf("store: commit insert: %w", err)
	}
	return e, nil
}

const entryColumns = `id, tenant_id, actor_user_id, action, entity, entity_id, diff, prev_hash, hash, created_at`

// Latest returns the newest entry for a scope, if any.
func (s *SQLAuditStore) Latest(ctx context.Context, scope string) (auditchain.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		scope,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auditchain.Entry{}, false, nil
	}
	if err != nil {
		return auditchain.Entry{}, false, fmt.Errorf("store: query latest: %w", err)
	}
	return e, true, nil
}

// ListByScope returns all entries for a scope in creation order.
func (s *SQLAuditStore) ListByScope(ctx context.Context, scope string) ([]auditchain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE tenant_id = $1 ORDER BY created_at ASC, id ASC`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query scope: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]auditchain.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (auditchain.Entry, error) {
	var e auditchain.Entry
	var diffJSON string
	if err := r.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.Action, &e.Entity, &e.EntityID,
		&diffJSON, &e.PrevHash, &e.Hash, &e.CreatedAt); err != nil {
		return auditchain.Entry{}, err
	}
	if diffJSON != "" {
		// UseNumber keeps large integers exact so hash recomputation over
		// loaded entries matches the hashes computed at append time.
		dec := json.NewDecoder(strings.NewReader(diffJSON))
		dec.UseNumber()
		if err := dec.Decode(&e.Diff); err != nil {
			return auditchain.Entry{}, fmt.Errorf("decode diff: %w", err)
		}
	}
	return e, nil
}
