package fbac

import (
	"context"
	"log/slog"

	"github.com/atlasops/integrity-core/pkg/auth"
)

// Engine resolves field access and masking for the context principal.
// Resolution is a pure function of the stored policies and the caller's
// principal; the engine keeps no per-request state.
type Engine struct {
	store  PolicyStore
	guards *guardEvaluator
	logger *slog.Logger
}

// NewEngine creates an Engine over the given policy store.
func NewEngine(store PolicyStore) (*Engine, error) {
	guards, err := newGuardEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:  store,
		guards: guards,
		logger: slog.Default().With("component", "fbac"),
	}, nil
}

// WithLogger overrides the logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// CanAccessField reports whether the context principal may access the field.
// No principal, no policy row, a lookup error, or a failing guard all deny.
func (e *Engine) CanAccessField(ctx context.Context, table, field string, access AccessType) bool {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return false
	}

	pol, found, err := e.store.Lookup(ctx, p.TenantID, table, field, access)
	if err != nil {
		// Masking is a safety control: lookup errors degrade to deny, they
		// do not propagate.
		e.logger.WarnContext(ctx, "policy lookup failed, denying",
			"tenant", p.TenantID, "table", table, "field", field, "error", err)
		return false
	}
	if !found || !pol.Allowed {
		return false
	}

	if pol.Guard != "" {
		allowed, err := e.guards.allow(pol.Guard, map[string]any{
			"tenant": p.TenantID,
			"actor":  p.ActorID,
			"roles":  p.Roles,
			"table":  table,
			"field":  field,
			"access": string(access),
		})
		if err != nil {
			e.logger.WarnContext(ctx, "guard evaluation failed, denying",
				"tenant", p.TenantID, "table", table, "field", field, "error", err)
			return false
		}
		return allowed
	}
	return true
}

// FieldMaskType resolves the mask configured for a field's read path. No
// principal or no policy means maximal masking.
func (e *Engine) FieldMaskType(ctx context.Context, table, field string) MaskType {
	p, ok := auth.FromContext(ctx)
	if !ok {
		return MaskFull
	}

	pol, found, err := e.store.Lookup(ctx, p.TenantID, table, field, AccessRead)
	if err != nil {
		e.logger.WarnContext(ctx, "mask lookup failed, masking fully",
			"tenant", p.TenantID, "table", table, "field", field, "error", err)
		return MaskFull
	}
	if !found {
		return MaskFull
	}
	return pol.Mask
}

// FilterFields returns the readable subset of record with masks applied.
// Unreadable fields are dropped entirely, not nulled: callers must treat a
// missing key as redacted, not as absent in the source.
func (e *Engine) FilterFields(ctx context.Context, table string, record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for field, value := range record {
		if !e.CanAccessField(ctx, table, field, AccessRead) {
			continue
		}
		if mt := e.FieldMaskType(ctx, table, field); mt != MaskNone {
			value = MaskValue(value, mt)
		}
		out[field] = value
	}
	return out
}
