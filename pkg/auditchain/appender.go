package auditchain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/atlasops/integrity-core/pkg/auth"
	"github.com/atlasops/integrity-core/pkg/lock"
	"github.com/atlasops/integrity-core/pkg/observability"
)

// Appender writes hash-chained entries. Append is the critical path and
// propagates every failure; AppendBestEffort is for informational trails and
// logs-and-continues.
type Appender struct {
	store   Store
	locker  lock.ScopeLocker
	clock   func() time.Time
	logger  *slog.Logger
	limiter *rate.Limiter

	tracer   trace.Tracer
	appends  metric.Int64Counter
	failures metric.Int64Counter
}

// NewAppender creates an Appender over the given store, serializing appends
// per scope through the locker.
func NewAppender(store Store, locker lock.ScopeLocker) *Appender {
	meter := otel.Meter("integrity-core/auditchain")
	appends, _ := meter.Int64Counter("audit.appends.total",
		metric.WithDescription("Audit entries appended"),
		metric.WithUnit("{entry}"),
	)
	failures, _ := meter.Int64Counter("audit.append_failures.total",
		metric.WithDescription("Audit append failures"),
		metric.WithUnit("{error}"),
	)

	return &Appender{
		store:    store,
		locker:   locker,
		clock:    time.Now,
		logger:   slog.Default().With("component", "auditchain"),
		tracer:   otel.Tracer("integrity-core/auditchain"),
		appends:  appends,
		failures: failures,
	}
}

// WithClock overrides the clock for testing.
func (a *Appender) WithClock(clock func() time.Time) *Appender {
	a.clock = clock
	return a
}

// WithLogger overrides the logger.
func (a *Appender) WithLogger(logger *slog.Logger) *Appender {
	a.logger = logger
	return a
}

// WithBestEffortLimit throttles AppendBestEffort to n entries/sec with the
// given burst. Entries over the limit are dropped, never queued.
func (a *Appender) WithBestEffortLimit(n float64, burst int) *Appender {
	a.limiter = rate.NewLimiter(rate.Limit(n), burst)
	return a
}

// Append persists one chain entry for the scope and returns it. The scope
// lock is held across the read-latest + insert window so concurrent appends
// cannot fork the chain. Any failure is returned to the caller: a missing
// link would break the chain invariant for every subsequent entry, so this
// path never swallows errors.
func (a *Appender) Append(ctx context.Context, scope string, rec Record) (Entry, error) {
	ctx, span := a.tracer.Start(ctx, "auditchain.append",
		trace.WithAttributes(observability.ChainAppendAttrs(scope, rec.Action)...))
	defer span.End()

	release, err := a.locker.Acquire(ctx, scope)
	if err != nil {
		return Entry{}, fmt.Errorf("auditchain: acquire scope lock: %w", err)
	}
	defer release()

	prevHash := ""
	last, ok, err := a.store.Latest(ctx, scope)
	if err != nil {
		a.failures.Add(ctx, 1)
		span.RecordError(err)
		return Entry{}, fmt.Errorf("auditchain: read latest entry: %w", err)
	}
	if ok {
		prevHash = last.Hash
	}

	actor := rec.Actor
	if actor == "" {
		if p, ok := auth.FromContext(ctx); ok {
			actor = p.ActorID
		}
	}

	e := Entry{
		ID:          uuid.New().String(),
		TenantID:    scope,
		ActorUserID: actor,
		Action:      rec.Action,
		Entity:      rec.Entity,
		EntityID:    rec.EntityID,
		Diff:        rec.Diff,
		PrevHash:    prevHash,
		// Postgres timestamp columns hold microseconds. The hash covers the
		// timestamp, so it is computed at the precision the store round-trips.
		CreatedAt: a.clock().UTC().Truncate(time.Microsecond),
	}

	h, err := ComputeHash(e)
	if err != nil {
		return Entry{}, fmt.Errorf("auditchain: hash entry: %w", err)
	}
	e.Hash = h

	stored, err := a.store.Insert(ctx, e)
	if err != nil {
		a.failures.Add(ctx, 1)
		span.RecordError(err)
		return Entry{}, fmt.Errorf("auditchain: persist entry: %w", err)
	}

	a.appends.Add(ctx, 1, metric.WithAttributes(attribute.String("audit.scope", scope)))
	return stored, nil
}

// AppendBestEffort records an informational trail entry. Failures are logged
// and dropped; compliance-relevant actions must use Append instead.
func (a *Appender) AppendBestEffort(ctx context.Context, scope string, rec Record) {
	if a.limiter != nil && !a.limiter.Allow() {
		a.logger.DebugContext(ctx, "audit entry dropped by best-effort limiter",
			"scope", scope, "action", rec.Action)
		return
	}
	if _, err := a.Append(ctx, scope, rec); err != nil {
		a.logger.WarnContext(ctx, "best-effort audit append failed",
			"scope", scope, "action", rec.Action, "error", err)
	}
}
