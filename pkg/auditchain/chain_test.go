package auditchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/atlasops/integrity-core/pkg/auth"
	"github.com/atlasops/integrity-core/pkg/lock"
)

// memStore is a mutable in-memory Store; tests reach into byScope to tamper
// with persisted entries.
type memStore struct {
	mu         sync.Mutex
	byScope    map[string][]Entry
	failInsert error
	failLatest error
}

func newMemStore() *memStore {
	return &memStore{byScope: make(map[string][]Entry)}
}

func (m *memStore) Insert(ctx context.Context, e Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return Entry{}, m.failInsert
	}
	m.byScope[e.TenantID] = append(m.byScope[e.TenantID], e)
	return e, nil
}

func (m *memStore) Latest(ctx context.Context, scope string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLatest != nil {
		return Entry{}, false, m.failLatest
	}
	entries := m.byScope[scope]
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[len(entries)-1], true, nil
}

func (m *memStore) ListByScope(ctx context.Context, scope string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byScope[scope], nil
}

func newTestAppender(store Store) *Appender {
	return NewAppender(store, lock.NewKeyedMutex())
}

func TestAppend_BuildsVerifiableChain(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := app.Append(ctx, "tenant-a", Record{
			Action:   "settings:account:update",
			Entity:   "account",
			EntityID: fmt.Sprintf("acc-%d", i),
			Diff:     map[string]any{"field": "plan", "old": i, "new": i + 1},
			Actor:    "u-1",
		})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	report, err := NewVerifier(store).VerifyChain(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !report.Valid {
		t.Errorf("Expected valid chain, broken at %d", report.BrokenIndex)
	}
	if report.Length != 5 {
		t.Errorf("Expected length 5, got %d", report.Length)
	}

	// First entry has no predecessor; every later entry links to the one
	// before it.
	entries := store.byScope["tenant-a"]
	if entries[0].PrevHash != "" {
		t.Errorf("First entry PrevHash = %q, want empty", entries[0].PrevHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevHash != entries[i-1].Hash {
			t.Errorf("Entry %d PrevHash does not link to entry %d", i, i-1)
		}
	}
}

func TestVerify_TamperedDiff(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := app.Append(ctx, "tenant-a", Record{
			Action: "crm:lead:update",
			Diff:   map[string]any{"score": i},
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	store.byScope["tenant-a"][2].Diff["score"] = 999

	report, err := NewVerifier(store).VerifyChain(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.Valid {
		t.Fatal("Expected tampered chain to fail verification")
	}
	if report.BrokenIndex != 2 {
		t.Errorf("Expected break at 2, got %d", report.BrokenIndex)
	}
	if report.BrokenID != store.byScope["tenant-a"][2].ID {
		t.Errorf("BrokenID mismatch")
	}
}

func TestVerify_TamperedHash(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := app.Append(ctx, "tenant-a", Record{Action: "hr:employee:view"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	// Flip one hex digit of the middle entry's stored hash.
	h := store.byScope["tenant-a"][1].Hash
	flipped := "0"
	if h[0] == '0' {
		flipped = "1"
	}
	store.byScope["tenant-a"][1].Hash = flipped + h[1:]

	report, err := NewVerifier(store).VerifyChain(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.Valid {
		t.Fatal("Expected tampered chain to fail verification")
	}
	if report.BrokenIndex != 1 {
		t.Errorf("Expected break at 1, got %d", report.BrokenIndex)
	}
}

func TestVerify_EmptyChain(t *testing.T) {
	store := newMemStore()
	report, err := NewVerifier(store).VerifyChain(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !report.Valid {
		t.Error("Empty chain must be valid")
	}
	if report.BrokenIndex != -1 {
		t.Errorf("Expected BrokenIndex -1, got %d", report.BrokenIndex)
	}
}

func TestChainIsolation(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store)
	ctx := context.Background()

	// Interleave appends across scopes.
	for i := 0; i < 3; i++ {
		if _, err := app.Append(ctx, "tenant-a", Record{Action: "a"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if _, err := app.Append(ctx, "tenant-b", Record{Action: "b"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	for _, scope := range []string{"tenant-a", "tenant-b"} {
		report, err := NewVerifier(store).VerifyChain(ctx, scope)
		if err != nil {
			t.Fatalf("VerifyChain(%s) failed: %v", scope, err)
		}
		if !report.Valid {
			t.Errorf("Scope %s chain invalid", scope)
		}
		if store.byScope[scope][0].PrevHash != "" {
			t.Errorf("Scope %s first entry links outside its scope", scope)
		}
	}
}

func TestAppend_ActorFromPrincipal(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store)

	ctx := auth.WithPrincipal(context.Background(), auth.Principal{
		TenantID: "tenant-a",
		ActorID:  "u-77",
	})

	e, err := app.Append(ctx, "tenant-a", Record{Action: "ats:candidate:reject"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.ActorUserID != "u-77" {
		t.Errorf("ActorUserID = %q, want u-77", e.ActorUserID)
	}

	// An explicit actor wins over the principal.
	e, err = app.Append(ctx, "tenant-a", Record{Action: "ats:candidate:reject", Actor: "svc-batch"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.ActorUserID != "svc-batch" {
		t.Errorf("ActorUserID = %q, want svc-batch", e.ActorUserID)
	}
}

func TestAppend_StoreFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.failInsert = errors.New("connection reset")
	app := newTestAppender(store)

	if _, err := app.Append(context.Background(), "tenant-a", Record{Action: "x"}); err == nil {
		t.Fatal("Expected insert failure to propagate")
	}

	store.failInsert = nil
	store.failLatest = errors.New("connection reset")
	if _, err := app.Append(context.Background(), "tenant-a", Record{Action: "x"}); err == nil {
		t.Fatal("Expected latest-read failure to propagate")
	}
}

func TestAppendBestEffort_SwallowsFailure(t *testing.T) {
	store := newMemStore()
	store.failInsert = errors.New("connection reset")
	app := newTestAppender(store)

	// Must not panic and must not leave a partial entry behind.
	app.AppendBestEffort(context.Background(), "tenant-a", Record{Action: "page:view"})
	if len(store.byScope["tenant-a"]) != 0 {
		t.Error("Expected no entries after failed best-effort append")
	}
}

func TestAppendBestEffort_Limited(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store).WithBestEffortLimit(1, 1)

	for i := 0; i < 10; i++ {
		app.AppendBestEffort(context.Background(), "tenant-a", Record{Action: "page:view"})
	}

	// Burst of 1: exactly one entry makes it through immediately.
	if got := len(store.byScope["tenant-a"]); got != 1 {
		t.Errorf("Expected 1 entry after throttling, got %d", got)
	}
}

func TestConcurrentAppends_NoFork(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if _, err := app.Append(ctx, "tenant-a", Record{
					Action: "fin:invoice:update",
					Diff:   map[string]any{"worker": g, "step": i},
				}); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	report, err := NewVerifier(store).VerifyChain(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !report.Valid {
		t.Fatalf("Chain forked: broken at %d of %d", report.BrokenIndex, report.Length)
	}
	if report.Length != 40 {
		t.Errorf("Expected 40 entries, got %d", report.Length)
	}

	// No two entries may share a parent.
	seen := make(map[string]bool)
	for _, e := range store.byScope["tenant-a"] {
		if e.PrevHash != "" && seen[e.PrevHash] {
			t.Errorf("Two entries share PrevHash %s", e.PrevHash)
		}
		seen[e.PrevHash] = true
	}
}

func TestAppend_TimestampSurvivesMicrosecondStore(t *testing.T) {
	store := newMemStore()
	app := newTestAppender(store).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	})

	e, err := app.Append(context.Background(), "tenant-a", Record{Action: "fin:invoice:update"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if ns := e.CreatedAt.Nanosecond(); ns%1000 != 0 {
		t.Errorf("CreatedAt carries sub-microsecond precision: %d ns", ns)
	}

	// Timestamp columns hold microseconds; an entry reloaded through such a
	// column must still reproduce its stored hash.
	reloaded := e
	reloaded.CreatedAt = e.CreatedAt.Round(time.Microsecond)
	h, err := ComputeHash(reloaded)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if h != e.Hash {
		t.Error("Hash does not reverify after a microsecond-precision round trip")
	}

	report := VerifyEntries([]Entry{reloaded})
	if !report.Valid {
		t.Errorf("Reloaded entry failed verification at %d", report.BrokenIndex)
	}
}

func TestComputeHash_TimestampCovered(t *testing.T) {
	e := Entry{
		Action:    "vms:vendor:create",
		TenantID:  "tenant-a",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h1, err := ComputeHash(e)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}

	e.CreatedAt = e.CreatedAt.Add(time.Nanosecond)
	h2, err := ComputeHash(e)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	if h1 == h2 {
		t.Error("Timestamp change did not change the hash")
	}
}
