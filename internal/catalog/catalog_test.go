package catalog

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

func newTestCache(t *testing.T, ttl time.Duration) *SQLiteCache {
	t.Helper()
	cache, err := NewCache(filepath.Join(t.TempDir(), "catalog.db"), ttl)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func sampleDescription(table string) remote.TableDescription {
	return remote.TableDescription{
		Schema: types.KeySchema{
			TableName:     table,
			PartitionAttr: "customer_id",
			SortAttr:      "order_id",
			Indexes: []types.IndexDef{
				{Name: "by_status", Kind: types.IndexLocal, SortAttr: "status", FullProjection: true},
				{Name: "by_region", Kind: types.IndexGlobal, PartitionAttr: "region", SortAttr: "order_id", FullProjection: false},
			},
		},
		AttributeKinds: map[string]types.Kind{
			"customer_id": types.KindString,
			"order_id":    types.KindString,
			"status":      types.KindString,
			"region":      types.KindString,
			"total":       types.KindNumber,
		},
		ItemCount: 42,
	}
}

func TestCache_StoreAndLookup(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	want := sampleDescription("orders")
	if err := cache.Store(ctx, "orders", want); err != nil {
		t.Fatalf("failed to store description: %v", err)
	}

	got, found, err := cache.Lookup(ctx, "orders")
	if err != nil {
		t.Fatalf("failed to look up description: %v", err)
	}
	if !found {
		t.Fatal("expected a cache hit")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("description mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestCache_LookupMissingTable(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)

	_, found, err := cache.Lookup(context.Background(), "no_such_table")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Error("expected a miss for an unknown table")
	}
}

func TestCache_ExpiredEntryIsAMiss(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	if err := cache.Store(ctx, "orders", sampleDescription("orders")); err != nil {
		t.Fatalf("failed to store description: %v", err)
	}

	current = current.Add(10 * time.Minute)

	_, found, err := cache.Lookup(ctx, "orders")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Error("expected an expired entry to read as a miss")
	}
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	cache := newTestCache(t, 0)
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	if err := cache.Store(ctx, "orders", sampleDescription("orders")); err != nil {
		t.Fatalf("failed to store description: %v", err)
	}

	current = current.AddDate(2, 0, 0)

	_, found, err := cache.Lookup(ctx, "orders")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !found {
		t.Error("expected the entry to outlive any clock with expiry disabled")
	}
}

func TestCache_StoreReplacesExisting(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	first := sampleDescription("orders")
	first.ItemCount = 1
	if err := cache.Store(ctx, "orders", first); err != nil {
		t.Fatalf("failed to store first description: %v", err)
	}

	second := sampleDescription("orders")
	second.ItemCount = 2
	if err := cache.Store(ctx, "orders", second); err != nil {
		t.Fatalf("failed to store second description: %v", err)
	}

	got, found, err := cache.Lookup(ctx, "orders")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !found {
		t.Fatal("expected a cache hit")
	}
	if got.ItemCount != 2 {
		t.Errorf("item count mismatch: got %d, want 2", got.ItemCount)
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	if err := cache.Store(ctx, "orders", sampleDescription("orders")); err != nil {
		t.Fatalf("failed to store description: %v", err)
	}
	if err := cache.Invalidate(ctx, "orders"); err != nil {
		t.Fatalf("failed to invalidate: %v", err)
	}

	_, found, err := cache.Lookup(ctx, "orders")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found {
		t.Error("expected a miss after invalidation")
	}

	if err := cache.Invalidate(ctx, "never_cached"); err != nil {
		t.Errorf("invalidating an unknown table should not fail: %v", err)
	}
}

func TestCache_PruneRemovesOnlyExpired(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	if err := cache.Store(ctx, "orders", sampleDescription("orders")); err != nil {
		t.Fatalf("failed to store orders: %v", err)
	}
	current = current.Add(4 * time.Minute)
	if err := cache.Store(ctx, "customers", sampleDescription("customers")); err != nil {
		t.Fatalf("failed to store customers: %v", err)
	}
	current = current.Add(2 * time.Minute)

	pruned, err := cache.Prune(ctx)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned count mismatch: got %d, want 1", pruned)
	}

	if _, found, _ := cache.Lookup(ctx, "orders"); found {
		t.Error("expected orders to be pruned")
	}
	if _, found, _ := cache.Lookup(ctx, "customers"); !found {
		t.Error("expected customers to survive the prune")
	}
}

func TestCache_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	cache, err := NewCache(path, 5*time.Minute)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	if err := cache.Store(ctx, "orders", sampleDescription("orders")); err != nil {
		t.Fatalf("failed to store description: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("failed to close cache: %v", err)
	}

	reopened, err := NewCache(path, 5*time.Minute)
	if err != nil {
		t.Fatalf("failed to reopen cache: %v", err)
	}
	defer reopened.Close()

	got, found, err := reopened.Lookup(ctx, "orders")
	if err != nil {
		t.Fatalf("lookup after reopen failed: %v", err)
	}
	if !found {
		t.Fatal("expected the entry to survive a reopen")
	}
	if got.Schema.PartitionAttr != "customer_id" {
		t.Errorf("partition attr mismatch: got %s, want customer_id", got.Schema.PartitionAttr)
	}
}

func TestCache_ConcurrentLookups(t *testing.T) {
	cache := newTestCache(t, 5*time.Minute)
	ctx := context.Background()

	if err := cache.Store(ctx, "orders", sampleDescription("orders")); err != nil {
		t.Fatalf("failed to store description: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, found, err := cache.Lookup(ctx, "orders"); err != nil || !found {
					t.Errorf("concurrent lookup failed: found=%v err=%v", found, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		if err := cache.Store(ctx, "customers", sampleDescription("customers")); err != nil {
			t.Errorf("concurrent store failed: %v", err)
		}
	}
	wg.Wait()
}
