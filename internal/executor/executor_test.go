package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/planner"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

func testSchema() types.KeySchema {
	return types.KeySchema{
		TableName:     "orders",
		PartitionAttr: "customer_id",
		SortAttr:      "order_id",
	}
}

func newStore(t *testing.T) *remote.MemoryStore {
	t.Helper()
	store := remote.NewMemoryStore()
	if err := store.CreateTable(remote.TableDescription{Schema: testSchema()}); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	return store
}

func seedOrders(t *testing.T, store *remote.MemoryStore, customer string, n int) {
	t.Helper()
	items := make([]types.Item, n)
	for i := 0; i < n; i++ {
		items[i] = types.Item{
			"customer_id": types.String(customer),
			"order_id":    types.String(fmt.Sprintf("o%02d", i)),
			"total":       types.NumberFromInt(int64(i)),
		}
	}
	if err := store.Seed("orders", items...); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
}

func planFor(t *testing.T, segments int, preds ...types.Predicate) *planner.Plan {
	t.Helper()
	p, err := planner.NewPlanner(testSchema(), segments, true)
	if err != nil {
		t.Fatalf("NewPlanner failed: %v", err)
	}
	plan, err := p.Plan(preds)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return plan
}

func testOptions() Options {
	return Options{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
	}
}

func drain(t *testing.T, rows *Rows) []types.Item {
	t.Helper()
	var items []types.Item
	for {
		item, err := rows.Next(context.Background())
		if err == io.EOF {
			return items
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		items = append(items, item)
	}
}

func TestQuerySinglePartition(t *testing.T) {
	store := newStore(t)
	seedOrders(t, store, "c1", 5)
	seedOrders(t, store, "c2", 3)

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 4,
		types.Eq("customer_id", types.String("c1"))))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	items := drain(t, rows)
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("o%02d", i)
		if got := item["order_id"].Text(); got != want {
			t.Errorf("item %d: expected sort order %s, got %s", i, want, got)
		}
	}
}

func TestQueryFanOutOrder(t *testing.T) {
	store := newStore(t)
	seedOrders(t, store, "c1", 2)
	seedOrders(t, store, "c2", 2)

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 4,
		types.In("customer_id", types.String("c2"), types.String("c1"))))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	items := drain(t, rows)
	var got []string
	for _, item := range items {
		got = append(got, item["customer_id"].Text()+"/"+item["order_id"].Text())
	}
	want := []string{"c2/o00", "c2/o01", "c1/o00", "c1/o01"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fan-out order: expected %v, got %v", want, got)
		}
	}

	if stats := rows.Stats(); stats.Queries != 2 {
		t.Errorf("expected 2 queries, got %d", stats.Queries)
	}
}

func TestQueryPagination(t *testing.T) {
	store := newStore(t)
	store.SetPageSize(2)
	seedOrders(t, store, "c1", 5)

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 4,
		types.Eq("customer_id", types.String("c1"))))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	items := drain(t, rows)
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}

	stats := rows.Stats()
	if stats.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", stats.Pages)
	}
	if stats.Items != 5 {
		t.Errorf("expected 5 items counted, got %d", stats.Items)
	}
	if calls := store.CallCount("Query"); calls != 3 {
		t.Errorf("expected 3 remote calls, got %d", calls)
	}
}

func TestScanDeliversAllSegments(t *testing.T) {
	store := newStore(t)
	for c := 0; c < 8; c++ {
		seedOrders(t, store, fmt.Sprintf("c%d", c), 3)
	}

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	items := drain(t, rows)
	if len(items) != 24 {
		t.Fatalf("expected 24 items, got %d", len(items))
	}

	seen := make(map[string]struct{})
	for _, item := range items {
		seen[item["customer_id"].Text()+"/"+item["order_id"].Text()] = struct{}{}
	}
	if len(seen) != 24 {
		t.Errorf("expected 24 distinct items, got %d", len(seen))
	}
}

func TestScanThrottleRetried(t *testing.T) {
	store := newStore(t)
	seedOrders(t, store, "c1", 4)
	store.FailNext("Scan", 2, remote.ErrThrottled)

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 2))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	items := drain(t, rows)
	if len(items) != 4 {
		t.Fatalf("expected 4 items after retries, got %d", len(items))
	}
	if stats := rows.Stats(); stats.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", stats.Retries)
	}
}

func TestScanRetryCeilingFailsStream(t *testing.T) {
	store := newStore(t)
	seedOrders(t, store, "c1", 4)
	store.FailNext("Scan", 1000, remote.ErrThrottled)

	exec := New(store, Options{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})
	rows, err := exec.Run(context.Background(), planFor(t, 2))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	_, err = rows.Next(context.Background())
	if err == nil || err == io.EOF {
		t.Fatalf("expected a terminal error, got %v", err)
	}
	if errors.GetCode(err) != errors.CodeRemoteUnavailable {
		t.Errorf("expected REMOTE_UNAVAILABLE, got %v", err)
	}
	if errors.IsRetryable(err) {
		t.Error("terminal unavailability must not be retryable")
	}
}

func TestQueryNonThrottleErrorNotRetried(t *testing.T) {
	store := newStore(t)
	seedOrders(t, store, "c1", 2)
	boom := stderrors.New("boom")
	store.FailNext("Query", 1, boom)

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 4,
		types.Eq("customer_id", types.String("c1"))))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	_, err = rows.Next(context.Background())
	if err == nil || !stderrors.Is(err, boom) {
		t.Fatalf("expected the fetch error to propagate, got %v", err)
	}
	if calls := store.CallCount("Query"); calls != 1 {
		t.Errorf("expected no retry for a non-throttle error, got %d calls", calls)
	}
}

func TestCloseStopsWorkersEarly(t *testing.T) {
	store := newStore(t)
	store.SetPageSize(1)
	for c := 0; c < 6; c++ {
		seedOrders(t, store, fmt.Sprintf("c%d", c), 10)
	}

	var reported []Stats
	opts := testOptions()
	opts.QueueDepth = 1
	opts.OnComplete = func(s Stats) { reported = append(reported, s) }

	exec := New(store, opts)
	rows, err := exec.Run(context.Background(), planFor(t, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := rows.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(reported) != 1 {
		t.Fatalf("expected exactly one completion report, got %d", len(reported))
	}
	if reported[0].Pages == 0 {
		t.Error("expected at least one page in the completion report")
	}

	// Workers are gone; the store sees no further calls.
	calls := store.CallCount("Scan")
	time.Sleep(20 * time.Millisecond)
	if again := store.CallCount("Scan"); again != calls {
		t.Errorf("scan calls continued after Close: %d then %d", calls, again)
	}
}

func TestCompletionReportedOnceOnEOF(t *testing.T) {
	store := newStore(t)
	seedOrders(t, store, "c1", 2)

	count := 0
	opts := testOptions()
	opts.OnComplete = func(Stats) { count++ }

	exec := New(store, opts)
	rows, err := exec.Run(context.Background(), planFor(t, 4,
		types.Eq("customer_id", types.String("c1"))))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	drain(t, rows)
	if err := rows.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one completion report, got %d", count)
	}
}

func TestScanEmptyTable(t *testing.T) {
	store := newStore(t)

	exec := New(store, testOptions())
	rows, err := exec.Run(context.Background(), planFor(t, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	defer rows.Close()

	if items := drain(t, rows); len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if stats := rows.Stats(); stats.Items != 0 {
		t.Errorf("expected zero items counted, got %d", stats.Items)
	}
}
