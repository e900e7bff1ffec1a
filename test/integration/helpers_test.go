package integration

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/quarrydb/quarry/internal/config"
	"github.com/quarrydb/quarry/internal/observability"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/fdw"
	"github.com/quarrydb/quarry/pkg/types"
)

// recordingNotifier captures advisories for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	scans     []int
	completed []observability.RequestSummary
	replays   []string
}

func (n *recordingNotifier) ScanSelected(table string, segments int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scans = append(n.scans, segments)
}

func (n *recordingNotifier) RequestCompleted(table string, s observability.RequestSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, s)
}

func (n *recordingNotifier) WriteReplayFailed(txn string, failed, total int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replays = append(n.replays, fmt.Sprintf("%s:%d/%d", txn, failed, total))
}

func (n *recordingNotifier) scanCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.scans)
}

func (n *recordingNotifier) summaries() []observability.RequestSummary {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]observability.RequestSummary(nil), n.completed...)
}

func (n *recordingNotifier) replayReports() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.replays...)
}

// env is one engine wired to an in-memory store.
type env struct {
	store    *remote.MemoryStore
	engine   *fdw.Engine
	notifier *recordingNotifier
	cfg      *config.Config
}

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Resolve()
	return cfg
}

func orderItem(customer, order, date, status string) types.Item {
	return types.Item{
		"customer_id": types.String(customer),
		"order_id":    types.String(order),
		"order_date":  types.Number(date),
		"status":      types.String(status),
	}
}

// ordersStore builds the shared fixture: one range table with a fully
// projected local index on order_date and six rows over three
// customers.
func ordersStore(t *testing.T) *remote.MemoryStore {
	t.Helper()
	store := remote.NewMemoryStore()
	err := store.CreateTable(remote.TableDescription{
		Schema: types.KeySchema{
			TableName:     "orders",
			PartitionAttr: "customer_id",
			SortAttr:      "order_id",
			Indexes: []types.IndexDef{
				{Name: "by_date", Kind: types.IndexLocal, SortAttr: "order_date", FullProjection: true},
			},
		},
		AttributeKinds: map[string]types.Kind{
			"customer_id": types.KindString,
			"order_id":    types.KindString,
			"order_date":  types.KindNumber,
		},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	err = store.Seed("orders",
		orderItem("c1", "o1", "20260101", "shipped"),
		orderItem("c1", "o2", "20260105", "pending"),
		orderItem("c1", "o3", "20260110", "shipped"),
		orderItem("c2", "o4", "20260102", "shipped"),
		orderItem("c2", "o5", "20260108", "cancelled"),
		orderItem("c3", "o6", "20260103", "pending"),
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvAt(t, t.TempDir(), ordersStore(t))
}

func newEnvAt(t *testing.T, dataDir string, store *remote.MemoryStore) *env {
	t.Helper()
	return newEnvWithConfig(t, testConfig(t, dataDir), store)
}

func newEnvWithConfig(t *testing.T, cfg *config.Config, store *remote.MemoryStore) *env {
	t.Helper()
	n := &recordingNotifier{}
	engine, err := fdw.New(cfg, store, n)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return &env{store: store, engine: engine, notifier: n, cfg: cfg}
}

func (e *env) open(t *testing.T, name string) *fdw.Table {
	t.Helper()
	tbl, err := e.engine.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return tbl
}

func drain(t *testing.T, rows *fdw.Rows) []fdw.Row {
	t.Helper()
	defer rows.Close()
	var out []fdw.Row
	for {
		row, err := rows.Next(context.Background())
		if stderrors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, row)
	}
}
