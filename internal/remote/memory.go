package remote

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/quarrydb/quarry/pkg/types"
)

// MemoryStore implements Store in memory. It is used by tests and
// development tooling; it paginates, segments scans, and injects
// faults the way the real remote does.
type MemoryStore struct {
	mu       sync.Mutex
	tables   map[string]*memTable
	pageSize int
	calls    map[string]int
	failures map[string]*failurePlan
}

type memTable struct {
	desc  TableDescription
	items []types.Item
}

type failurePlan struct {
	remaining int
	err       error
}

// NewMemoryStore creates an empty in-memory store. A zero page size
// returns every matching item in a single page.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   make(map[string]*memTable),
		calls:    make(map[string]int),
		failures: make(map[string]*failurePlan),
	}
}

// SetPageSize caps the number of items per returned page, forcing
// pagination in tests.
func (m *MemoryStore) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// CreateTable registers a table. Existing contents are replaced.
func (m *MemoryStore) CreateTable(desc TableDescription) error {
	if err := desc.Schema.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[desc.Schema.TableName] = &memTable{desc: desc}
	return nil
}

// Seed inserts items directly, without touching call counters or
// fault plans.
func (m *MemoryStore) Seed(table string, items ...types.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	for _, it := range items {
		if err := t.put(it.Clone()); err != nil {
			return err
		}
	}
	return nil
}

// Items returns a snapshot of the table's contents in insertion order.
func (m *MemoryStore) Items(table string) []types.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([]types.Item, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, it.Clone())
	}
	return out
}

// FailNext makes the next n calls of the named operation ("Query",
// "Scan", "PutItem", "DeleteItem", "DescribeTable") fail with err.
func (m *MemoryStore) FailNext(op string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &failurePlan{remaining: n, err: err}
}

// CallCount returns how many times the named operation has been
// invoked, including calls that failed.
func (m *MemoryStore) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryStore) enter(op string) error {
	m.calls[op]++
	if plan, ok := m.failures[op]; ok && plan.remaining > 0 {
		plan.remaining--
		return plan.err
	}
	return nil
}

// Query reads one page of a partition.
func (m *MemoryStore) Query(ctx context.Context, req QueryRequest) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Query"); err != nil {
		return Page{}, err
	}

	t, ok := m.tables[req.Table]
	if !ok {
		return Page{}, ErrTableNotFound
	}

	sortAttr := t.desc.Schema.SortAttr
	if req.Index != "" {
		ix, ok := t.desc.Schema.Index(req.Index)
		if !ok {
			return Page{}, fmt.Errorf("remote: table %s has no index %s", req.Table, req.Index)
		}
		sortAttr = ix.SortAttr
	}

	var matched []types.Item
	for _, it := range t.items {
		pv, ok := it[req.PartitionAttr]
		if !ok || !pv.Equal(req.PartitionValue) {
			continue
		}
		if req.Sort != nil {
			sv, ok := it[req.Sort.Attr]
			if !ok || !sortConditionMatches(sv, req.Sort) {
				continue
			}
		}
		matched = append(matched, it.Clone())
	}

	if sortAttr != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, aok := matched[i][sortAttr]
			b, bok := matched[j][sortAttr]
			if !aok || !bok {
				return bok && !aok
			}
			return a.Less(b)
		})
	}

	return m.paginate(matched, req.Limit, req.StartToken)
}

// Scan reads one page of a scan segment. Segment membership is a
// stable hash of the partition key value.
func (m *MemoryStore) Scan(ctx context.Context, req ScanRequest) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Scan"); err != nil {
		return Page{}, err
	}

	t, ok := m.tables[req.Table]
	if !ok {
		return Page{}, ErrTableNotFound
	}

	var matched []types.Item
	for _, it := range t.items {
		if req.TotalSegments > 0 {
			pv := it[t.desc.Schema.PartitionAttr]
			if segmentOf(pv, req.TotalSegments) != req.Segment {
				continue
			}
		}
		matched = append(matched, it.Clone())
	}

	return m.paginate(matched, req.Limit, req.StartToken)
}

// PutItem writes a full item, replacing any existing item with the
// same key.
func (m *MemoryStore) PutItem(ctx context.Context, table string, item types.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PutItem"); err != nil {
		return err
	}

	t, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	return t.put(item.Clone())
}

// DeleteItem removes the item addressed by key. Missing items are not
// an error, matching the remote's idempotent delete.
func (m *MemoryStore) DeleteItem(ctx context.Context, table string, key types.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteItem"); err != nil {
		return err
	}

	t, ok := m.tables[table]
	if !ok {
		return ErrTableNotFound
	}
	target, ok := types.KeyFromItem(key, t.desc.Schema)
	if !ok {
		return fmt.Errorf("remote: delete key for %s missing key attributes", table)
	}
	for i, it := range t.items {
		existing, ok := types.KeyFromItem(it, t.desc.Schema)
		if ok && existing.Equal(target) {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return nil
		}
	}
	return nil
}

// DescribeTable returns the registered description.
func (m *MemoryStore) DescribeTable(ctx context.Context, table string) (TableDescription, error) {
	if err := ctx.Err(); err != nil {
		return TableDescription{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DescribeTable"); err != nil {
		return TableDescription{}, err
	}

	t, ok := m.tables[table]
	if !ok {
		return TableDescription{}, ErrTableNotFound
	}
	desc := t.desc
	desc.ItemCount = int64(len(t.items))
	return desc, nil
}

// ListTables returns registered table names sorted.
func (m *MemoryStore) ListTables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListTables"); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (t *memTable) put(item types.Item) error {
	key, ok := types.KeyFromItem(item, t.desc.Schema)
	if !ok {
		return fmt.Errorf("remote: item for %s missing key attributes", t.desc.Schema.TableName)
	}
	for i, existing := range t.items {
		ek, ok := types.KeyFromItem(existing, t.desc.Schema)
		if ok && ek.Equal(key) {
			t.items[i] = item
			return nil
		}
	}
	t.items = append(t.items, item)
	return nil
}

func (m *MemoryStore) paginate(matched []types.Item, limit int, token string) (Page, error) {
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(token, "o:"))
		if err != nil || !strings.HasPrefix(token, "o:") {
			return Page{}, fmt.Errorf("remote: malformed continuation token %q", token)
		}
		offset = n
	}
	if offset > len(matched) {
		offset = len(matched)
	}

	pageLen := len(matched) - offset
	if m.pageSize > 0 && pageLen > m.pageSize {
		pageLen = m.pageSize
	}
	if limit > 0 && pageLen > limit {
		pageLen = limit
	}

	items := matched[offset : offset+pageLen]
	page := Page{
		Items:        items,
		Count:        len(items),
		ScannedCount: len(items),
	}
	if offset+pageLen < len(matched) {
		page.NextToken = "o:" + strconv.Itoa(offset+pageLen)
	}
	return page, nil
}

func sortConditionMatches(v types.Value, sc *SortCondition) bool {
	switch sc.Operator {
	case types.OpBETWEEN:
		lo, ok1 := v.Compare(sc.Low)
		hi, ok2 := v.Compare(sc.High)
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case types.OpPREFIX:
		if v.Kind() != types.KindString || sc.Value.Kind() != types.KindString {
			return false
		}
		return strings.HasPrefix(v.Text(), sc.Value.Text())
	case types.OpEQ:
		return v.Equal(sc.Value)
	default:
		c, ok := v.Compare(sc.Value)
		if !ok {
			return false
		}
		switch sc.Operator {
		case types.OpLT:
			return c < 0
		case types.OpLE:
			return c <= 0
		case types.OpGT:
			return c > 0
		case types.OpGE:
			return c >= 0
		default:
			return false
		}
	}
}

func segmentOf(v types.Value, totalSegments int) int {
	h := fnv.New32a()
	h.Write([]byte(v.String()))
	return int(h.Sum32()) % totalSegments
}
