package writebuf

import (
	"context"
	"sync"

	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// Manager tracks one Buffer per live relational transaction, keyed by
// the transaction identifier the host engine supplies. Buffers are
// created on a transaction's first write and removed when it commits
// or rolls back, so a transaction that never writes costs nothing.
type Manager struct {
	store          remote.Store
	journalDir     string
	spillThreshold int

	mu      sync.Mutex
	buffers map[string]*Buffer
}

// NewManager returns a manager draining into store. journalDir and
// spillThreshold configure per-buffer journal spill.
func NewManager(store remote.Store, journalDir string, spillThreshold int) *Manager {
	return &Manager{
		store:          store,
		journalDir:     journalDir,
		spillThreshold: spillThreshold,
		buffers:        make(map[string]*Buffer),
	}
}

// buffer returns the transaction's buffer, creating it on first use.
func (m *Manager) buffer(txn string) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[txn]
	if !ok {
		b = NewBuffer(txn, m.journalDir, m.spillThreshold)
		m.buffers[txn] = b
	}
	return b
}

// Insert buffers a full row image for the transaction. Nothing reaches
// the remote store until Commit.
func (m *Manager) Insert(txn, table string, item types.Item) error {
	return m.buffer(txn).Add(PendingWrite{Table: table, Kind: WriteInsert, Item: item})
}

// Delete buffers a point delete. key holds only the key attributes.
func (m *Manager) Delete(txn, table string, key types.Item) error {
	return m.buffer(txn).Add(PendingWrite{Table: table, Kind: WriteDelete, Item: key})
}

// Commit drains the transaction's buffered writes to the remote store
// in arrival order. The buffer is removed whether or not every write
// applies; replaying a partially failed drain later would need
// operator intervention, not a retry. A transaction that never wrote
// commits as a no-op. Commits of independent transactions run
// concurrently; the manager lock is held only for the map lookup.
func (m *Manager) Commit(ctx context.Context, txn string) (DrainResult, error) {
	m.mu.Lock()
	b, ok := m.buffers[txn]
	delete(m.buffers, txn)
	m.mu.Unlock()
	if !ok {
		return DrainResult{}, nil
	}
	return b.Drain(ctx, m.store)
}

// Rollback discards the transaction's buffer without contacting the
// remote store. Unknown transactions are a no-op.
func (m *Manager) Rollback(txn string) error {
	m.mu.Lock()
	b, ok := m.buffers[txn]
	delete(m.buffers, txn)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Discard()
}

// Live reports how many transactions currently hold a buffer.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffers)
}

// Close discards every live buffer and removes their journal files.
// Used at engine shutdown once the host is done with all transactions.
func (m *Manager) Close() {
	m.mu.Lock()
	buffers := m.buffers
	m.buffers = make(map[string]*Buffer)
	m.mu.Unlock()
	for _, b := range buffers {
		b.Discard()
	}
}
