// Package catalog caches remote table descriptions in a local SQLite
// database. Describing a table is a control-plane call with its own
// rate limits, so table opens and schema imports consult the cache
// first and fall back to the remote store only on a miss or an
// expired entry.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/quarrydb/quarry/internal/remote"
)

// Cache is the table description cache consumed by schema
// introspection. Implementations must be safe for concurrent use;
// every host backend that opens a foreign table goes through it.
type Cache interface {
	// Lookup returns the cached description for a table and whether a
	// fresh entry was found. A miss and an expired entry both report
	// found == false with a nil error.
	Lookup(ctx context.Context, table string) (remote.TableDescription, bool, error)

	// Store upserts the description for a table, stamping it with the
	// current time.
	Store(ctx context.Context, table string, desc remote.TableDescription) error

	// Invalidate removes the cached description for a table, if any.
	Invalidate(ctx context.Context, table string) error

	// Prune deletes entries older than the TTL and returns how many
	// were removed.
	Prune(ctx context.Context) (int64, error)

	Close() error
}

// SQLiteCache is the SQLite-backed Cache implementation.
type SQLiteCache struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	ttl    time.Duration
	mu     sync.Mutex // Write-only lock (reads don't need this)

	now func() time.Time
}

var _ Cache = (*SQLiteCache)(nil)

// NewCache opens or creates the description cache at dbPath. A ttl of
// zero or less disables expiry, so entries stay valid until they are
// replaced or invalidated.
func NewCache(dbPath string, ttl time.Duration) (*SQLiteCache, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	cache := &SQLiteCache{
		db:     db,
		dbPath: dbPath,
		ttl:    ttl,
		now:    time.Now,
	}

	// The schema runs on the write connection before the read pool
	// opens; a read-only connection cannot create the database file.
	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	cache.readDB = readDB

	return cache, nil
}

// initSchema creates the cache table and its indexes.
func (c *SQLiteCache) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Lookup returns the cached description for table. Expired entries are
// reported as misses but stay on disk until Prune or a replacing Store.
func (c *SQLiteCache) Lookup(ctx context.Context, table string) (remote.TableDescription, bool, error) {
	var (
		payload     []byte
		describedAt int64
	)
	err := c.readDB.QueryRowContext(ctx,
		"SELECT payload, described_at FROM table_descriptions WHERE table_name = ?",
		table,
	).Scan(&payload, &describedAt)
	if err == sql.ErrNoRows {
		return remote.TableDescription{}, false, nil
	}
	if err != nil {
		return remote.TableDescription{}, false, fmt.Errorf("catalog: failed to read description for %s: %w", table, err)
	}
	if c.expired(describedAt) {
		return remote.TableDescription{}, false, nil
	}

	var desc remote.TableDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return remote.TableDescription{}, false, fmt.Errorf("catalog: failed to decode description for %s: %w", table, err)
	}
	return desc, true, nil
}

// Store upserts the description for table under the current timestamp.
func (c *SQLiteCache) Store(ctx context.Context, table string, desc remote.TableDescription) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("catalog: failed to encode description for %s: %w", table, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO table_descriptions (table_name, payload, described_at) VALUES (?, ?, ?)",
		table, payload, c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("catalog: failed to store description for %s: %w", table, err)
	}
	return nil
}

// Invalidate removes the cached description for table. Removing a
// table that was never cached is not an error.
func (c *SQLiteCache) Invalidate(ctx context.Context, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM table_descriptions WHERE table_name = ?",
		table,
	); err != nil {
		return fmt.Errorf("catalog: failed to invalidate description for %s: %w", table, err)
	}
	return nil
}

// Prune deletes entries whose age exceeds the TTL and returns the
// number removed. With expiry disabled it does nothing.
func (c *SQLiteCache) Prune(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl).Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		"DELETE FROM table_descriptions WHERE described_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to prune descriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to count pruned descriptions: %w", err)
	}
	return n, nil
}

// Close closes the read pool first, then the write connection.
func (c *SQLiteCache) Close() error {
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

func (c *SQLiteCache) expired(describedAt int64) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(time.Unix(describedAt, 0)) > c.ttl
}
