// Package fdw is the embedding surface for host relational engines. An
// Engine owns the engine-wide pieces: the remote store connection, the
// per-transaction write buffers, the table description cache, and the
// cross-request access statistics. Tables opened through the engine
// plan, execute, and post-filter individual read requests and buffer
// write intents until the host commits.
package fdw

import (
	"context"
	"os"
	"time"

	"github.com/quarrydb/quarry/internal/catalog"
	"github.com/quarrydb/quarry/internal/config"
	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/introspect"
	"github.com/quarrydb/quarry/internal/maintenance"
	"github.com/quarrydb/quarry/internal/observability"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/internal/writebuf"
	"github.com/quarrydb/quarry/pkg/types"
)

// leftoverWindow bounds how long an idle attribute survives in the
// access statistics.
const leftoverWindow = 24 * time.Hour

// Engine is the shared engine state behind every table handle.
type Engine struct {
	cfg      config.Config
	store    remote.Store
	notifier observability.Notifier
	stats    *observability.AccessStats
	writes   *writebuf.Manager
	inspect  *introspect.Engine
	cache    catalog.Cache
	janitor  *maintenance.Daemon
}

// New creates an engine from cfg, reading and writing through store.
// notifier may be nil to discard advisories. The engine owns local
// state under cfg.DataDir: the journal directory for spilled write
// buffers and the table description cache.
func New(cfg *config.Config, store remote.Store, notifier observability.Notifier) (*Engine, error) {
	cc := *cfg
	cc.Resolve()
	if err := cc.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig, "invalid configuration", err)
	}
	if notifier == nil {
		notifier = observability.NopNotifier{}
	}

	if err := os.MkdirAll(cc.DataDir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig, "create data directory", err)
	}
	cache, err := catalog.NewCache(cc.Catalog.Path, cc.Catalog.DescribeTTL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig, "open description cache", err)
	}

	e := &Engine{
		cfg:      cc,
		store:    store,
		notifier: notifier,
		stats:    observability.NewAccessStats(leftoverWindow),
		writes:   writebuf.NewManager(store, cc.Write.JournalDir, cc.Write.SpillThreshold),
		inspect:  introspect.NewEngine(store, cache),
		cache:    cache,
	}

	if cc.Catalog.PruneInterval > 0 {
		e.janitor = maintenance.NewDaemon(
			maintenance.Config{CheckInterval: cc.Catalog.PruneInterval},
			cache, e.stats,
		)
		if err := e.janitor.Start(context.Background()); err != nil {
			cache.Close()
			return nil, errors.Wrap(errors.ErrCategoryInternal, errors.CodeUnexpected, "start maintenance daemon", err)
		}
	}

	return e, nil
}

// Close stops background maintenance, discards any transaction buffers
// still open, and closes the description cache.
func (e *Engine) Close() error {
	if e.janitor != nil {
		e.janitor.Stop()
	}
	e.writes.Close()
	return e.cache.Close()
}

// ImportOptions restricts a schema import the way the host's limit-to
// and except clauses do.
type ImportOptions struct {
	// Limit, when non-empty, keeps only the named remote tables.
	Limit []string
	// Except drops the named remote tables.
	Except []string
}

// ImportSchema enumerates the remote tables matching opts and
// generates a foreign table definition for each.
func (e *Engine) ImportSchema(ctx context.Context, opts ImportOptions) ([]types.TableDefinition, error) {
	return e.inspect.ImportSchema(ctx, introspect.Filter{Limit: opts.Limit, Except: opts.Except})
}

// Commit drains the transaction's buffered writes against the remote
// store. A transaction that never wrote commits trivially. The drain
// is best effort: failures are collected into the returned error and
// reported through the notifier, and the buffer is gone either way.
func (e *Engine) Commit(ctx context.Context, txn string) error {
	res, err := e.writes.Commit(ctx, txn)
	if res.Failed > 0 {
		e.notifier.WriteReplayFailed(txn, res.Failed, res.Total)
	}
	return err
}

// Rollback discards the transaction's buffered writes without touching
// the remote store.
func (e *Engine) Rollback(txn string) error {
	return e.writes.Rollback(txn)
}

// LeftoverAttribute reports how often predicates on one attribute
// could not be pushed down to the remote store.
type LeftoverAttribute struct {
	Attribute string
	Frequency int64
	Operators map[string]int
}

// PathCounts reports how many reads of the host table took each
// access path kind, keyed "QUERY" or "SCAN". A table that keeps
// scanning is missing a partition predicate in its workload.
func (e *Engine) PathCounts(hostTable string) map[string]int64 {
	return e.stats.PathCounts(hostTable)
}

// TopLeftoverAttributes returns the n attributes that most often
// needed local re-filtering, most frequent first. A hot entry is the
// operational signal that the remote table deserves an index on that
// attribute.
func (e *Engine) TopLeftoverAttributes(n int) []LeftoverAttribute {
	stats := e.stats.TopLeftoverAttributes(n)
	out := make([]LeftoverAttribute, len(stats))
	for i, s := range stats {
		out[i] = LeftoverAttribute{
			Attribute: s.Attribute,
			Frequency: s.Frequency,
			Operators: s.Operators,
		}
	}
	return out
}
