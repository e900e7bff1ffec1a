package executor

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/quarrydb/quarry/pkg/types"
)

// Stats summarizes one request's remote traffic.
type Stats struct {
	// Pages is the number of pages fetched, empty pages included.
	Pages int64
	// Items is the number of items delivered by the remote store.
	Items int64
	// ScannedCount is the remote store's count of items examined, which
	// exceeds Items when the store filtered server-side.
	ScannedCount int64
	// Queries is the number of native queries issued (one per partition
	// value on a fan-out). Zero for scans.
	Queries int64
	// Retries is the number of throttled page fetches that were retried.
	Retries int64
}

type counters struct {
	pages   atomic.Int64
	items   atomic.Int64
	scanned atomic.Int64
	queries atomic.Int64
	retries atomic.Int64
}

func (c *counters) page(items, scanned int) {
	c.pages.Add(1)
	c.items.Add(int64(items))
	c.scanned.Add(int64(scanned))
}

func (c *counters) snapshot() Stats {
	return Stats{
		Pages:        c.pages.Load(),
		Items:        c.items.Load(),
		ScannedCount: c.scanned.Load(),
		Queries:      c.queries.Load(),
		Retries:      c.retries.Load(),
	}
}

// Rows is the pull side of one running access path. It is not safe for
// concurrent use; one consumer drains it and then closes it.
type Rows struct {
	pages   chan []types.Item
	current []types.Item

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error

	stats  counters
	finish sync.Once
	onDone func(Stats)
}

// Next returns the next item. It returns io.EOF once the stream is
// exhausted, or the terminal error that stopped the producers. Items
// already returned stay valid after a terminal error.
func (r *Rows) Next(ctx context.Context) (types.Item, error) {
	for len(r.current) == 0 {
		select {
		case page, ok := <-r.pages:
			if !ok {
				if err := r.takeErr(); err != nil {
					r.complete()
					return nil, err
				}
				r.complete()
				return nil, io.EOF
			}
			r.current = page
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	item := r.current[0]
	r.current = r.current[1:]
	return item, nil
}

// Close cancels the producers, waits for them to exit, and reports the
// completion stats. It is safe to call after Next returned io.EOF and
// safe to call more than once.
func (r *Rows) Close() error {
	r.cancel()
	r.wg.Wait()
	r.complete()
	return nil
}

// Stats returns a snapshot of the request's counters.
func (r *Rows) Stats() Stats {
	return r.stats.snapshot()
}

// deliver hands a page to the consumer. It reports false when the
// stream is being torn down and the producer should exit.
func (r *Rows) deliver(ctx context.Context, items []types.Item) bool {
	if len(items) == 0 {
		return ctx.Err() == nil
	}
	select {
	case r.pages <- items:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail records the stream's terminal error and cancels the remaining
// producers. The first error wins.
func (r *Rows) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *Rows) takeErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Rows) complete() {
	r.finish.Do(func() {
		if r.onDone != nil {
			r.onDone(r.stats.snapshot())
		}
	})
}
