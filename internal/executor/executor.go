// Package executor runs a selected access path against the remote
// store and streams the fetched items to the caller. Query paths
// paginate sequentially, one native query per partition value in value
// order. Scan paths run one worker per segment; completed pages from
// all workers flow through one bounded channel, so scan output order
// is unspecified.
package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/planner"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// Options tune one executor. Zero values take the documented defaults.
type Options struct {
	// PageSize caps items per fetched page, zero for the remote
	// default.
	PageSize int

	// QueueDepth is the page channel capacity. Zero means twice the
	// worker count, which keeps workers a little ahead of the consumer
	// without buffering unbounded pages.
	QueueDepth int

	// MaxRetries, BaseDelay, and MaxDelay parameterize the per-worker
	// throttle retry loop.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// OnComplete, when set, receives the final stats exactly once per
	// request, including requests the consumer abandons early.
	OnComplete func(Stats)
}

// Executor turns plans into row streams.
type Executor struct {
	store remote.Store
	opts  Options
}

// New creates an executor reading from store.
func New(store remote.Store, opts Options) *Executor {
	return &Executor{store: store, opts: opts}
}

// Run starts the plan's access path and returns the item stream. The
// caller must close the returned Rows; Close cancels any in-flight
// page fetches and waits for the producers to exit.
func (e *Executor) Run(ctx context.Context, plan *planner.Plan) (*Rows, error) {
	workers := 1
	if plan.Path.Kind == planner.KindScan {
		if plan.Path.SegmentCount < 1 {
			return nil, errors.NewInternalError(
				fmt.Sprintf("scan of %s has segment count %d", plan.Table, plan.Path.SegmentCount), nil)
		}
		workers = plan.Path.SegmentCount
	} else if len(plan.Path.PartitionValues) == 0 {
		return nil, errors.NewInternalError(
			fmt.Sprintf("query of %s has no partition values", plan.Table), nil)
	}

	depth := e.opts.QueueDepth
	if depth <= 0 {
		depth = 2 * workers
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Rows{
		pages:  make(chan []types.Item, depth),
		cancel: cancel,
		onDone: e.opts.OnComplete,
	}

	switch plan.Path.Kind {
	case planner.KindQuery:
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			e.runQueries(runCtx, r, plan)
		}()
	case planner.KindScan:
		for s := 0; s < workers; s++ {
			r.wg.Add(1)
			go func(segment int) {
				defer r.wg.Done()
				e.scanSegment(runCtx, r, plan.Table, segment, workers)
			}(s)
		}
	default:
		cancel()
		return nil, errors.NewInternalError(
			fmt.Sprintf("unknown access path kind %q", plan.Path.Kind), nil)
	}

	go func() {
		r.wg.Wait()
		close(r.pages)
	}()

	return r, nil
}

// runQueries issues one native query per partition value, strictly in
// value order; pagination of value i finishes before value i+1 starts.
func (e *Executor) runQueries(ctx context.Context, r *Rows, plan *planner.Plan) {
	retrier := e.newRetrier(plan.Table + "/query")

	for _, pv := range plan.Path.PartitionValues {
		r.stats.queries.Add(1)
		req := remote.QueryRequest{
			Table:          plan.Table,
			Index:          plan.Path.Index,
			PartitionAttr:  plan.Path.PartitionAttr,
			PartitionValue: pv,
			Sort:           plan.Path.Sort,
			Limit:          e.opts.PageSize,
		}
		for {
			var page remote.Page
			err := e.fetch(ctx, r, retrier, func() error {
				var fetchErr error
				page, fetchErr = e.store.Query(ctx, req)
				return fetchErr
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.fail(terminalError(fmt.Sprintf("query table %s", plan.Table), err))
				return
			}

			r.stats.page(len(page.Items), page.ScannedCount)
			if !r.deliver(ctx, page.Items) {
				return
			}
			if page.NextToken == "" {
				break
			}
			req.StartToken = page.NextToken
		}
	}
}

// scanSegment paginates one scan segment. A terminal error fails the
// whole stream and cancels the sibling segments.
func (e *Executor) scanSegment(ctx context.Context, r *Rows, table string, segment, total int) {
	retrier := e.newRetrier(fmt.Sprintf("%s/segment-%d", table, segment))

	req := remote.ScanRequest{
		Table:         table,
		Segment:       segment,
		TotalSegments: total,
		Limit:         e.opts.PageSize,
	}
	for {
		var page remote.Page
		err := e.fetch(ctx, r, retrier, func() error {
			var fetchErr error
			page, fetchErr = e.store.Scan(ctx, req)
			return fetchErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.fail(terminalError(fmt.Sprintf("scan table %s segment %d", table, segment), err))
			return
		}

		r.stats.page(len(page.Items), page.ScannedCount)
		if !r.deliver(ctx, page.Items) {
			return
		}
		if page.NextToken == "" {
			return
		}
		req.StartToken = page.NextToken
	}
}

// fetch runs one page fetch through the retrier and accounts retries.
func (e *Executor) fetch(ctx context.Context, r *Rows, retrier *remote.Retrier, op func() error) error {
	attempts := 0
	err := retrier.Do(ctx, func() error {
		attempts++
		return op()
	})
	if attempts > 1 {
		r.stats.retries.Add(int64(attempts - 1))
	}
	return err
}

func (e *Executor) newRetrier(seed string) *remote.Retrier {
	return remote.NewRetrier(e.opts.MaxRetries, e.opts.BaseDelay, e.opts.MaxDelay, seed)
}

// terminalError translates a worker's final fetch error. A throttle
// surviving the whole retry ceiling becomes REMOTE_UNAVAILABLE, which
// is not retryable; the stream is dead and the caller must not loop.
func terminalError(op string, err error) error {
	if remote.IsThrottle(err) {
		return errors.NewRemoteError(errors.CodeRemoteUnavailable,
			fmt.Sprintf("%s: retry ceiling exceeded", op), err)
	}
	if stderrors.Is(err, remote.ErrTableNotFound) {
		return errors.Wrap(errors.ErrCategorySchema, errors.CodeTableNotFound, op, err)
	}
	return fmt.Errorf("executor: %s: %w", op, err)
}
