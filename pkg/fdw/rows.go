package fdw

import (
	"context"

	"github.com/quarrydb/quarry/internal/executor"
	"github.com/quarrydb/quarry/internal/postfilter"
	"github.com/quarrydb/quarry/pkg/types"
)

// Row is one result row, keyed by host column name.
type Row map[string]types.Value

// Rows streams the result of one Read. It is owned by a single
// consumer: the goroutine that pulls it closes it.
type Rows struct {
	inner    *executor.Rows
	spec     *postfilter.RowSpec
	leftover []types.Predicate
	yielded  int64
}

// Next returns the next row, or io.EOF once the request is exhausted.
// Fetched items that fail a leftover predicate are skipped, never
// returned.
func (r *Rows) Next(ctx context.Context) (Row, error) {
	for {
		item, err := r.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !postfilter.Passes(r.leftover, item) {
			continue
		}
		decoded, err := r.spec.Decode(item)
		if err != nil {
			return nil, err
		}
		r.yielded++
		return Row(decoded), nil
	}
}

// Columns returns the selected column names in decode order.
func (r *Rows) Columns() []string {
	return r.spec.Columns()
}

// Close releases the stream and cancels any fetches still in flight.
// It is safe to call more than once.
func (r *Rows) Close() error {
	return r.inner.Close()
}
