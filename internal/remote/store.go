// Package remote provides the key-value store abstraction the engine
// reads and writes through. Implementations include DynamoDB and an
// in-memory store for testing.
package remote

import (
	"context"
	"errors"

	"github.com/quarrydb/quarry/pkg/types"
)

// Common errors for remote operations.
var (
	ErrTableNotFound = errors.New("remote table not found")
	ErrThrottled     = errors.New("remote request throttled")
)

// SortCondition narrows a query to a sort key range. Operator is one
// of the sort-pushable operators; Low and High are only set for
// BETWEEN, Value for everything else.
type SortCondition struct {
	Attr     string
	Operator types.Operator
	Value    types.Value
	Low      types.Value
	High     types.Value
}

// QueryRequest describes one key-addressed read against a table or
// one of its secondary indexes.
type QueryRequest struct {
	// Table is the remote table name.
	Table string
	// Index is the secondary index to read through, empty for the
	// base table.
	Index string
	// PartitionAttr and PartitionValue select the partition.
	PartitionAttr  string
	PartitionValue types.Value
	// Sort optionally narrows the sort key range.
	Sort *SortCondition
	// Limit caps items per page, zero for the remote default.
	Limit int
	// StartToken resumes a paginated read. Tokens are opaque; callers
	// pass back exactly what the previous page returned.
	StartToken string
}

// ScanRequest describes one page of a full-table read. When
// TotalSegments is positive the scan reads only the given segment.
type ScanRequest struct {
	Table         string
	Segment       int
	TotalSegments int
	Limit         int
	StartToken    string
}

// Page is one page of items from a query or scan. NextToken is empty
// on the final page.
type Page struct {
	Items        []types.Item
	NextToken    string
	Count        int
	ScannedCount int
}

// TableDescription is the remote store's view of a table: its key
// layout, the declared types of its key attributes, and an
// approximate item count.
type TableDescription struct {
	Schema         types.KeySchema       `json:"schema"`
	AttributeKinds map[string]types.Kind `json:"attribute_kinds"`
	ItemCount      int64                 `json:"item_count"`
}

// Store abstracts the partition/sort-key store.
// Implementations must be safe for concurrent use; scan segments are
// fetched from multiple goroutines.
type Store interface {
	// Query reads one page of a partition, optionally through an
	// index and optionally narrowed by a sort condition. Items come
	// back in ascending sort key order.
	Query(ctx context.Context, req QueryRequest) (Page, error)

	// Scan reads one page of a full-table scan segment. Item order
	// is unspecified.
	Scan(ctx context.Context, req ScanRequest) (Page, error)

	// PutItem writes a full item, replacing any existing item with
	// the same key.
	PutItem(ctx context.Context, table string, item types.Item) error

	// DeleteItem removes the item addressed by key. The key item
	// holds exactly the key attributes. Deleting a missing item is
	// not an error.
	DeleteItem(ctx context.Context, table string, key types.Item) error

	// DescribeTable returns the table's key layout.
	// Returns ErrTableNotFound for unknown tables.
	DescribeTable(ctx context.Context, table string) (TableDescription, error)

	// ListTables returns all table names visible to the connection.
	ListTables(ctx context.Context) ([]string, error)
}
