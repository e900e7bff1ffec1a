// Package introspect turns remote table metadata into foreign table
// definitions. A schema import enumerates the store's tables, describes
// each one, and generates the column list the host needs to declare a
// matching foreign table. Table opens without per-column configuration
// go through the same describe path.
package introspect

import (
	"context"
	"log"

	"github.com/quarrydb/quarry/internal/catalog"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// Filter restricts which remote tables a schema import enumerates,
// mirroring the host's limit-to/except import clauses.
type Filter struct {
	// Limit, when non-empty, keeps only the named tables.
	Limit []string
	// Except drops the named tables.
	Except []string
}

// Match reports whether a remote table passes the restriction lists.
func (f Filter) Match(name string) bool {
	if len(f.Limit) > 0 && !containsName(f.Limit, name) {
		return false
	}
	return !containsName(f.Except, name)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Engine enumerates and describes remote tables. The description cache
// is optional; without one every call reaches the store.
type Engine struct {
	store remote.Store
	cache catalog.Cache
}

// NewEngine returns an Engine over the given store. cache may be nil.
func NewEngine(store remote.Store, cache catalog.Cache) *Engine {
	return &Engine{store: store, cache: cache}
}

// Describe returns the description for one table, consulting the cache
// first. Cache failures degrade to a direct describe; they never fail
// the call.
func (e *Engine) Describe(ctx context.Context, table string) (remote.TableDescription, error) {
	if e.cache != nil {
		desc, found, err := e.cache.Lookup(ctx, table)
		if err != nil {
			log.Printf("Warning: description cache lookup for %s failed: %v", table, err)
		} else if found {
			return desc, nil
		}
	}

	desc, err := e.store.DescribeTable(ctx, table)
	if err != nil {
		return remote.TableDescription{}, err
	}

	if e.cache != nil {
		if err := e.cache.Store(ctx, table, desc); err != nil {
			log.Printf("Warning: description cache store for %s failed: %v", table, err)
		} else if _, err := e.cache.Prune(ctx); err != nil {
			log.Printf("Warning: description cache prune failed: %v", err)
		}
	}
	return desc, nil
}

// Schema returns the key schema for one table. Table opens use it when
// the table configuration does not spell the keys out.
func (e *Engine) Schema(ctx context.Context, table string) (types.KeySchema, error) {
	desc, err := e.Describe(ctx, table)
	if err != nil {
		return types.KeySchema{}, err
	}
	return desc.Schema, nil
}

// ImportSchema enumerates remote tables matching the filter and
// generates a definition for each. A table whose metadata cannot
// produce a valid definition is skipped with a warning; a failing
// enumeration or describe aborts the import.
func (e *Engine) ImportSchema(ctx context.Context, filter Filter) ([]types.TableDefinition, error) {
	names, err := e.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	var defs []types.TableDefinition
	for _, name := range names {
		if !filter.Match(name) {
			continue
		}
		desc, err := e.Describe(ctx, name)
		if err != nil {
			return nil, err
		}
		def, err := Definition(desc)
		if err != nil {
			log.Printf("Warning: skipping table %s: %v", name, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Definition generates the foreign table definition for one described
// table: the row identifier column, the table key columns, one column
// per key attribute of each fully projected secondary index, and the
// document column. Indexes without full projection are dropped from
// both the columns and the emitted schema, since rows read through
// them would be missing attributes.
func Definition(desc remote.TableDescription) (types.TableDefinition, error) {
	schema := desc.Schema
	if err := schema.Validate(); err != nil {
		return types.TableDefinition{}, err
	}

	var kept []types.IndexDef
	for _, ix := range schema.Indexes {
		if ix.FullProjection {
			kept = append(kept, ix)
		}
	}
	schema.Indexes = kept

	cols := []types.ColumnDefinition{{
		Name:     types.RowIDColumn,
		HostType: types.HostTypeText,
		Role:     types.RoleRowID,
	}}
	emitted := make(map[string]int)

	cols = append(cols, types.ColumnDefinition{
		Name:      schema.PartitionAttr,
		HostType:  hostType(desc.AttributeKinds, schema.PartitionAttr),
		Role:      types.RolePartitionKey,
		Attribute: schema.PartitionAttr,
	})
	emitted[schema.PartitionAttr] = len(cols) - 1

	if schema.HasSortKey() {
		cols = append(cols, types.ColumnDefinition{
			Name:      schema.SortAttr,
			HostType:  hostType(desc.AttributeKinds, schema.SortAttr),
			Role:      types.RoleSortKey,
			Attribute: schema.SortAttr,
		})
		emitted[schema.SortAttr] = len(cols) - 1
	}

	for _, ix := range schema.Indexes {
		for _, attr := range []string{ix.PartitionAttr, ix.SortAttr} {
			if attr == "" {
				continue
			}
			if at, ok := emitted[attr]; ok {
				// Table key columns keep their role; a second index on
				// the same attribute just extends the annotation.
				if cols[at].Role == types.RoleIndexKey {
					cols[at].Indexes = append(cols[at].Indexes, ix.Name)
				}
				continue
			}
			cols = append(cols, types.ColumnDefinition{
				Name:      attr,
				HostType:  hostType(desc.AttributeKinds, attr),
				Role:      types.RoleIndexKey,
				Attribute: attr,
				Indexes:   []string{ix.Name},
			})
			emitted[attr] = len(cols) - 1
		}
	}

	cols = append(cols, types.ColumnDefinition{
		Name:     types.DocumentColumn,
		HostType: types.HostTypeJSON,
		Role:     types.RoleDocument,
	})

	def := types.TableDefinition{
		Name:    schema.TableName,
		Schema:  schema,
		Columns: cols,
	}
	if err := def.Validate(); err != nil {
		return types.TableDefinition{}, err
	}
	return def, nil
}

func hostType(kinds map[string]types.Kind, attr string) string {
	switch kinds[attr] {
	case types.KindNumber:
		return types.HostTypeNumeric
	case types.KindBinary:
		return types.HostTypeBytes
	default:
		return types.HostTypeText
	}
}
