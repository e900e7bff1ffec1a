package fdw

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarrydb/quarry/internal/config"
	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/executor"
	"github.com/quarrydb/quarry/internal/introspect"
	"github.com/quarrydb/quarry/internal/observability"
	"github.com/quarrydb/quarry/internal/planner"
	"github.com/quarrydb/quarry/internal/postfilter"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// Table binds one host table to one remote table. A handle is cheap
// and safe for concurrent reads; writes go through the engine's
// per-transaction buffers.
type Table struct {
	engine  *Engine
	cfg     config.TableConfig
	def     types.TableDefinition
	schema  types.KeySchema
	planner *planner.Planner
}

// Open resolves the host table's key layout and returns a handle. The
// layout comes from the table configuration, or from remote
// introspection when the configuration declares no partition key or
// asks for introspection outright.
func (e *Engine) Open(ctx context.Context, hostTable string) (*Table, error) {
	tc := e.cfg.TableFor(hostTable)

	var def types.TableDefinition
	var err error
	if tc.IntrospectSchema || tc.PartitionAttr == "" {
		var desc remote.TableDescription
		desc, err = e.inspect.Describe(ctx, tc.RemoteTable)
		if err != nil {
			return nil, err
		}
		def, err = introspect.Definition(desc)
	} else {
		def, err = introspect.Definition(remote.TableDescription{
			Schema: types.KeySchema{
				TableName:     tc.RemoteTable,
				PartitionAttr: tc.PartitionAttr,
				SortAttr:      tc.SortAttr,
				Indexes:       tc.Indexes,
			},
		})
	}
	if err != nil {
		return nil, err
	}

	def.Name = hostTable
	renameColumn(&def, types.RoleRowID, tc.RowIDColumn)
	renameColumn(&def, types.RoleDocument, tc.DocumentColumn)
	if err := def.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig,
			fmt.Sprintf("table %s", hostTable), err)
	}

	pl, err := planner.NewPlanner(def.Schema, tc.SegmentCount, !tc.ForbidScan)
	if err != nil {
		return nil, err
	}

	return &Table{
		engine:  e,
		cfg:     tc,
		def:     def,
		schema:  def.Schema,
		planner: pl,
	}, nil
}

// renameColumn gives the column with the given role its configured
// host name. Collisions with attribute columns surface through the
// definition's validation afterwards.
func renameColumn(def *types.TableDefinition, role types.ColumnRole, name string) {
	for i := range def.Columns {
		if def.Columns[i].Role == role {
			def.Columns[i].Name = name
			return
		}
	}
}

// Definition returns the host-side table definition, synthetic
// columns included.
func (t *Table) Definition() types.TableDefinition {
	return t.def
}

// translate maps host column predicates onto remote attributes. An
// equality on the row identifier column expands into key attribute
// equalities so that point lookups plan as queries; any other row
// identifier predicate, and every document column predicate, cannot be
// evaluated remotely or locally and is rejected. A name that is not a
// declared column addresses a remote attribute directly: items are
// schemaless beyond their keys, so such predicates plan as leftover
// filters instead of failing.
func (t *Table) translate(preds []types.Predicate) ([]types.Predicate, error) {
	out := make([]types.Predicate, 0, len(preds))
	for _, p := range preds {
		col, ok := t.def.Column(p.Attribute)
		if !ok {
			out = append(out, p)
			continue
		}
		switch col.Role {
		case types.RoleRowID:
			if p.Operator != types.OpEQ || p.Value.Kind() != types.KindString {
				return nil, errors.NewPlanError(errors.CodeUnsupportedPredicate,
					fmt.Sprintf("column %s supports only equality against a row identifier", col.Name))
			}
			key, err := types.ParseRowID(p.Value.Text(), t.schema)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCategoryPlan, errors.CodeUnsupportedPredicate,
					fmt.Sprintf("column %s", col.Name), err)
			}
			out = append(out, types.Eq(t.schema.PartitionAttr, key.Partition))
			if key.Sort != nil {
				out = append(out, types.Eq(t.schema.SortAttr, *key.Sort))
			}
		case types.RoleDocument:
			return nil, errors.NewPlanError(errors.CodeUnsupportedPredicate,
				fmt.Sprintf("column %s cannot be filtered on", col.Name))
		default:
			p.Attribute = col.Attribute
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *Table) plan(preds []types.Predicate) (*planner.Plan, error) {
	translated, err := t.translate(preds)
	if err != nil {
		return nil, err
	}
	return t.planner.Plan(translated)
}

// Explain renders the access path the predicates would take, one line
// per element, without touching the remote store.
func (t *Table) Explain(preds []types.Predicate) ([]string, error) {
	plan, err := t.plan(preds)
	if err != nil {
		return nil, err
	}
	lines := plan.Describe(t.engine.cfg.Remote.Region)
	if len(plan.Leftover) > 0 {
		parts := make([]string, len(plan.Leftover))
		for i, p := range plan.Leftover {
			parts[i] = p.String()
		}
		lines = append(lines, fmt.Sprintf("Quarry: local filter: %s", strings.Join(parts, " AND ")))
	}
	return lines, nil
}

// Read plans and executes one request. Predicates and column names
// refer to host columns; an empty column list selects every column.
// The returned rows must be closed.
func (t *Table) Read(ctx context.Context, preds []types.Predicate, columns []string) (*Rows, error) {
	start := time.Now()
	spec, err := postfilter.NewRowSpec(t.def, columns)
	if err != nil {
		return nil, err
	}
	plan, err := t.plan(preds)
	if err != nil {
		return nil, err
	}

	if plan.Path.Kind == planner.KindScan {
		t.engine.notifier.ScanSelected(t.def.Name, plan.Path.SegmentCount)
	}
	t.engine.stats.RecordPath(t.def.Name, string(plan.Path.Kind))
	for _, p := range plan.Leftover {
		t.engine.stats.RecordLeftover(p.Attribute, string(p.Operator))
	}

	rows := &Rows{spec: spec, leftover: plan.Leftover}
	requestID := uuid.NewString()
	ex := executor.New(t.engine.store, executor.Options{
		PageSize:   t.engine.cfg.Scan.PageSize,
		QueueDepth: t.engine.cfg.Scan.QueueDepth,
		MaxRetries: t.engine.cfg.Retry.MaxRetries,
		BaseDelay:  t.engine.cfg.Retry.BaseDelay,
		MaxDelay:   t.engine.cfg.Retry.MaxDelay,
		OnComplete: func(s executor.Stats) {
			t.engine.notifier.RequestCompleted(t.def.Name, observability.RequestSummary{
				RequestID:    requestID,
				Pages:        s.Pages,
				Items:        s.Items,
				ScannedCount: s.ScannedCount,
				Queries:      s.Queries,
				Retries:      s.Retries,
				Rows:         rows.yielded,
				Duration:     time.Since(start),
			})
		},
	})
	inner, err := ex.Run(ctx, plan)
	if err != nil {
		return nil, err
	}
	rows.inner = inner
	return rows, nil
}

// Insert buffers one row insertion for the transaction. The document
// column, when set, provides the item base; declared key and index
// columns overwrite the matching attributes. The partition key, and
// the sort key on tables that have one, must end up present.
func (t *Table) Insert(txn string, row Row) error {
	item := types.Item{}
	if doc, ok := row[t.cfg.DocumentColumn]; ok && !doc.IsNull() {
		if doc.Kind() != types.KindString {
			return errors.NewSchemaError(errors.CodeSchemaMismatch,
				fmt.Sprintf("table %s: column %s must hold JSON text", t.def.Name, t.cfg.DocumentColumn))
		}
		parsed, err := types.ItemFromJSON(doc.Text())
		if err != nil {
			return errors.Wrap(errors.ErrCategorySchema, errors.CodeSchemaMismatch,
				fmt.Sprintf("table %s: column %s", t.def.Name, t.cfg.DocumentColumn), err)
		}
		item = parsed
	}
	for _, col := range t.def.Columns {
		switch col.Role {
		case types.RolePartitionKey, types.RoleSortKey, types.RoleIndexKey:
			if v, ok := row[col.Name]; ok && !v.IsNull() {
				item[col.Attribute] = v
			}
		}
	}
	if v, ok := item[t.schema.PartitionAttr]; !ok || v.IsNull() {
		return errors.NewSchemaError(errors.CodeSchemaMismatch,
			fmt.Sprintf("table %s: insert is missing partition key %s", t.def.Name, t.schema.PartitionAttr))
	}
	if t.schema.HasSortKey() {
		if v, ok := item[t.schema.SortAttr]; !ok || v.IsNull() {
			return errors.NewSchemaError(errors.CodeSchemaMismatch,
				fmt.Sprintf("table %s: insert is missing sort key %s", t.def.Name, t.schema.SortAttr))
		}
	}
	return t.engine.writes.Insert(txn, t.cfg.RemoteTable, item)
}

// Delete buffers one deletion for the transaction, keyed by a row
// identifier from a previous read.
func (t *Table) Delete(txn, rowID string) error {
	key, err := types.ParseRowID(rowID, t.schema)
	if err != nil {
		return errors.Wrap(errors.ErrCategorySchema, errors.CodeSchemaMismatch,
			fmt.Sprintf("table %s: row identifier", t.def.Name), err)
	}
	return t.engine.writes.Delete(txn, t.cfg.RemoteTable, key.Attributes(t.schema))
}

// Update always fails. The remote write model replaces whole items,
// so the host must express an update as a delete and a re-insert.
func (t *Table) Update(txn, rowID string, row Row) error {
	return errors.New(errors.ErrCategoryWrite, errors.CodeUnsupportedWrite,
		fmt.Sprintf("table %s: UPDATE is not supported", t.def.Name))
}
