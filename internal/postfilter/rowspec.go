package postfilter

import (
	"fmt"

	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/pkg/types"
)

// Row is one decoded host row: column name to value.
type Row map[string]types.Value

// RowSpec maps fetched items onto the host columns a request selected.
type RowSpec struct {
	def     types.TableDefinition
	columns []types.ColumnDefinition
}

// NewRowSpec builds the decoding plan for a request. selected lists
// the host columns the request wants, in request order; empty means
// every column of the definition. A selected column the definition
// does not know is a schema mismatch and aborts the request before any
// row is fetched.
func NewRowSpec(def types.TableDefinition, selected []string) (*RowSpec, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("postfilter: %w", err)
	}

	if len(selected) == 0 {
		return &RowSpec{def: def, columns: def.Columns}, nil
	}

	columns := make([]types.ColumnDefinition, 0, len(selected))
	for _, name := range selected {
		col, ok := def.Column(name)
		if !ok {
			return nil, errors.NewSchemaError(errors.CodeSchemaMismatch,
				fmt.Sprintf("table %s has no column %s", def.Name, name))
		}
		columns = append(columns, col)
	}
	return &RowSpec{def: def, columns: columns}, nil
}

// Columns returns the selected column names in decode order.
func (rs *RowSpec) Columns() []string {
	names := make([]string, len(rs.columns))
	for i, c := range rs.columns {
		names[i] = c.Name
	}
	return names
}

// Definition returns the table definition the row spec decodes for.
func (rs *RowSpec) Definition() types.TableDefinition {
	return rs.def
}

// Decode maps one item onto the selected columns. Key columns whose
// attribute the item lacks decode to null; an item missing a table key
// attribute entirely cannot be addressed and is a schema mismatch.
func (rs *RowSpec) Decode(item types.Item) (Row, error) {
	row := make(Row, len(rs.columns))
	for _, col := range rs.columns {
		switch col.Role {
		case types.RoleRowID:
			key, ok := types.KeyFromItem(item, rs.def.Schema)
			if !ok {
				return nil, errors.NewSchemaError(errors.CodeSchemaMismatch,
					fmt.Sprintf("item in table %s is missing a key attribute", rs.def.Schema.TableName))
			}
			id, err := types.RowID(key, rs.def.Schema)
			if err != nil {
				return nil, fmt.Errorf("postfilter: %w", err)
			}
			row[col.Name] = types.String(id)
		case types.RoleDocument:
			doc, err := item.DocumentJSON()
			if err != nil {
				return nil, fmt.Errorf("postfilter: encode document for table %s: %w", rs.def.Schema.TableName, err)
			}
			row[col.Name] = types.String(doc)
		default:
			if v, ok := item[col.Attribute]; ok {
				row[col.Name] = v
			} else {
				row[col.Name] = types.Null()
			}
		}
	}
	return row, nil
}
