package types

import "fmt"

// ColumnRole says what a host-side column carries.
type ColumnRole string

const (
	// RoleRowID is the synthetic row identifier column.
	RoleRowID ColumnRole = "row_id"
	// RolePartitionKey maps the table partition key attribute.
	RolePartitionKey ColumnRole = "partition_key"
	// RoleSortKey maps the table sort key attribute.
	RoleSortKey ColumnRole = "sort_key"
	// RoleIndexKey maps a key attribute of a fully projected
	// secondary index.
	RoleIndexKey ColumnRole = "index_key"
	// RoleDocument is the synthetic column holding the whole item as
	// JSON text.
	RoleDocument ColumnRole = "document"
)

// Host type names used by generated column definitions.
const (
	HostTypeText    = "TEXT"
	HostTypeNumeric = "NUMERIC"
	HostTypeBytes   = "BYTEA"
	HostTypeJSON    = "JSON"
)

// Names of the two synthetic columns every generated table carries.
const (
	// RowIDColumn holds the encoded row identifier.
	RowIDColumn = "oid"
	// DocumentColumn holds the whole item as JSON text.
	DocumentColumn = "document"
)

// ColumnDefinition is one host-side column of an imported table.
type ColumnDefinition struct {
	// Name is the column name on the host side. Key columns are named
	// after their remote attribute.
	Name string `json:"name" yaml:"name"`
	// HostType is the host type the column is declared with.
	HostType string `json:"host_type" yaml:"host_type"`
	// Role says what the column carries.
	Role ColumnRole `json:"role" yaml:"role"`
	// Attribute is the remote attribute backing the column. Empty for
	// the synthetic row identifier and document columns.
	Attribute string `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	// Indexes names the secondary indexes this attribute is a key of.
	Indexes []string `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// TableDefinition is the import surface for one remote table: its key
// schema plus the host columns generated for it.
type TableDefinition struct {
	// Name is the host-side table name.
	Name string `json:"name" yaml:"name"`
	// Schema is the remote key layout the columns were derived from.
	Schema KeySchema `json:"schema" yaml:"schema"`
	// Columns lists the generated columns: row identifier first, then
	// key attributes in schema order, then the document column.
	Columns []ColumnDefinition `json:"columns" yaml:"columns"`
}

// Column returns the named column and whether it exists.
func (t TableDefinition) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// Validate checks that the definition is usable: schema valid, column
// names unique, exactly one row identifier and one document column.
func (t TableDefinition) Validate() error {
	if err := t.Schema.Validate(); err != nil {
		return err
	}
	if t.Name == "" {
		return fmt.Errorf("types: table definition for %s missing host name", t.Schema.TableName)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	var rowIDs, documents int
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("types: table %s has an unnamed column", t.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("types: table %s has duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
		switch c.Role {
		case RoleRowID:
			rowIDs++
		case RoleDocument:
			documents++
		case RolePartitionKey, RoleSortKey, RoleIndexKey:
			if c.Attribute == "" {
				return fmt.Errorf("types: key column %s.%s missing remote attribute", t.Name, c.Name)
			}
		default:
			return fmt.Errorf("types: column %s.%s has unknown role %q", t.Name, c.Name, c.Role)
		}
	}
	if rowIDs != 1 {
		return fmt.Errorf("types: table %s must have exactly one row identifier column, found %d", t.Name, rowIDs)
	}
	if documents != 1 {
		return fmt.Errorf("types: table %s must have exactly one document column, found %d", t.Name, documents)
	}
	return nil
}
