package types

import "fmt"

// IndexKind distinguishes the two secondary index flavors the remote
// store offers.
type IndexKind string

const (
	// IndexLocal shares the table's partition key and adds an
	// alternate sort key.
	IndexLocal IndexKind = "local"
	// IndexGlobal has its own partition key and, optionally, its own
	// sort key.
	IndexGlobal IndexKind = "global"
)

// IndexDef describes one secondary index on a remote table.
type IndexDef struct {
	// Name is the index name as the remote store knows it.
	Name string `json:"name" yaml:"name"`
	// Kind is local or global.
	Kind IndexKind `json:"kind" yaml:"kind"`
	// PartitionAttr is the index partition key attribute. Empty for
	// local indexes, which share the table's partition key.
	PartitionAttr string `json:"partition_attr,omitempty" yaml:"partition_attr,omitempty"`
	// SortAttr is the index sort key attribute. Required for local
	// indexes, optional for global ones.
	SortAttr string `json:"sort_attr,omitempty" yaml:"sort_attr,omitempty"`
	// FullProjection reports whether the index carries every item
	// attribute. Only fully projected indexes are usable, otherwise
	// rows read through the index would be missing attributes.
	FullProjection bool `json:"full_projection" yaml:"full_projection"`
}

// EffectivePartitionAttr returns the attribute that selects a
// partition when querying through this index.
func (ix IndexDef) EffectivePartitionAttr(table KeySchema) string {
	if ix.Kind == IndexLocal {
		return table.PartitionAttr
	}
	return ix.PartitionAttr
}

// KeySchema is the key layout of one remote table: the table keys plus
// any secondary indexes, in the order the remote store reported them.
type KeySchema struct {
	// TableName is the remote table name.
	TableName string `json:"table_name" yaml:"table_name"`
	// PartitionAttr is the table partition key attribute.
	PartitionAttr string `json:"partition_attr" yaml:"partition_attr"`
	// SortAttr is the table sort key attribute, empty when the table
	// has none.
	SortAttr string `json:"sort_attr,omitempty" yaml:"sort_attr,omitempty"`
	// Indexes lists secondary indexes in discovery order. The planner
	// breaks ranking ties by this order, so it is part of plan
	// stability.
	Indexes []IndexDef `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// HasSortKey reports whether the table defines a sort key.
func (s KeySchema) HasSortKey() bool { return s.SortAttr != "" }

// Index returns the named index and whether it exists.
func (s KeySchema) Index(name string) (IndexDef, bool) {
	for _, ix := range s.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return IndexDef{}, false
}

// KeyAttributes returns every attribute that participates in the table
// key or a fully projected index key, deduplicated, in first-seen
// order. Schema import exposes exactly these as dedicated columns.
func (s KeySchema) KeyAttributes() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(attr string) {
		if attr == "" {
			return
		}
		if _, ok := seen[attr]; ok {
			return
		}
		seen[attr] = struct{}{}
		out = append(out, attr)
	}
	add(s.PartitionAttr)
	add(s.SortAttr)
	for _, ix := range s.Indexes {
		if !ix.FullProjection {
			continue
		}
		add(ix.PartitionAttr)
		add(ix.SortAttr)
	}
	return out
}

// Validate checks the schema's internal consistency.
func (s KeySchema) Validate() error {
	if s.TableName == "" {
		return fmt.Errorf("types: key schema missing table name")
	}
	if s.PartitionAttr == "" {
		return fmt.Errorf("types: table %s missing partition key attribute", s.TableName)
	}
	names := make(map[string]struct{}, len(s.Indexes))
	for _, ix := range s.Indexes {
		if ix.Name == "" {
			return fmt.Errorf("types: table %s has an unnamed index", s.TableName)
		}
		if _, dup := names[ix.Name]; dup {
			return fmt.Errorf("types: table %s has duplicate index %s", s.TableName, ix.Name)
		}
		names[ix.Name] = struct{}{}
		switch ix.Kind {
		case IndexLocal:
			if ix.PartitionAttr != "" {
				return fmt.Errorf("types: local index %s.%s must not declare a partition key", s.TableName, ix.Name)
			}
			if ix.SortAttr == "" {
				return fmt.Errorf("types: local index %s.%s missing sort key attribute", s.TableName, ix.Name)
			}
		case IndexGlobal:
			if ix.PartitionAttr == "" {
				return fmt.Errorf("types: global index %s.%s missing partition key attribute", s.TableName, ix.Name)
			}
		default:
			return fmt.Errorf("types: index %s.%s has unknown kind %q", s.TableName, ix.Name, ix.Kind)
		}
	}
	return nil
}
