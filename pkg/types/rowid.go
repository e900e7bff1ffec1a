package types

import (
	"encoding/json"
	"fmt"
)

// RowID encodes a table key as the host-visible row identifier: a JSON
// object mapping key attribute names to their values, attributes in
// sorted order. The encoding is canonical, so the same key always
// yields the same identifier, and the identifier round-trips through
// ParseRowID for deletes addressed by it.
func RowID(key Key, schema KeySchema) (string, error) {
	if schema.PartitionAttr == "" {
		return "", fmt.Errorf("types: row identifier needs a partition key attribute")
	}
	fields := map[string]Value{schema.PartitionAttr: key.Partition}
	if schema.SortAttr != "" {
		if key.Sort == nil {
			return "", fmt.Errorf("types: table %s requires a sort key value", schema.TableName)
		}
		fields[schema.SortAttr] = *key.Sort
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("types: encode row identifier: %w", err)
	}
	return string(b), nil
}

// ParseRowID decodes a row identifier back into a table key using the
// attribute names from schema.
func ParseRowID(id string, schema KeySchema) (Key, error) {
	var fields map[string]Value
	if err := json.Unmarshal([]byte(id), &fields); err != nil {
		return Key{}, fmt.Errorf("types: decode row identifier %q: %w", id, err)
	}
	pv, ok := fields[schema.PartitionAttr]
	if !ok {
		return Key{}, fmt.Errorf("types: row identifier %q missing partition attribute %s", id, schema.PartitionAttr)
	}
	key := Key{Partition: pv}
	if schema.SortAttr != "" {
		sv, ok := fields[schema.SortAttr]
		if !ok {
			return Key{}, fmt.Errorf("types: row identifier %q missing sort attribute %s", id, schema.SortAttr)
		}
		key.Sort = &sv
	}
	return key, nil
}
