package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Item is one remote row: a mapping from attribute name to value.
// Iteration order of the underlying map is unspecified; callers that
// need a stable order use AttributeNames.
type Item map[string]Value

// AttributeNames returns the item's attribute names sorted
// lexicographically. Row encoding walks attributes in this order so
// that the same item always produces the same document text.
func (it Item) AttributeNames() []string {
	names := make([]string, 0, len(it))
	for name := range it {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of the item. Nested values share
// backing storage with the original.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// DocumentJSON renders the full item as canonical JSON: attributes in
// sorted order, sets as sorted arrays, numbers as bare JSON numbers.
func (it Item) DocumentJSON() (string, error) {
	b, err := json.Marshal(map[string]Value(it))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ItemFromJSON parses a JSON object into an item. It is the inverse of
// DocumentJSON up to the JSON value mapping: arrays decode as lists and
// never as sets, since JSON text does not distinguish them.
func ItemFromJSON(doc string) (Item, error) {
	var it Item
	if err := json.Unmarshal([]byte(doc), &it); err != nil {
		return nil, fmt.Errorf("types: document is not a JSON object: %w", err)
	}
	if it == nil {
		// JSON null leaves the map untouched.
		return nil, fmt.Errorf("types: document is not a JSON object")
	}
	return it, nil
}

// Key addresses a single item in the remote table. Sort is nil for
// tables without a sort key.
type Key struct {
	// Partition is the partition key value.
	Partition Value
	// Sort is the sort key value, nil when the table defines none.
	Sort *Value
}

// Equal reports whether two keys address the same item.
func (k Key) Equal(other Key) bool {
	if !k.Partition.Equal(other.Partition) {
		return false
	}
	if (k.Sort == nil) != (other.Sort == nil) {
		return false
	}
	if k.Sort == nil {
		return true
	}
	return k.Sort.Equal(*other.Sort)
}

// Attributes returns the key as an item using the attribute names from
// schema. It is the shape the remote store expects for point writes.
func (k Key) Attributes(schema KeySchema) Item {
	out := Item{schema.PartitionAttr: k.Partition}
	if k.Sort != nil && schema.SortAttr != "" {
		out[schema.SortAttr] = *k.Sort
	}
	return out
}

// KeyFromItem extracts the table key from a full item. The second
// return is false when the partition attribute, or the sort attribute
// on a table that requires one, is missing.
func KeyFromItem(it Item, schema KeySchema) (Key, bool) {
	pv, ok := it[schema.PartitionAttr]
	if !ok {
		return Key{}, false
	}
	key := Key{Partition: pv}
	if schema.SortAttr != "" {
		sv, ok := it[schema.SortAttr]
		if !ok {
			return Key{}, false
		}
		key.Sort = &sv
	}
	return key, true
}
