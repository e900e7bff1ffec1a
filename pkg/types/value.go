// Package types provides the core data types shared by the Quarry
// planner, executor, and write path: attribute values, items, key
// schemas, predicates, and table definitions.
package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

const (
	// KindNull is the absent value. It is distinct from a missing attribute.
	KindNull Kind = iota
	// KindString holds UTF-8 text.
	KindString
	// KindNumber holds an arbitrary-precision decimal kept in its
	// original text form.
	KindNumber
	// KindBool holds true or false.
	KindBool
	// KindBinary holds an opaque byte sequence.
	KindBinary
	// KindList holds an ordered sequence of values.
	KindList
	// KindMap holds a nested attribute map.
	KindMap
	// KindStringSet holds a set of unique strings.
	KindStringSet
	// KindNumberSet holds a set of unique decimal numbers.
	KindNumberSet
)

// String returns the remote store's shorthand for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindString:
		return "S"
	case KindNumber:
		return "N"
	case KindBool:
		return "BOOL"
	case KindBinary:
		return "B"
	case KindList:
		return "L"
	case KindMap:
		return "M"
	case KindStringSet:
		return "SS"
	case KindNumberSet:
		return "NS"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Value is a single remote attribute value. Numbers are stored as
// decimal text so that precision survives a round trip through the
// engine; comparisons parse the text on demand.
//
// The zero Value is Null.
type Value struct {
	kind Kind
	str  string
	b    bool
	bin  []byte
	list []Value
	m    map[string]Value
	set  []string
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a number value from its decimal text form. The text
// is not validated here; Compare and JSON encoding report malformed
// numbers when they are first used.
func Number(text string) Value { return Value{kind: KindNumber, str: text} }

// NumberFromInt returns a number value for i.
func NumberFromInt(i int64) Value { return Value{kind: KindNumber, str: fmt.Sprintf("%d", i)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Binary returns a binary value. The slice is not copied.
func Binary(b []byte) Value { return Value{kind: KindBinary, bin: b} }

// ListOf returns a list value holding vs in order.
func ListOf(vs ...Value) Value { return Value{kind: KindList, list: vs} }

// MapOf returns a map value holding m. The map is not copied.
func MapOf(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// StringSet returns a string-set value. Members are kept in the order
// given; sets encode to JSON in sorted order.
func StringSet(members ...string) Value { return Value{kind: KindStringSet, set: members} }

// NumberSet returns a number-set value from decimal text members.
func NumberSet(members ...string) Value { return Value{kind: KindNumberSet, set: members} }

// Kind reports the dynamic type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the string content for KindString and the decimal text
// for KindNumber. It returns "" for other kinds.
func (v Value) Text() string {
	if v.kind == KindString || v.kind == KindNumber {
		return v.str
	}
	return ""
}

// BoolValue returns the boolean content, or false for other kinds.
func (v Value) BoolValue() bool { return v.kind == KindBool && v.b }

// Bytes returns the binary content, or nil for other kinds.
func (v Value) Bytes() []byte {
	if v.kind == KindBinary {
		return v.bin
	}
	return nil
}

// List returns the list elements, or nil for other kinds.
func (v Value) List() []Value {
	if v.kind == KindList {
		return v.list
	}
	return nil
}

// Map returns the nested map, or nil for other kinds.
func (v Value) Map() map[string]Value {
	if v.kind == KindMap {
		return v.m
	}
	return nil
}

// SetMembers returns the members of a string or number set, or nil for
// other kinds.
func (v Value) SetMembers() []string {
	if v.kind == KindStringSet || v.kind == KindNumberSet {
		return v.set
	}
	return nil
}

// Equal reports whether v and other hold the same kind and content.
// Numbers compare numerically, so Number("1.0") equals Number("1").
// Set membership is order-insensitive.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		if c, ok := compareNumbers(v.str, other.str); ok {
			return c == 0
		}
		return v.str == other.str
	case KindBool:
		return v.b == other.b
	case KindBinary:
		return bytes.Equal(v.bin, other.bin)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := other.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case KindStringSet, KindNumberSet:
		if len(v.set) != len(other.set) {
			return false
		}
		seen := make(map[string]struct{}, len(v.set))
		for _, s := range v.set {
			seen[s] = struct{}{}
		}
		for _, s := range other.set {
			if _, ok := seen[s]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders v against other. It returns -1, 0, or 1 and true when
// the pair is comparable: both strings, both numbers, or both binary.
// Any other pairing returns ok=false, which predicate evaluation
// treats as unknown.
func (v Value) Compare(other Value) (int, bool) {
	if v.kind != other.kind {
		return 0, false
	}
	switch v.kind {
	case KindString:
		return strings.Compare(v.str, other.str), true
	case KindNumber:
		return compareNumbers(v.str, other.str)
	case KindBinary:
		return bytes.Compare(v.bin, other.bin), true
	default:
		return 0, false
	}
}

// Less reports whether v orders before other. Incomparable pairs
// report false.
func (v Value) Less(other Value) bool {
	c, ok := v.Compare(other)
	return ok && c < 0
}

func compareNumbers(a, b string) (int, bool) {
	fa, okA := new(big.Float).SetString(a)
	fb, okB := new(big.Float).SetString(b)
	if !okA || !okB {
		return 0, false
	}
	return fa.Cmp(fb), true
}

// MarshalJSON encodes the value for row output and row identifiers.
// Numbers are emitted as bare JSON numbers when the decimal text is
// valid JSON, sets are emitted as sorted arrays, and binary values are
// base64 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if isJSONNumber(v.str) {
			return []byte(v.str), nil
		}
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindBinary:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.bin))
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	case KindStringSet:
		return json.Marshal(sortedCopy(v.set))
	case KindNumberSet:
		members := sortedCopy(v.set)
		parts := make([]json.RawMessage, 0, len(members))
		for _, m := range members {
			if isJSONNumber(m) {
				parts = append(parts, json.RawMessage(m))
				continue
			}
			quoted, err := json.Marshal(m)
			if err != nil {
				return nil, err
			}
			parts = append(parts, quoted)
		}
		return json.Marshal(parts)
	default:
		return nil, fmt.Errorf("types: cannot encode kind %s", v.kind)
	}
}

// UnmarshalJSON decodes a JSON value, mapping numbers to KindNumber
// with their original text preserved. Sets cannot be distinguished
// from lists in JSON and decode as lists.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("types: empty JSON value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var list []Value
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*v = Value{kind: KindList, list: list}
		return nil
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*v = Value{kind: KindMap, m: m}
		return nil
	default:
		if !isJSONNumber(string(data)) {
			return fmt.Errorf("types: invalid JSON value %q", data)
		}
		*v = Number(string(data))
		return nil
	}
}

// String renders the value for log lines and explain output.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindNumber:
		return v.str
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindBinary:
		return fmt.Sprintf("0x%x", v.bin)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(b)
	}
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	switch {
	case s[i] == '0':
		i++
	case s[i] >= '1' && s[i] <= '9':
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	default:
		return false
	}
	if i < len(s) && s[i] == '.' {
		i++
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return false
		}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return false
		}
	}
	return i == len(s)
}
