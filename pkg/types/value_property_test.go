package types

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ValueOrdering checks that Compare behaves like a total
// order within the comparable kinds.
func TestProperty_ValueOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("string comparison is antisymmetric", prop.ForAll(
		func(a, b string) bool {
			ab, ok1 := String(a).Compare(String(b))
			ba, ok2 := String(b).Compare(String(a))
			return ok1 && ok2 && ab == -ba
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("number comparison matches integer ordering", prop.ForAll(
		func(a, b int64) bool {
			va := Number(strconv.FormatInt(a, 10))
			vb := Number(strconv.FormatInt(b, 10))
			c, ok := va.Compare(vb)
			if !ok {
				return false
			}
			switch {
			case a < b:
				return c < 0
			case a > b:
				return c > 0
			default:
				return c == 0
			}
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.Property("equal values compare as zero", prop.ForAll(
		func(s string) bool {
			c, ok := String(s).Compare(String(s))
			return ok && c == 0 && String(s).Equal(String(s))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_ValueJSONRoundTrip checks that scalar values survive a
// trip through their JSON encoding with equality preserved.
func TestProperty_ValueJSONRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	roundTrip := func(v Value) (Value, bool) {
		b, err := json.Marshal(v)
		if err != nil {
			return Value{}, false
		}
		var out Value
		if err := json.Unmarshal(b, &out); err != nil {
			return Value{}, false
		}
		return out, true
	}

	properties.Property("strings round trip", prop.ForAll(
		func(s string) bool {
			out, ok := roundTrip(String(s))
			return ok && out.Equal(String(s))
		},
		gen.AnyString(),
	))

	properties.Property("integer numbers round trip with exact text", prop.ForAll(
		func(n int64) bool {
			text := strconv.FormatInt(n, 10)
			out, ok := roundTrip(Number(text))
			return ok && out.Kind() == KindNumber && out.Text() == text
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// TestProperty_RowIDRoundTrip checks that any string-keyed row
// identifier parses back to the key it was built from.
func TestProperty_RowIDRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	schema := KeySchema{TableName: "t", PartitionAttr: "pk", SortAttr: "sk"}

	properties.Property("identifiers parse back to the original key", prop.ForAll(
		func(p string, s int64) bool {
			sort := NumberFromInt(s)
			key := Key{Partition: String(p), Sort: &sort}
			id, err := RowID(key, schema)
			if err != nil {
				return false
			}
			parsed, err := ParseRowID(id, schema)
			if err != nil {
				return false
			}
			return parsed.Equal(key)
		},
		gen.AnyString(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
