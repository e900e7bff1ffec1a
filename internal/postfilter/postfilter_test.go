package postfilter

import (
	"testing"

	"github.com/quarrydb/quarry/pkg/types"
)

func TestEval(t *testing.T) {
	item := types.Item{
		"customer_id": types.String("c1"),
		"total":       types.Number("5"),
		"active":      types.Bool(true),
		"note":        types.Null(),
	}

	tests := []struct {
		name string
		pred types.Predicate
		want Tristate
	}{
		{"eq match", types.Eq("customer_id", types.String("c1")), True},
		{"eq mismatch", types.Eq("customer_id", types.String("c2")), False},
		{"eq missing attribute", types.Eq("color", types.String("red")), Unknown},
		{"eq null attribute", types.Eq("note", types.String("x")), Unknown},
		{"eq null operand", types.Eq("customer_id", types.Null()), Unknown},
		{"eq kind mismatch", types.Eq("customer_id", types.Number("1")), Unknown},
		{"eq bool", types.Eq("active", types.Bool(true)), True},
		{"in member", types.In("customer_id", types.String("c2"), types.String("c1")), True},
		{"in no member", types.In("customer_id", types.String("c2"), types.String("c3")), False},
		{"in kind mismatch taints", types.In("customer_id", types.Number("1"), types.String("c9")), Unknown},
		{"lt numeric", types.Lt("total", types.Number("10")), True},
		{"lt numeric false", types.Lt("total", types.Number("5")), False},
		{"le numeric boundary", types.Le("total", types.Number("5.0")), True},
		{"gt string", types.Gt("customer_id", types.String("b")), True},
		{"ge kind mismatch", types.Ge("total", types.String("10")), Unknown},
		{"between inside", types.Between("total", types.Number("1"), types.Number("10")), True},
		{"between low boundary", types.Between("total", types.Number("5"), types.Number("10")), True},
		{"between high boundary", types.Between("total", types.Number("1"), types.Number("5")), True},
		{"between outside", types.Between("total", types.Number("6"), types.Number("10")), False},
		{"between kind mismatch", types.Between("total", types.String("a"), types.String("z")), Unknown},
		{"prefix match", types.Prefix("customer_id", "c"), True},
		{"prefix mismatch", types.Prefix("customer_id", "d"), False},
		{"prefix on number", types.Prefix("total", "5"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eval(tt.pred, item); got != tt.want {
				t.Errorf("Eval(%s) = %s, want %s", tt.pred, got, tt.want)
			}
		})
	}
}

func TestEvalNumericNotLexical(t *testing.T) {
	item := types.Item{"total": types.Number("5")}

	// Lexically "5" > "10"; numerically 5 < 10. Numbers must compare
	// numerically.
	if got := Eval(types.Lt("total", types.Number("10")), item); got != True {
		t.Errorf("expected numeric comparison, got %s", got)
	}
}

func TestPasses(t *testing.T) {
	item := types.Item{
		"customer_id": types.String("c1"),
		"total":       types.Number("5"),
	}

	if !Passes(nil, item) {
		t.Error("empty predicate list must pass")
	}
	if !Passes([]types.Predicate{
		types.Eq("customer_id", types.String("c1")),
		types.Lt("total", types.Number("10")),
	}, item) {
		t.Error("all-true predicates must pass")
	}
	if Passes([]types.Predicate{
		types.Eq("customer_id", types.String("c1")),
		types.Eq("total", types.Number("99")),
	}, item) {
		t.Error("a false predicate must drop the row")
	}
	if Passes([]types.Predicate{
		types.Eq("missing", types.String("x")),
	}, item) {
		t.Error("an unknown predicate must drop the row")
	}
}
