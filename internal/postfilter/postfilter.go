// Package postfilter enforces leftover predicates against fetched
// items and decodes items into host-shaped rows. It is the single
// place where non-pushable predicates are evaluated, with the same
// three-valued semantics the host engine applies, so pushdown never
// changes result membership.
package postfilter

import (
	"strings"

	"github.com/quarrydb/quarry/pkg/types"
)

// Tristate is a three-valued truth value.
type Tristate uint8

const (
	False Tristate = iota
	True
	Unknown
)

func (t Tristate) String() string {
	switch t {
	case False:
		return "false"
	case True:
		return "true"
	default:
		return "unknown"
	}
}

// Eval evaluates one predicate against an item. A missing attribute, a
// null on either side, or an incomparable kind pairing yields Unknown.
func Eval(pred types.Predicate, item types.Item) Tristate {
	v, ok := item[pred.Attribute]
	if !ok || v.IsNull() {
		return Unknown
	}

	switch pred.Operator {
	case types.OpEQ:
		return equal(v, pred.Value)
	case types.OpIN:
		// x IN (a, b) is x = a OR x = b: any True wins, otherwise any
		// Unknown taints the result.
		result := False
		for _, member := range pred.Values {
			switch equal(v, member) {
			case True:
				return True
			case Unknown:
				result = Unknown
			}
		}
		return result
	case types.OpLT:
		return ordered(v, pred.Value, func(c int) bool { return c < 0 })
	case types.OpLE:
		return ordered(v, pred.Value, func(c int) bool { return c <= 0 })
	case types.OpGT:
		return ordered(v, pred.Value, func(c int) bool { return c > 0 })
	case types.OpGE:
		return ordered(v, pred.Value, func(c int) bool { return c >= 0 })
	case types.OpBETWEEN:
		lo, okLo := v.Compare(pred.Low)
		hi, okHi := v.Compare(pred.High)
		if !okLo || !okHi {
			return Unknown
		}
		if lo >= 0 && hi <= 0 {
			return True
		}
		return False
	case types.OpPREFIX:
		if v.Kind() != types.KindString || pred.Value.Kind() != types.KindString {
			return Unknown
		}
		if strings.HasPrefix(v.Text(), pred.Value.Text()) {
			return True
		}
		return False
	default:
		return Unknown
	}
}

// Passes reports whether the item satisfies every predicate. Rows
// evaluating Unknown on any predicate are dropped, exactly as a WHERE
// clause drops them.
func Passes(preds []types.Predicate, item types.Item) bool {
	for _, p := range preds {
		if Eval(p, item) != True {
			return false
		}
	}
	return true
}

func equal(v, operand types.Value) Tristate {
	if operand.IsNull() {
		return Unknown
	}
	if v.Kind() != operand.Kind() {
		return Unknown
	}
	if v.Equal(operand) {
		return True
	}
	return False
}

func ordered(v, operand types.Value, holds func(int) bool) Tristate {
	c, ok := v.Compare(operand)
	if !ok {
		return Unknown
	}
	if holds(c) {
		return True
	}
	return False
}
