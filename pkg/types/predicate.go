package types

import (
	"fmt"
	"strings"
)

// Operator is a comparison the host engine can hand to the planner.
type Operator string

const (
	// OpEQ matches values equal to the operand.
	OpEQ Operator = "EQ"
	// OpIN matches values equal to any member of the operand list.
	OpIN Operator = "IN"
	// OpLT matches values ordered strictly before the operand.
	OpLT Operator = "LT"
	// OpLE matches values ordered before or equal to the operand.
	OpLE Operator = "LE"
	// OpGT matches values ordered strictly after the operand.
	OpGT Operator = "GT"
	// OpGE matches values ordered after or equal to the operand.
	OpGE Operator = "GE"
	// OpBETWEEN matches values between two operands inclusive.
	OpBETWEEN Operator = "BETWEEN"
	// OpPREFIX matches strings beginning with the operand.
	OpPREFIX Operator = "PREFIX"
)

// Predicate is one conjunct of the host engine's WHERE clause,
// restricted to the forms the planner understands. Which operand
// fields are set depends on the operator: Value for EQ, LT, LE, GT,
// GE, and PREFIX; Values for IN; Low and High for BETWEEN.
type Predicate struct {
	// Attribute is the remote attribute the predicate constrains.
	Attribute string
	// Operator selects the comparison.
	Operator Operator
	// Value is the operand for single-operand comparisons.
	Value Value
	// Values holds the IN operand list in host argument order.
	Values []Value
	// Low and High are the inclusive BETWEEN bounds.
	Low  Value
	High Value
}

// Eq returns an equality predicate on attr.
func Eq(attr string, v Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpEQ, Value: v}
}

// In returns a membership predicate on attr. The value order is
// preserved; queries fan out over the values in this order.
func In(attr string, vs ...Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpIN, Values: vs}
}

// Lt returns a strictly-less-than predicate on attr.
func Lt(attr string, v Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpLT, Value: v}
}

// Le returns a less-or-equal predicate on attr.
func Le(attr string, v Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpLE, Value: v}
}

// Gt returns a strictly-greater-than predicate on attr.
func Gt(attr string, v Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpGT, Value: v}
}

// Ge returns a greater-or-equal predicate on attr.
func Ge(attr string, v Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpGE, Value: v}
}

// Between returns an inclusive range predicate on attr.
func Between(attr string, low, high Value) Predicate {
	return Predicate{Attribute: attr, Operator: OpBETWEEN, Low: low, High: high}
}

// Prefix returns a string-prefix predicate on attr.
func Prefix(attr string, prefix string) Predicate {
	return Predicate{Attribute: attr, Operator: OpPREFIX, Value: String(prefix)}
}

// Validate checks that the operand fields match the operator.
func (p Predicate) Validate() error {
	if p.Attribute == "" {
		return fmt.Errorf("types: predicate missing attribute")
	}
	switch p.Operator {
	case OpEQ, OpLT, OpLE, OpGT, OpGE:
		return nil
	case OpPREFIX:
		if p.Value.Kind() != KindString {
			return fmt.Errorf("types: PREFIX operand on %s must be a string, got %s", p.Attribute, p.Value.Kind())
		}
		return nil
	case OpIN:
		if len(p.Values) == 0 {
			return fmt.Errorf("types: IN predicate on %s has no values", p.Attribute)
		}
		return nil
	case OpBETWEEN:
		return nil
	default:
		return fmt.Errorf("types: unknown operator %q on %s", p.Operator, p.Attribute)
	}
}

// String renders the predicate the way explain output shows it.
func (p Predicate) String() string {
	switch p.Operator {
	case OpEQ:
		return fmt.Sprintf("%s = %s", p.Attribute, p.Value)
	case OpLT:
		return fmt.Sprintf("%s < %s", p.Attribute, p.Value)
	case OpLE:
		return fmt.Sprintf("%s <= %s", p.Attribute, p.Value)
	case OpGT:
		return fmt.Sprintf("%s > %s", p.Attribute, p.Value)
	case OpGE:
		return fmt.Sprintf("%s >= %s", p.Attribute, p.Value)
	case OpBETWEEN:
		return fmt.Sprintf("%s BETWEEN %s AND %s", p.Attribute, p.Low, p.High)
	case OpPREFIX:
		return fmt.Sprintf("%s PREFIX %s", p.Attribute, p.Value)
	case OpIN:
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = v.String()
		}
		return fmt.Sprintf("%s IN (%s)", p.Attribute, strings.Join(parts, ", "))
	default:
		return fmt.Sprintf("%s %s ?", p.Attribute, p.Operator)
	}
}

// PartitionPushable reports whether the operator can drive partition
// selection: only exact matches can.
func (p Predicate) PartitionPushable() bool {
	return p.Operator == OpEQ || p.Operator == OpIN
}

// SortPushable reports whether the operator can narrow a sort key
// range on the remote store.
func (p Predicate) SortPushable() bool {
	switch p.Operator {
	case OpEQ, OpLT, OpLE, OpGT, OpGE, OpBETWEEN, OpPREFIX:
		return true
	default:
		return false
	}
}

// PrefixFromLike converts a SQL LIKE pattern to a literal prefix.
// Only patterns that are a literal followed by a single trailing "%"
// convert; any "_" wildcard or interior "%" makes the pattern
// unsupported and the second return is false. Escaped wildcards
// ("\%", "\_") are treated as literal characters.
func PrefixFromLike(pattern string) (string, bool) {
	stripped := strings.ReplaceAll(pattern, `\%`, "")
	stripped = strings.ReplaceAll(stripped, `\_`, "")
	if !strings.HasSuffix(stripped, "%") {
		return "", false
	}
	if strings.Contains(stripped, "_") {
		return "", false
	}
	if strings.Contains(stripped[:len(stripped)-1], "%") {
		return "", false
	}
	prefix := pattern[:len(pattern)-1]
	prefix = strings.ReplaceAll(prefix, `\%`, "%")
	prefix = strings.ReplaceAll(prefix, `\_`, "_")
	return prefix, true
}
