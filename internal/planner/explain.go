package planner

import (
	"fmt"

	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// Describe renders the access path as indented text lines for EXPLAIN
// output. region may be empty when the store is not a remote endpoint.
func (p *Plan) Describe(region string) []string {
	if p.Path.Kind == KindScan {
		lines := []string{fmt.Sprintf("Quarry: parallel scan provider; %d concurrent segments", p.Path.SegmentCount)}
		lines = append(lines, indent(paginatedLines(scanLine(p.Table, region)))...)
		return lines
	}

	if len(p.Path.PartitionValues) > 1 {
		lines := []string{fmt.Sprintf("Quarry: consolidate %d query operations", len(p.Path.PartitionValues))}
		for i, v := range p.Path.PartitionValues {
			lines = append(lines, fmt.Sprintf("  query %d:", i))
			lines = append(lines, indent(indent(p.queryLines(region, v)))...)
		}
		return lines
	}

	return paginatedLines(p.queryLines(region, p.Path.PartitionValues[0])...)
}

func (p *Plan) queryLines(region string, partition types.Value) []string {
	lines := []string{fmt.Sprintf("Quarry: query table %s%s", p.Table, fromRegion(region))}
	if p.Path.Index != "" {
		lines = append(lines, fmt.Sprintf("  index: %s", p.Path.Index))
	}
	cond := fmt.Sprintf("%s = %s", p.Path.PartitionAttr, partition)
	if p.Path.Sort != nil {
		cond += " AND " + sortConditionText(p.Path.Sort)
	}
	lines = append(lines, fmt.Sprintf("  key condition: %s", cond))
	return lines
}

func scanLine(table, region string) string {
	return fmt.Sprintf("Quarry: scan table %s%s", table, fromRegion(region))
}

func paginatedLines(inner ...string) []string {
	lines := []string{"Quarry: pagination provider"}
	return append(lines, indent(inner)...)
}

// sortConditionText renders a sort condition the way the remote
// expression does, so EXPLAIN matches what actually runs.
func sortConditionText(sc *remote.SortCondition) string {
	switch sc.Operator {
	case types.OpBETWEEN:
		return fmt.Sprintf("%s BETWEEN %s AND %s", sc.Attr, sc.Low, sc.High)
	case types.OpPREFIX:
		return fmt.Sprintf("begins_with(%s, %s)", sc.Attr, sc.Value)
	default:
		return fmt.Sprintf("%s %s %s", sc.Attr, comparisonSymbol(sc.Operator), sc.Value)
	}
}

func comparisonSymbol(op types.Operator) string {
	switch op {
	case types.OpEQ:
		return "="
	case types.OpLT:
		return "<"
	case types.OpLE:
		return "<="
	case types.OpGT:
		return ">"
	case types.OpGE:
		return ">="
	default:
		return string(op)
	}
}

func fromRegion(region string) string {
	if region == "" {
		return ""
	}
	return fmt.Sprintf(" from %s", region)
}

func indent(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "  " + l
	}
	return out
}
