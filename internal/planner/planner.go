// Package planner classifies host predicates against a remote table's
// key schema and selects the access path a read will use.
package planner

import (
	"fmt"

	"github.com/quarrydb/quarry/internal/errors"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/types"
)

// PathKind says whether rows come from key-addressed queries or a
// segmented scan.
type PathKind string

const (
	KindQuery PathKind = "QUERY"
	KindScan  PathKind = "SCAN"
)

// AccessPath is the single way a read reaches the table's rows.
type AccessPath struct {
	// Kind selects query or scan execution.
	Kind PathKind

	// Index is the secondary index the query runs through, empty for
	// the base table.
	Index string

	// PartitionAttr and PartitionValues select partitions. More than
	// one value is an IN disjunction: execution runs one native query
	// per value, strictly in this order.
	PartitionAttr   string
	PartitionValues []types.Value

	// Sort optionally narrows the sort key range.
	Sort *remote.SortCondition

	// SegmentCount is the scan parallelism. Zero for query paths.
	SegmentCount int
}

// Plan is the selected access path plus everything the post-filter
// must still enforce.
type Plan struct {
	// Table is the remote table name.
	Table string

	// Schema is the key layout the plan was built against.
	Schema types.KeySchema

	// Path is the winning access path.
	Path AccessPath

	// Leftover holds the predicates not consumed by the path, in
	// caller order. They are evaluated locally against every fetched
	// row; no predicate is ever dropped.
	Leftover []types.Predicate
}

// Planner builds plans for one table.
type Planner struct {
	schema       types.KeySchema
	segmentCount int
	allowScan    bool
}

// NewPlanner creates a planner for the given key schema. segmentCount
// is the parallelism a scan path will carry; allowScan false rejects
// plans that would need a full scan.
func NewPlanner(schema types.KeySchema, segmentCount int, allowScan bool) (*Planner, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	if segmentCount < 1 {
		return nil, fmt.Errorf("planner: segment count must be positive, got %d", segmentCount)
	}
	return &Planner{
		schema:       schema,
		segmentCount: segmentCount,
		allowScan:    allowScan,
	}, nil
}

// Plan classifies the predicates and selects the best access path.
// Candidates are ranked: a table-key query with a sort condition, then
// a table-key query without one, then an index query with a sort
// condition, then an index query without one, then scan. Ties fall to
// discovery order, which makes planning deterministic for a given
// schema and predicate list.
func (p *Planner) Plan(predicates []types.Predicate) (*Plan, error) {
	for _, pred := range predicates {
		if err := pred.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCategoryPlan, errors.CodeUnsupportedPredicate, "unusable predicate", err)
		}
	}

	candidates := p.classify(predicates)

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.rank > best.rank {
			best = c
		}
	}

	if best.path.Kind == KindScan && !p.allowScan {
		return nil, errors.NewPlanError(errors.CodeInvalidAccessPath,
			fmt.Sprintf("table %s: no key predicate usable for a query and scans are disabled", p.schema.TableName))
	}

	var leftover []types.Predicate
	for i, pred := range predicates {
		if _, used := best.matched[i]; !used {
			leftover = append(leftover, pred)
		}
	}

	return &Plan{
		Table:    p.schema.TableName,
		Schema:   p.schema,
		Path:     best.path,
		Leftover: leftover,
	}, nil
}

// Candidate ranks, highest first: 4 table query with sort, 3 table
// query, 2 index query with sort, 1 index query, 0 scan. "Table query"
// means the partition is selected through the table's own key, even
// when a local index supplies the sort condition.
type candidate struct {
	path    AccessPath
	matched map[int]struct{}
	rank    int
}

// classify produces candidates in discovery order: the base table
// first, then global indexes in declaration order, then the scan
// fallback.
func (p *Planner) classify(predicates []types.Predicate) []candidate {
	var candidates []candidate

	if c, ok := p.tableCandidate(predicates); ok {
		candidates = append(candidates, c)
	}

	for _, ix := range p.schema.Indexes {
		if ix.Kind != types.IndexGlobal || !ix.FullProjection {
			continue
		}
		if c, ok := p.indexCandidate(ix, predicates); ok {
			candidates = append(candidates, c)
		}
	}

	candidates = append(candidates, candidate{
		path: AccessPath{Kind: KindScan, SegmentCount: p.segmentCount},
	})
	return candidates
}

// tableCandidate builds the base-table query candidate: a partition
// condition on the table partition key, plus a sort condition from the
// table sort key or, when that key is not constrained, from the first
// local index whose sort key is.
func (p *Planner) tableCandidate(predicates []types.Predicate) (candidate, bool) {
	c, ok := partitionCandidate(p.schema.PartitionAttr, "", predicates)
	if !ok {
		return candidate{}, false
	}

	if !attachSort(&c, predicates, p.schema.SortAttr, "") {
		for _, ix := range p.schema.Indexes {
			if ix.Kind != types.IndexLocal || !ix.FullProjection {
				continue
			}
			if attachSort(&c, predicates, ix.SortAttr, ix.Name) {
				break
			}
		}
	}

	if c.path.Sort != nil {
		c.rank = 4
	} else {
		c.rank = 3
	}
	return c, true
}

// indexCandidate builds a query candidate through a global index.
func (p *Planner) indexCandidate(ix types.IndexDef, predicates []types.Predicate) (candidate, bool) {
	c, ok := partitionCandidate(ix.PartitionAttr, ix.Name, predicates)
	if !ok {
		return candidate{}, false
	}

	attachSort(&c, predicates, ix.SortAttr, "")

	if c.path.Sort != nil {
		c.rank = 2
	} else {
		c.rank = 1
	}
	return c, true
}

// partitionCandidate finds the first EQ or IN predicate on attr and
// seeds a query candidate from it. IN values keep their order with
// duplicates removed, so fan-out never queries the same partition
// twice.
func partitionCandidate(attr, index string, predicates []types.Predicate) (candidate, bool) {
	if attr == "" {
		return candidate{}, false
	}
	for i, pred := range predicates {
		if pred.Attribute != attr || !pred.PartitionPushable() {
			continue
		}
		var values []types.Value
		if pred.Operator == types.OpEQ {
			values = []types.Value{pred.Value}
		} else {
			values = dedupValues(pred.Values)
		}
		return candidate{
			path: AccessPath{
				Kind:            KindQuery,
				Index:           index,
				PartitionAttr:   attr,
				PartitionValues: values,
			},
			matched: map[int]struct{}{i: {}},
		}, true
	}
	return candidate{}, false
}

// attachSort attaches the first sort-pushable predicate on attr to the
// candidate. Only one sort condition is ever pushed; later predicates
// on the same key stay leftover. index, when non-empty, names the
// local index the query must run through for this sort key.
func attachSort(c *candidate, predicates []types.Predicate, attr, index string) bool {
	if attr == "" {
		return false
	}
	for i, pred := range predicates {
		if _, used := c.matched[i]; used {
			continue
		}
		if pred.Attribute != attr || !pred.SortPushable() {
			continue
		}
		c.path.Sort = &remote.SortCondition{
			Attr:     attr,
			Operator: pred.Operator,
			Value:    pred.Value,
			Low:      pred.Low,
			High:     pred.High,
		}
		if index != "" {
			c.path.Index = index
		}
		c.matched[i] = struct{}{}
		return true
	}
	return false
}

func dedupValues(values []types.Value) []types.Value {
	out := make([]types.Value, 0, len(values))
	for _, v := range values {
		dup := false
		for _, seen := range out {
			if seen.Equal(v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}
