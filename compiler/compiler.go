package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quantadb/quantadb/ddl"
	"github.com/quantadb/quantadb/partition"
	"github.com/quantadb/quantadb/sqlast"
	"github.com/quantadb/quantadb/utils"
)

type (
	// Where is a compiled WHERE clause: full local key bounds plus the
	// residual filter over non-key fields. A nil inclusivity flag means the
	// default (start inclusive, end exclusive).
	Where struct {
		Start  []partition.KeyCell
		End    []partition.KeyCell
		Filter *sqlast.Expr

		StartInclusive *bool
		EndInclusive   *bool
	}

	// SubQuery is a compiled select restricted to a single quantum window.
	SubQuery struct {
		Select *sqlast.Select
		Table  *ddl.Table
		Where  Where
	}

	bound struct {
		op    sqlast.Op
		value int64
	}
)

// StartsInclusive resolves the lower inclusivity flag against its default.
func (w *Where) StartsInclusive() bool {
	return w.StartInclusive == nil || *w.StartInclusive
}

// EndsInclusive resolves the upper inclusivity flag against its default.
func (w *Where) EndsInclusive() bool {
	return w.EndInclusive != nil && *w.EndInclusive
}

// TimeRange returns the quantum field's bounds on this sub-query.
func (w *Where) TimeRange(quantumField string) (lo, hi int64) {
	for _, c := range w.Start {
		if c.Field == quantumField {
			lo = c.Value.(int64)
		}
	}
	for _, c := range w.End {
		if c.Field == quantumField {
			hi = c.Value.(int64)
		}
	}
	return lo, hi
}

// Compile validates a select's WHERE clause against the table's keys and
// expands it into one executable sub-query per quantum window it crosses,
// ascending in time. The select is marked executable on success.
func Compile(sel *sqlast.Select, tbl *ddl.Table, maxQuantaSpan int) ([]*SubQuery, error) {
	if sel.Executable {
		return nil, ErrAlreadyCompiled
	}
	if len(sel.Columns) == 0 {
		return nil, ErrFullTableScan
	}
	quantum := tbl.QuantumSpec()

	// Step A: flatten the AND chain into the working set.
	working := flattenAnd(sel.Where)

	// Step B: pull the quantum bounds out of the working set.
	var lower, upper *bound
	var residual []*sqlast.Expr
	for _, node := range working {
		if node.Op == sqlast.OpOr {
			if err := rejectQuantumUnderOr(node, quantum.Field); err != nil {
				return nil, err
			}
			residual = append(residual, node)
			continue
		}
		if node.Field != quantum.Field {
			residual = append(residual, node)
			continue
		}
		v, err := CoerceValue(ddl.TypeTimestamp, node.Value)
		if err != nil {
			return nil, fmt.Errorf("error coercing time bound: %w", err)
		}
		switch node.Op {
		case sqlast.OpGt, sqlast.OpGte:
			if lower != nil {
				return nil, ErrDuplicateLowerBound
			}
			lower = &bound{op: node.Op, value: v.(int64)}
		case sqlast.OpLt, sqlast.OpLte:
			if upper != nil {
				return nil, ErrDuplicateUpperBound
			}
			upper = &bound{op: node.Op, value: v.(int64)}
		default:
			// = and != on the quantum field stay behind as filters.
			residual = append(residual, node)
		}
	}
	if lower == nil {
		return nil, ErrNoLowerBound
	}
	if upper == nil {
		return nil, ErrNoUpperBound
	}
	if lower.value > upper.value {
		return nil, ErrLowerBoundGTUpper
	}
	if lower.value == upper.value && lower.op == sqlast.OpGt && upper.op == sqlast.OpLt {
		return nil, ErrDegenerateRange
	}

	// Step C: every other local key field needs an equality binding.
	bindings := make(map[string]*sqlast.Expr)
	for _, name := range tbl.LocalKey {
		if name == quantum.Field {
			continue
		}
		leaf, rest, err := takeKeyBinding(residual, name)
		if err != nil {
			return nil, err
		}
		bindings[name] = leaf
		residual = rest
	}

	// Step D: type the survivors and reassemble the residual filter.
	for _, node := range residual {
		if err := typeExpr(tbl, node); err != nil {
			return nil, err
		}
	}
	filter := joinAnd(residual)

	// Step E: the local key bounds, in local key order.
	var startCells, endCells []partition.KeyCell
	for _, name := range tbl.LocalKey {
		if name == quantum.Field {
			startCells = append(startCells, partition.KeyCell{Field: name, Type: ddl.TypeTimestamp, Value: lower.value})
			endCells = append(endCells, partition.KeyCell{Field: name, Type: ddl.TypeTimestamp, Value: upper.value})
			continue
		}
		leaf := bindings[name]
		ft, err := tbl.FieldType(leaf.Field)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err.Error())
		}
		v, err := CoerceValue(ft, leaf.Value)
		if err != nil {
			return nil, err
		}
		cell := partition.KeyCell{Field: name, Type: ft, Value: v}
		startCells = append(startCells, cell)
		endCells = append(endCells, cell)
	}

	where := Where{
		Start:  startCells,
		End:    endCells,
		Filter: filter,
	}
	if lower.op == sqlast.OpGt {
		where.StartInclusive = utils.Ptr(false)
	}
	if upper.op == sqlast.OpLte {
		where.EndInclusive = utils.Ptr(true)
	}

	// Step F: expand across quantum windows.
	subs, err := expand(sel, tbl, quantum, where, lower.value, upper.value, maxQuantaSpan)
	if err != nil {
		return nil, err
	}

	sel.Executable = true
	return subs, nil
}

// expand splits a compiled WHERE into one copy per quantum window between
// its time bounds. The first copy keeps the original lower inclusivity, the
// last the original upper inclusivity, interior copies keep the defaults.
func expand(sel *sqlast.Select, tbl *ddl.Table, quantum *ddl.Quantum, where Where, lo, hi int64, maxQuantaSpan int) ([]*SubQuery, error) {
	boundaries := partition.BoundariesBetween(quantum, lo, hi)
	k := 1 + len(boundaries)
	if k > maxQuantaSpan {
		return nil, &TooManySubQueriesError{N: k}
	}
	if k == 1 {
		return []*SubQuery{{Select: sel, Table: tbl, Where: where}}, nil
	}

	edges := make([]int64, 0, k+1)
	edges = append(edges, lo)
	edges = append(edges, boundaries...)
	edges = append(edges, hi)

	subs := make([]*SubQuery, 0, k)
	for i := 0; i < k; i++ {
		w := Where{
			Start:  replaceTimeCell(where.Start, quantum.Field, edges[i]),
			End:    replaceTimeCell(where.End, quantum.Field, edges[i+1]),
			Filter: where.Filter,
		}
		if i == 0 {
			w.StartInclusive = where.StartInclusive
		}
		if i == k-1 {
			w.EndInclusive = where.EndInclusive
		}
		subs = append(subs, &SubQuery{Select: sel, Table: tbl, Where: w})
	}
	return subs, nil
}

func replaceTimeCell(cells []partition.KeyCell, field string, value int64) []partition.KeyCell {
	out := make([]partition.KeyCell, len(cells))
	copy(out, cells)
	for i := range out {
		if out[i].Field == field {
			out[i].Value = value
		}
	}
	return out
}

// flattenAnd splits a right-associative AND chain into its conjuncts. OR
// subtrees stay whole.
func flattenAnd(e *sqlast.Expr) []*sqlast.Expr {
	if e == nil {
		return nil
	}
	if e.Op != sqlast.OpAnd {
		return []*sqlast.Expr{e}
	}
	return append(flattenAnd(e.Lhs), flattenAnd(e.Rhs)...)
}

// joinAnd reassembles conjuncts into a right-associative AND tree.
func joinAnd(exprs []*sqlast.Expr) *sqlast.Expr {
	if len(exprs) == 0 {
		return nil
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &sqlast.Expr{
		Op:  sqlast.OpAnd,
		Lhs: exprs[0],
		Rhs: joinAnd(exprs[1:]),
	}
}

// rejectQuantumUnderOr walks an OR subtree and fails if any OR node
// directly holds a comparison on the quantum field.
func rejectQuantumUnderOr(e *sqlast.Expr, quantumField string) error {
	if e == nil || e.Op.IsComparison() {
		return nil
	}
	for _, child := range []*sqlast.Expr{e.Lhs, e.Rhs} {
		if child == nil {
			continue
		}
		if e.Op == sqlast.OpOr && child.Op.IsComparison() && child.Field == quantumField {
			return ErrTimeBoundsMustUseAnd
		}
		if err := rejectQuantumUnderOr(child, quantumField); err != nil {
			return err
		}
	}
	return nil
}

// takeKeyBinding finds the equality binding for a key field among the
// top-level conjuncts and removes it.
func takeKeyBinding(working []*sqlast.Expr, field string) (*sqlast.Expr, []*sqlast.Expr, error) {
	var wrongOp sqlast.Op
	for i, node := range working {
		if !node.Op.IsComparison() || node.Field != field {
			continue
		}
		if node.Op == sqlast.OpEq {
			rest := make([]*sqlast.Expr, 0, len(working)-1)
			rest = append(rest, working[:i]...)
			rest = append(rest, working[i+1:]...)
			return node, rest, nil
		}
		if wrongOp == "" {
			wrongOp = node.Op
		}
	}
	if wrongOp != "" {
		return nil, nil, &KeyFieldOpError{Field: field, Op: wrongOp}
	}
	return nil, nil, &MissingKeyFieldError{Field: field}
}

// typeExpr resolves field types through the DDL and coerces literals, in
// place, across a residual expression tree.
func typeExpr(tbl *ddl.Table, e *sqlast.Expr) error {
	if e == nil {
		return nil
	}
	if !e.Op.IsComparison() {
		if err := typeExpr(tbl, e.Lhs); err != nil {
			return err
		}
		return typeExpr(tbl, e.Rhs)
	}
	ft, err := tbl.FieldType(e.Field)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, err.Error())
	}
	v, err := CoerceValue(ft, e.Value)
	if err != nil {
		return err
	}
	e.Type = string(ft)
	e.Value = v
	return nil
}

// CoerceValue normalises a literal into the Go representation of its
// declared type. Boolean literals are accepted case-insensitively as
// "true"/"false".
func CoerceValue(t ddl.FieldType, v any) (any, error) {
	switch t {
	case ddl.TypeSint64, ddl.TypeTimestamp:
		switch iv := v.(type) {
		case int64:
			return iv, nil
		case int:
			return int64(iv), nil
		case float64:
			return int64(iv), nil
		case string:
			parsed, err := strconv.ParseInt(iv, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidQuery, iv)
			}
			return parsed, nil
		}
	case ddl.TypeDouble:
		switch fv := v.(type) {
		case float64:
			return fv, nil
		case int64:
			return float64(fv), nil
		case int:
			return float64(fv), nil
		case string:
			parsed, err := strconv.ParseFloat(fv, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q is not a double", ErrInvalidQuery, fv)
			}
			return parsed, nil
		}
	case ddl.TypeVarchar:
		if sv, ok := v.(string); ok {
			return sv, nil
		}
	case ddl.TypeBoolean:
		switch bv := v.(type) {
		case bool:
			return bv, nil
		case string:
			switch strings.ToLower(bv) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidQuery, bv)
		}
	}
	return nil, fmt.Errorf("%w: cannot use %T as %s", ErrInvalidQuery, v, t)
}
