// Package filter implements a parallel filter engine: a declarative
// boolean expression over column rules, compiled once into predicate
// closures and executed across a worker pool that reserves row batches
// and output slots with atomic counters. The worker pool uses
// golang.org/x/sync/errgroup so a worker's error cancels the others
// instead of running them to completion first.
package filter

import (
	"strings"

	"github.com/logv/kruda/bstr"
	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/table"
	"github.com/logv/kruda/types"
)

// Operation names an expression rule's comparison.
type Operation string

const (
	OpContains            Operation = "CONTAINS"
	OpNotContains         Operation = "NOT_CONTAINS"
	OpIn                  Operation = "IN"
	OpNotIn               Operation = "NOT_IN"
	OpEqual               Operation = "EQUAL"
	OpNotEqual            Operation = "NOT_EQUAL"
	OpGreaterThan         Operation = "GREATER_THAN"
	OpGreaterThanOrEqual  Operation = "GREATER_THAN_OR_EQUAL"
	OpLessThan            Operation = "LESS_THAN"
	OpLessThanOrEqual     Operation = "LESS_THAN_OR_EQUAL"
	OpStartsWith          Operation = "STARTS_WITH"
	OpEndsWith            Operation = "ENDS_WITH"
)

// Mode selects how a two-level expression's clauses and rules compose.
type Mode int

const (
	DNF Mode = iota
	CNF
)

// ParseMode accepts the wire names for each mode, including the two
// long-form aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "dnf", "disjunctive_normal_form":
		return DNF, nil
	case "cnf", "conjunctive_normal_form":
		return CNF, nil
	default:
		return 0, errs.SchemaMismatch("unknown filter mode %q", s)
	}
}

// Rule is one leaf comparison: a column, an operation, and a value
// (a scalar for most operations, a slice for IN/NOT_IN).
type Rule struct {
	Field     string
	Operation Operation
	Value     interface{}
}

// Clause is a list of rules; Expression is a list of clauses, forming a
// two-level DNF/CNF structure.
type Clause []Rule
type Expression []Clause

// predicateFactory builds a rule's nullary closure against a specific
// cursor. Engine.Run calls this once per worker, each with its own
// cursor, so the cursor's current row index is exactly the one that
// worker is looking at.
type predicateFactory func(cursor *table.Cursor) (func() bool, error)

// Validate rejects an expression at compile time, before any worker
// starts: unknown columns, and operations incompatible with a column's
// type.
func Validate(source *table.Table, expr Expression) error {
	for _, clause := range expr {
		for _, rule := range clause {
			if _, err := ruleFactory(source, rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// CompileForCursor builds the predicate for expr/mode against cursor.
// Validate (or an earlier successful CompileForCursor call) must have
// already checked schema compatibility; this only re-derives per-cursor
// closures, which cannot fail once the first one has succeeded.
func CompileForCursor(source *table.Table, expr Expression, mode Mode, cursor *table.Cursor) (func() bool, error) {
	if len(expr) == 0 {
		return func() bool { return true }, nil
	}

	clausePredicates := make([]func() bool, len(expr))
	for ci, clause := range expr {
		rulePredicates := make([]func() bool, len(clause))
		for ri, rule := range clause {
			factory, err := ruleFactory(source, rule)
			if err != nil {
				return nil, err
			}
			p, err := factory(cursor)
			if err != nil {
				return nil, err
			}
			rulePredicates[ri] = p
		}
		clausePredicates[ci] = composeClause(rulePredicates, mode)
	}
	return composeExpression(clausePredicates, mode), nil
}

// composeClause: in DNF a clause is an AND of its rules; in CNF a
// clause is an OR.
func composeClause(rules []func() bool, mode Mode) func() bool {
	if mode == DNF {
		return func() bool {
			for _, r := range rules {
				if !r() {
					return false
				}
			}
			return true
		}
	}
	return func() bool {
		for _, r := range rules {
			if r() {
				return true
			}
		}
		return false
	}
}

// composeExpression: in DNF the expression is an OR of clauses; in CNF
// it is an AND. An empty expression is handled by CompileForCursor
// directly as the constant true.
func composeExpression(clauses []func() bool, mode Mode) func() bool {
	if mode == DNF {
		return func() bool {
			for _, c := range clauses {
				if c() {
					return true
				}
			}
			return false
		}
	}
	return func() bool {
		for _, c := range clauses {
			if !c() {
				return false
			}
		}
		return true
	}
}

// ruleFactory validates rule against source's schema and returns a
// predicateFactory that, given a cursor, builds the rule's nullary
// closure. The value conversion (numeric widening, BSTR literal
// construction, IN/NOT_IN list conversion) happens once here, not per
// row.
func ruleFactory(source *table.Table, rule Rule) (predicateFactory, error) {
	col, _, err := source.ColumnByName(rule.Field)
	if err != nil {
		return nil, err
	}
	typ, err := types.Lookup(col.TypeID)
	if err != nil {
		return nil, err
	}

	switch rule.Operation {
	case OpEqual, OpNotEqual:
		return equalityFactory(typ, rule)
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		if !typ.IsNumeric() {
			return nil, errs.SchemaMismatch("operation %s is not valid on column %q of type %s", rule.Operation, rule.Field, typ.Name)
		}
		return orderingFactory(typ, rule)
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		if typ.ID != types.BSTR {
			return nil, errs.SchemaMismatch("operation %s is only valid on BSTR columns, got %s for %q", rule.Operation, typ.Name, rule.Field)
		}
		return stringFactory(typ, rule)
	case OpIn, OpNotIn:
		return inFactory(typ, rule)
	default:
		return nil, errs.SchemaMismatch("unknown operation %q", rule.Operation)
	}
}

func equalityFactory(typ types.Type, rule Rule) (predicateFactory, error) {
	negate := rule.Operation == OpNotEqual
	if typ.ID == types.BSTR {
		s, err := toStringValue(rule.Value)
		if err != nil {
			return nil, err
		}
		literal := bstr.FromString(s)
		return func(cursor *table.Cursor) (func() bool, error) {
			get, _, err := cursor.FieldAccessor(rule.Field)
			if err != nil {
				return nil, err
			}
			return func() bool {
				v := bstr.Wrap(get(), len(get()))
				return v.Equals(literal) != negate
			}, nil
		}, nil
	}
	return numericComparatorFactory(typ, rule.Field, rule.Value, func(cmp int) bool { return (cmp == 0) != negate })
}

func orderingFactory(typ types.Type, rule Rule) (predicateFactory, error) {
	var want func(cmp int) bool
	switch rule.Operation {
	case OpGreaterThan:
		want = func(cmp int) bool { return cmp > 0 }
	case OpGreaterThanOrEqual:
		want = func(cmp int) bool { return cmp >= 0 }
	case OpLessThan:
		want = func(cmp int) bool { return cmp < 0 }
	case OpLessThanOrEqual:
		want = func(cmp int) bool { return cmp <= 0 }
	}
	return numericComparatorFactory(typ, rule.Field, rule.Value, want)
}

func stringFactory(typ types.Type, rule Rule) (predicateFactory, error) {
	s, err := toStringValue(rule.Value)
	if err != nil {
		return nil, err
	}
	literal := bstr.FromString(s)
	op := rule.Operation
	return func(cursor *table.Cursor) (func() bool, error) {
		get, _, err := cursor.FieldAccessor(rule.Field)
		if err != nil {
			return nil, err
		}
		return func() bool {
			v := bstr.Wrap(get(), len(get()))
			switch op {
			case OpContains:
				return v.Contains(literal)
			case OpNotContains:
				return !v.Contains(literal)
			case OpStartsWith:
				return v.StartsWith(literal)
			case OpEndsWith:
				return v.EndsWith(literal)
			default:
				return false
			}
		}, nil
	}, nil
}

func inFactory(typ types.Type, rule Rule) (predicateFactory, error) {
	values, err := toSlice(rule.Value)
	if err != nil {
		return nil, err
	}
	negate := rule.Operation == OpNotIn

	if typ.ID == types.BSTR {
		literals := make([]bstr.String, len(values))
		for i, v := range values {
			s, err := toStringValue(v)
			if err != nil {
				return nil, err
			}
			literals[i] = bstr.FromString(s)
		}
		return func(cursor *table.Cursor) (func() bool, error) {
			get, _, err := cursor.FieldAccessor(rule.Field)
			if err != nil {
				return nil, err
			}
			return func() bool {
				v := bstr.Wrap(get(), len(get()))
				for _, lit := range literals {
					if v.Equals(lit) {
						return !negate
					}
				}
				return negate
			}, nil
		}, nil
	}

	comparators := make([]predicateFactory, len(values))
	for i, v := range values {
		f, err := numericComparatorFactory(typ, rule.Field, v, func(cmp int) bool { return cmp == 0 })
		if err != nil {
			return nil, err
		}
		comparators[i] = f
	}
	return func(cursor *table.Cursor) (func() bool, error) {
		preds := make([]func() bool, len(comparators))
		for i, f := range comparators {
			p, err := f(cursor)
			if err != nil {
				return nil, err
			}
			preds[i] = p
		}
		return func() bool {
			for _, p := range preds {
				if p() {
					return !negate
				}
			}
			return negate
		}, nil
	}, nil
}

// numericComparatorFactory widens value once to the column's numeric
// family (float64, int64, or uint64) and returns a factory producing a
// closure that reads the cursor's current field, widens it the same
// way, and reports want(sign(field - value)).
func numericComparatorFactory(typ types.Type, field string, value interface{}, want func(cmp int) bool) (predicateFactory, error) {
	switch {
	case typ.IsFloat():
		target, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		return func(cursor *table.Cursor) (func() bool, error) {
			get, t, err := cursor.FieldAccessor(field)
			if err != nil {
				return nil, err
			}
			return func() bool {
				v := float64(t.ReadFloat32(get(), 0))
				return want(signF(v, target))
			}, nil
		}, nil
	case typ.IsSigned():
		target, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		return func(cursor *table.Cursor) (func() bool, error) {
			get, t, err := cursor.FieldAccessor(field)
			if err != nil {
				return nil, err
			}
			return func() bool {
				v := t.ReadInt(get(), 0)
				return want(signI(v, target))
			}, nil
		}, nil
	default:
		target, err := toUint64(value)
		if err != nil {
			return nil, err
		}
		return func(cursor *table.Cursor) (func() bool, error) {
			get, t, err := cursor.FieldAccessor(field)
			if err != nil {
				return nil, err
			}
			return func() bool {
				v := t.ReadUint(get(), 0)
				return want(signU(v, target))
			}, nil
		}, nil
	}
}

func signF(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func signI(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func signU(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errs.SchemaMismatch("value %v is not numeric", v)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, errs.SchemaMismatch("value %v is not numeric", v)
	}
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, errs.SchemaMismatch("value %d is negative for an unsigned column", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, errs.SchemaMismatch("value %d is negative for an unsigned column", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 {
			return 0, errs.SchemaMismatch("value %v is negative for an unsigned column", n)
		}
		return uint64(n), nil
	default:
		return 0, errs.SchemaMismatch("value %v is not numeric", v)
	}
}

func toStringValue(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errs.SchemaMismatch("value %v is not a string", v)
	}
	return s, nil
}

func toSlice(v interface{}) ([]interface{}, error) {
	s, ok := v.([]interface{})
	if !ok {
		return nil, errs.SchemaMismatch("value %v is not a list", v)
	}
	return s, nil
}

func (o Operation) String() string { return string(o) }
