// Package filter compiles declarative metadata constraints into predicates
// usable by the vector store query interface. A constraint is one of: a
// literal value (equality), a {min, max} numeric range (inclusive), or a list
// of accepted values (set membership). All clauses are conjunctive.
package filter

import (
	"fmt"
	"sort"

	"github.com/careerhub/ai-pipeline/internal/task"
)

// Op identifies the kind of a compiled clause
type Op int

const (
	OpEq Op = iota
	OpRange
	OpIn
)

// Clause is one compiled constraint on a single metadata field
type Clause struct {
	Field string
	Op    Op

	// OpEq
	Value any

	// OpRange, nil means unbounded on that side
	Min *float64
	Max *float64

	// OpIn
	Set []any
}

// Compiled is the conjunction of all compiled clauses. An empty Compiled
// matches every record.
type Compiled struct {
	clauses []Clause
}

// Clauses returns the compiled clauses ordered by field name
func (c *Compiled) Clauses() []Clause {
	if c == nil {
		return nil
	}
	return c.clauses
}

// Empty reports whether the predicate matches all records
func (c *Compiled) Empty() bool {
	return c == nil || len(c.clauses) == 0
}

// Compile translates a metadata filter mapping into a compiled predicate.
// Compilation is a pure transformation: identical input yields identical
// output, with clauses ordered by field name. A range with min > max is a
// caller error wrapping task.ErrValidation.
func Compile(filters map[string]any) (*Compiled, error) {
	compiled := &Compiled{}
	if len(filters) == 0 {
		return compiled, nil
	}

	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		clause, err := compileClause(field, filters[field])
		if err != nil {
			return nil, err
		}
		compiled.clauses = append(compiled.clauses, clause)
	}

	return compiled, nil
}

func compileClause(field string, raw any) (Clause, error) {
	switch v := raw.(type) {
	case map[string]any:
		return compileRange(field, v)
	case []any:
		if len(v) == 0 {
			return Clause{}, fmt.Errorf("%w: filter %q has an empty value set", task.ErrValidation, field)
		}
		return Clause{Field: field, Op: OpIn, Set: v}, nil
	default:
		return Clause{Field: field, Op: OpEq, Value: v}, nil
	}
}

func compileRange(field string, bounds map[string]any) (Clause, error) {
	clause := Clause{Field: field, Op: OpRange}

	for key, raw := range bounds {
		switch key {
		case "min", "max":
			val, ok := toFloat(raw)
			if !ok {
				return Clause{}, fmt.Errorf("%w: filter %q bound %q is not numeric", task.ErrValidation, field, key)
			}
			if key == "min" {
				clause.Min = &val
			} else {
				clause.Max = &val
			}
		default:
			return Clause{}, fmt.Errorf("%w: filter %q has unsupported bound %q", task.ErrValidation, field, key)
		}
	}

	if clause.Min == nil && clause.Max == nil {
		return Clause{}, fmt.Errorf("%w: filter %q range needs min or max", task.ErrValidation, field)
	}
	if clause.Min != nil && clause.Max != nil && *clause.Min > *clause.Max {
		return Clause{}, fmt.Errorf("%w: filter %q has min %v greater than max %v",
			task.ErrValidation, field, *clause.Min, *clause.Max)
	}

	return clause, nil
}

// Matches evaluates the predicate against a metadata mapping. A record whose
// metadata lacks a constrained field does not match.
func (c *Compiled) Matches(metadata map[string]any) bool {
	if c.Empty() {
		return true
	}

	for _, clause := range c.clauses {
		value, present := metadata[clause.Field]
		if !present {
			return false
		}
		if !clause.matches(value) {
			return false
		}
	}

	return true
}

func (cl Clause) matches(value any) bool {
	switch cl.Op {
	case OpEq:
		return valuesEqual(cl.Value, value)
	case OpRange:
		num, ok := toFloat(value)
		if !ok {
			return false
		}
		if cl.Min != nil && num < *cl.Min {
			return false
		}
		if cl.Max != nil && num > *cl.Max {
			return false
		}
		return true
	case OpIn:
		for _, member := range cl.Set {
			if valuesEqual(member, value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// valuesEqual compares scalars across JSON and native numeric representations
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
