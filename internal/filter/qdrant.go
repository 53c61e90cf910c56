package filter

import (
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// ToQdrant converts the compiled predicate to a Qdrant filter with one Must
// condition per clause. A predicate that matches all records converts to nil,
// which Qdrant treats as no filter.
func (c *Compiled) ToQdrant() *qdrant.Filter {
	if c.Empty() {
		return nil
	}

	must := make([]*qdrant.Condition, 0, len(c.clauses))
	for _, clause := range c.clauses {
		must = append(must, clause.toCondition())
	}

	return &qdrant.Filter{Must: must}
}

func (cl Clause) toCondition() *qdrant.Condition {
	field := &qdrant.FieldCondition{Key: cl.Field}

	switch cl.Op {
	case OpRange:
		field.Range = &qdrant.Range{Gte: cl.Min, Lte: cl.Max}
	case OpIn:
		field.Match = matchSet(cl.Set)
	default:
		field.Match = matchScalar(cl.Value)
	}

	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{Field: field},
	}
}

func matchScalar(value any) *qdrant.Match {
	switch v := value.(type) {
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	default:
		if num, ok := toFloat(v); ok {
			return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(num)}}
		}
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}
}

func matchSet(set []any) *qdrant.Match {
	// A homogeneous integer set matches on integers, everything else matches
	// on keyword form.
	integers := make([]int64, 0, len(set))
	allInts := true
	for _, member := range set {
		num, ok := toFloat(member)
		if !ok || num != float64(int64(num)) {
			allInts = false
			break
		}
		integers = append(integers, int64(num))
	}

	if allInts {
		return &qdrant.Match{MatchValue: &qdrant.Match_Integers{
			Integers: &qdrant.RepeatedIntegers{Integers: integers},
		}}
	}

	keywords := make([]string, 0, len(set))
	for _, member := range set {
		keywords = append(keywords, fmt.Sprintf("%v", member))
	}
	return &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
		Keywords: &qdrant.RepeatedStrings{Strings: keywords},
	}}
}
