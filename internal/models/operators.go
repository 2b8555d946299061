package models

import "fmt"

// Operator is the closed enumeration of comparison operators allowed in gate
// conditions and explicit constraints. Unknown operators are a configuration
// error, never a runtime surprise.
type Operator string

const (
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
)

var operatorTable = map[Operator]func(a, b float64) bool{
	OpLess:           func(a, b float64) bool { return a < b },
	OpLessOrEqual:    func(a, b float64) bool { return a <= b },
	OpGreater:        func(a, b float64) bool { return a > b },
	OpGreaterOrEqual: func(a, b float64) bool { return a >= b },
	OpEqual:          func(a, b float64) bool { return a == b },
	OpNotEqual:       func(a, b float64) bool { return a != b },
}

// ParseOperator validates a raw operator string from the knowledge base or an
// LLM extraction.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if _, ok := operatorTable[op]; !ok {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// Apply evaluates "a op b". Unknown operators evaluate to false; they are
// rejected at parse time.
func (op Operator) Apply(a, b float64) bool {
	fn, ok := operatorTable[op]
	if !ok {
		return false
	}
	return fn(a, b)
}

// Valid reports whether op is a member of the enumeration.
func (op Operator) Valid() bool {
	_, ok := operatorTable[op]
	return ok
}
