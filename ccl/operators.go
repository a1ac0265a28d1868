package ccl

import (
	"errors"
	"fmt"
)

// Op identifies a comparison operator of the condition language.
type Op int

const (
	OpEquals Op = iota
	OpNotEquals
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpContains
	OpMatches
	OpExists
	OpNotExists
)

// ErrOperationNotSupported signals that an operator cannot compare the two
// value types it was handed. Callers downgrade it to "condition failed".
var ErrOperationNotSupported = errors.New("operation not supported between the two value types")

var opNames = map[Op]string{
	OpEquals:         "==",
	OpNotEquals:      "!=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpContains:       "contains",
	OpMatches:        "matches",
	OpExists:         "exists",
	OpNotExists:      "not exists",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// opFromToken maps an operator token to its Op. "exists" and "not exists"
// are handled by the parser before tokens get here.
func opFromToken(token string) (Op, bool) {
	switch token {
	case "==":
		return OpEquals, true
	case "!=":
		return OpNotEquals, true
	case "<":
		return OpLess, true
	case "<=":
		return OpLessOrEqual, true
	case ">":
		return OpGreater, true
	case ">=":
		return OpGreaterOrEqual, true
	case "contains":
		return OpContains, true
	case "matches":
		return OpMatches, true
	}
	return 0, false
}

// comparator compares a typed pair of values. Ordering operators only exist
// for numbers; everything else reports ErrOperationNotSupported.
type comparator interface {
	CompareString(lhs, rhs string) (bool, error)
	CompareFloat(lhs, rhs float64) (bool, error)
	CompareBool(lhs, rhs bool) (bool, error)
}

type equalsComparator struct{}

func (equalsComparator) CompareString(lhs, rhs string) (bool, error) { return lhs == rhs, nil }
func (equalsComparator) CompareFloat(lhs, rhs float64) (bool, error) { return lhs == rhs, nil }
func (equalsComparator) CompareBool(lhs, rhs bool) (bool, error)     { return lhs == rhs, nil }

type lessComparator struct{}

func (lessComparator) CompareString(lhs, rhs string) (bool, error) {
	return false, ErrOperationNotSupported
}
func (lessComparator) CompareFloat(lhs, rhs float64) (bool, error) { return lhs < rhs, nil }
func (lessComparator) CompareBool(lhs, rhs bool) (bool, error) {
	return false, ErrOperationNotSupported
}

type greaterComparator struct{}

func (greaterComparator) CompareString(lhs, rhs string) (bool, error) {
	return false, ErrOperationNotSupported
}
func (greaterComparator) CompareFloat(lhs, rhs float64) (bool, error) { return lhs > rhs, nil }
func (greaterComparator) CompareBool(lhs, rhs bool) (bool, error) {
	return false, ErrOperationNotSupported
}

// notComparator negates the wrapped comparator, which gives us !=, <= and >=
// without separate implementations.
type notComparator struct {
	inner comparator
}

func (n notComparator) CompareString(lhs, rhs string) (bool, error) {
	b, err := n.inner.CompareString(lhs, rhs)
	if err != nil {
		return false, err
	}
	return !b, nil
}

func (n notComparator) CompareFloat(lhs, rhs float64) (bool, error) {
	b, err := n.inner.CompareFloat(lhs, rhs)
	if err != nil {
		return false, err
	}
	return !b, nil
}

func (n notComparator) CompareBool(lhs, rhs bool) (bool, error) {
	b, err := n.inner.CompareBool(lhs, rhs)
	if err != nil {
		return false, err
	}
	return !b, nil
}

func comparatorFor(op Op) comparator {
	switch op {
	case OpEquals:
		return equalsComparator{}
	case OpNotEquals:
		return notComparator{inner: equalsComparator{}}
	case OpLess:
		return lessComparator{}
	case OpGreater:
		return greaterComparator{}
	case OpLessOrEqual:
		return notComparator{inner: greaterComparator{}}
	case OpGreaterOrEqual:
		return notComparator{inner: lessComparator{}}
	}
	return nil
}
