package network

import (
	"fmt"
	"math"
	"slices"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// MaxArity bounds the scope size of a cost function with an exception
// table.
const MaxArity = 32

// Tuple is a fixed-width tuple of value indices. Positions past the arity
// of its cost function are zero, so comparing whole tuples orders them
// lexicographically on the used prefix.
type Tuple [MaxArity]uint16

// NewTuple packs a slice of value indices.
func NewTuple(values []int) (Tuple, error) {
	var t Tuple
	if len(values) > MaxArity {
		return t, fmt.Errorf("arity %d exceeds %d", len(values), MaxArity)
	}
	for i, v := range values {
		if v < 0 || v > math.MaxUint16 {
			return t, fmt.Errorf("value %d out of range at position %d", v, i)
		}
		t[i] = uint16(v)
	}
	return t, nil
}

// Values unpacks the first arity positions.
func (t Tuple) Values(arity int) []int {
	vs := make([]int, arity)
	for i := range vs {
		vs[i] = int(t[i])
	}
	return vs
}

func compareTuples(a, b Tuple) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// TupleCost is an entry of an exception table.
type TupleCost struct {
	Tuple Tuple
	Cost  wcsp.Cost
}

// sortedEntries returns the entries of table in lexicographic order.
func sortedEntries(table map[Tuple]wcsp.Cost) []TupleCost {
	entries := make([]TupleCost, 0, len(table))
	for t, c := range table {
		entries = append(entries, TupleCost{Tuple: t, Cost: c})
	}
	slices.SortFunc(entries, func(a, b TupleCost) int {
		return compareTuples(a.Tuple, b.Tuple)
	})
	return entries
}
