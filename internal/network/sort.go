package network

import (
	"fmt"
	"slices"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// SortDomains reorders the values of every variable by increasing unary
// cost, removed values last. It is a preprocessing step: it must run
// before search and only on networks whose cost functions are all
// pairwise. OriginalValue maps the new value indices back.
func (n *Network) SortDomains() error {
	if n.Depth() > 0 {
		return fmt.Errorf("cannot sort domains during search")
	}
	for _, c := range n.constrs {
		if _, ok := c.(*Binary); !ok && c.Connected() {
			return fmt.Errorf("cannot sort domains with cost function %v of arity %d", c, c.Arity())
		}
	}
	for _, x := range n.vars {
		x.sortDomain()
	}
	n.logger.Debug("sorted domains", "variables", len(n.vars))
	return nil
}

func (x *Variable) sortDomain() {
	size := x.InitSize()
	order := make([]int, size)
	for i := range order {
		order[i] = i
	}
	key := func(a int) wcsp.Cost {
		if !x.CanBe(a) {
			return wcsp.MaxCost
		}
		return x.Cost(a)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		ka, kb := key(a), key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	})
	// at[i] is the value currently stored at index i, pos its inverse.
	at := make([]int, size)
	pos := make([]int, size)
	for i := range at {
		at[i], pos[i] = i, i
	}
	for i, v := range order {
		j := pos[v]
		if i == j {
			continue
		}
		x.swap(i, j)
		at[i], at[j] = at[j], at[i]
		pos[at[i]], pos[at[j]] = i, j
	}
}
