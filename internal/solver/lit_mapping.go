package solver

import (
	"fmt"

	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// litMapping translates the hard part of a network, the values and tuples
// whose cost is forbidden, into a SAT formula with one literal per value.
// A model of the formula is an assignment of finite cost; an unsatisfiable
// formula proves that no assignment is below the upper bound.
type litMapping struct {
	net     *network.Network
	lits    [][]z.Lit
	next    z.Var
	clauses int
}

func newLitMapping(n *network.Network) *litMapping {
	d := &litMapping{
		net:  n,
		lits: make([][]z.Lit, n.NumVariables()),
	}
	for i, x := range n.Variables() {
		d.lits[i] = make([]z.Lit, x.InitSize())
		for a := range x.Values() {
			d.lits[i][a] = d.lit()
		}
	}
	return d
}

func (d *litMapping) lit() z.Lit {
	d.next++
	return d.next.Pos()
}

// LitOf returns the literal of value a of variable x, or z.LitNull if the
// value was removed.
func (d *litMapping) LitOf(x, a int) z.Lit {
	return d.lits[x][a]
}

func (d *litMapping) Vars() int {
	return int(d.next)
}

func (d *litMapping) Clauses() int {
	return d.clauses
}

func (d *litMapping) clause(g inter.Adder, ms ...z.Lit) {
	for _, m := range ms {
		g.Add(m)
	}
	g.Add(z.LitNull)
	d.clauses++
}

// AddConstraints teaches the formula to g.
func (d *litMapping) AddConstraints(g inter.Adder) error {
	for i, x := range d.net.Variables() {
		ms := make([]z.Lit, 0, x.Size())
		for a := range x.Values() {
			ms = append(ms, d.lits[i][a])
		}
		d.clause(g, ms...)
		for j := range ms {
			for k := j + 1; k < len(ms); k++ {
				d.clause(g, ms[j].Not(), ms[k].Not())
			}
		}
		for a := range x.Values() {
			if d.net.Cut(x.Cost(a)) {
				d.clause(g, d.lits[i][a].Not())
			}
		}
	}
	for _, c := range d.net.Constraints() {
		switch c := c.(type) {
		case *network.Nary:
			d.addNary(g, c)
		default:
			if c.Arity() > 3 {
				return fmt.Errorf("no encoding for cost function of arity %d", c.Arity())
			}
			d.addTable(g, c)
		}
	}
	return nil
}

// addTable forbids every tuple of a dense cost function whose cost is cut.
func (d *litMapping) addTable(g inter.Adder, c network.Constraint) {
	scope := c.Scope()
	tuple := make([]int, len(scope))
	nogood := make([]z.Lit, len(scope))
	var walk func(i int)
	walk = func(i int) {
		if i == len(scope) {
			if d.net.Cut(c.Cost(tuple)) {
				d.clause(g, nogood...)
			}
			return
		}
		for a := range scope[i].Values() {
			tuple[i] = a
			nogood[i] = d.lits[scope[i].Index()][a].Not()
			walk(i + 1)
		}
	}
	walk(0)
}

// addNary forbids the exceptions whose cost is cut. When the default cost
// is itself cut, the allowed exceptions are enumerated instead, each behind
// a selector literal.
func (d *litMapping) addNary(g inter.Adder, c *network.Nary) {
	scope := c.Scope()
	present := func(values []int) bool {
		for i, x := range scope {
			if !x.CanBe(values[i]) {
				return false
			}
		}
		return true
	}
	if !d.net.Cut(c.DefaultCost()) {
		for _, e := range c.Tuples() {
			values := e.Tuple.Values(len(scope))
			if !d.net.Cut(e.Cost) || !present(values) {
				continue
			}
			nogood := make([]z.Lit, len(scope))
			for i, x := range scope {
				nogood[i] = d.lits[x.Index()][values[i]].Not()
			}
			d.clause(g, nogood...)
		}
		return
	}
	var selectors []z.Lit
	for _, e := range c.Tuples() {
		values := e.Tuple.Values(len(scope))
		if d.net.Cut(e.Cost) || !present(values) {
			continue
		}
		s := d.lit()
		selectors = append(selectors, s)
		for i, x := range scope {
			d.clause(g, s.Not(), d.lits[x.Index()][values[i]])
		}
	}
	d.clause(g, selectors...)
}

// Values reads the assignment of a model.
func (d *litMapping) Values(g inter.Model) []int {
	values := make([]int, len(d.lits))
	for i, lits := range d.lits {
		values[i] = -1
		for a, m := range lits {
			if m != z.LitNull && g.Value(m) {
				values[i] = a
				break
			}
		}
	}
	return values
}

// hardCheck reports whether the hard part of the network is satisfiable.
// It returns a model when it is, and a Contradiction when it is not. A
// zero outcome means the budget ran out.
func hardCheck(n *network.Network, g inter.S, budget tryer) (int, []int, error) {
	d := newLitMapping(n)
	if err := d.AddConstraints(g); err != nil {
		return unknown, nil, err
	}
	outcome := budget(g)
	switch outcome {
	case satisfiable:
		return outcome, d.Values(g), nil
	case unsatisfiable:
		return outcome, nil, wcsp.Contradiction{Reason: fmt.Sprintf("hard constraints unsatisfiable (%d variables, %d clauses)", d.Vars(), d.Clauses())}
	}
	return outcome, nil, nil
}

type tryer func(g inter.S) int
