package network

import (
	"fmt"
	"math"
	"slices"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

func (n *Network) variable(i int) (*Variable, error) {
	if i < 0 || i >= len(n.vars) {
		return nil, fmt.Errorf("unknown variable %d", i)
	}
	return n.vars[i], nil
}

func (n *Network) nary(ctr int) (*Nary, error) {
	if ctr < 0 || ctr >= len(n.constrs) {
		return nil, fmt.Errorf("unknown cost function %d", ctr)
	}
	c, ok := n.constrs[ctr].(*Nary)
	if !ok {
		return nil, fmt.Errorf("cost function %d has no exception table", ctr)
	}
	return c, nil
}

// PostUnary adds costs to the unary costs of variable x.
func (n *Network) PostUnary(x int, costs []wcsp.Cost) error {
	v, err := n.variable(x)
	if err != nil {
		return err
	}
	if len(costs) != v.InitSize() {
		return fmt.Errorf("unary cost function on %s has %d costs, want %d", v.Name(), len(costs), v.InitSize())
	}
	for a, cost := range costs {
		if cost < wcsp.MinCost {
			return fmt.Errorf("negative cost %d on %s", cost, v.Name())
		}
		if !v.CanBe(a) {
			continue
		}
		if err := v.Project(a, min(cost, wcsp.MaxCost)); err != nil {
			n.flush()
			return err
		}
	}
	n.schedule(v)
	n.logger.Debug("posted unary cost function", "variable", v.Name())
	return n.Propagate()
}

// PostBinary posts a pairwise cost function with costs indexed by a value
// of x times the domain size of y plus a value of y. Costs posted on a
// pair already joined by a pairwise function are added to it.
func (n *Network) PostBinary(x, y int, costs []wcsp.Cost) (int, error) {
	vx, vy, err := n.pair(x, y)
	if err != nil {
		return -1, err
	}
	if err := checkTable(costs, vx.InitSize()*vy.InitSize()); err != nil {
		return -1, fmt.Errorf("pairwise cost function on %s,%s: %w", vx.Name(), vy.Name(), err)
	}
	c := vx.binaryWith(vy)
	if c != nil {
		c.AddCosts(vx, costs)
	} else {
		c = newBinary(n, vx, vy, costs)
	}
	n.enqueue(c)
	n.logger.Debug("posted pairwise cost function", "constraint", c.String())
	return c.ID(), n.Propagate()
}

// PostTernary posts a dense cost function over three variables, costs
// being indexed in row-major order.
func (n *Network) PostTernary(x, y, z int, costs []wcsp.Cost) (int, error) {
	scope, err := n.scope([]int{x, y, z})
	if err != nil {
		return -1, err
	}
	if err := checkTupleDomains(scope); err != nil {
		return -1, err
	}
	size := scope[0].InitSize() * scope[1].InitSize() * scope[2].InitSize()
	if err := checkTable(costs, size); err != nil {
		return -1, fmt.Errorf("ternary cost function: %w", err)
	}
	c := newTernary(n, scope[0], scope[1], scope[2], costs)
	n.enqueue(c)
	n.logger.Debug("posted ternary cost function", "constraint", c.String())
	return c.ID(), n.Propagate()
}

// PostNaryBegin starts an exception table over scope. The cost function
// takes part in propagation once PostNaryEnd is called.
func (n *Network) PostNaryBegin(scope []int, defaultCost wcsp.Cost, expected int) (int, error) {
	vs, err := n.scope(scope)
	if err != nil {
		return -1, err
	}
	if len(vs) > MaxArity {
		return -1, fmt.Errorf("arity %d exceeds %d", len(vs), MaxArity)
	}
	if err := checkTupleDomains(vs); err != nil {
		return -1, err
	}
	if defaultCost < wcsp.MinCost {
		return -1, fmt.Errorf("negative default cost %d", defaultCost)
	}
	c := newNary(n, vs, min(defaultCost, wcsp.MaxCost), expected)
	return c.ID(), nil
}

func (n *Network) PostNaryTuple(ctr int, tuple []int, cost wcsp.Cost) error {
	c, err := n.nary(ctr)
	if err != nil {
		return err
	}
	if cost < wcsp.MinCost {
		return fmt.Errorf("%s: negative cost %d", c, cost)
	}
	return c.InsertTuple(tuple, min(cost, wcsp.MaxCost), nil)
}

func (n *Network) PostNaryEnd(ctr int) error {
	c, err := n.nary(ctr)
	if err != nil {
		return err
	}
	n.enqueue(c)
	n.logger.Debug("posted cost function", "constraint", c.String(), "default", c.DefaultCost(), "tuples", c.Len())
	return n.Propagate()
}

// Join replaces two exception tables by their sum and returns the index of
// the joined cost function.
func (n *Network) Join(a, b int) (int, error) {
	f1, err := n.nary(a)
	if err != nil {
		return -1, err
	}
	f2, err := n.nary(b)
	if err != nil {
		return -1, err
	}
	if a == b || !f1.Connected() || !f2.Connected() {
		return -1, fmt.Errorf("cannot join %s and %s", f1, f2)
	}
	g, err := f1.Sum(f2)
	if err != nil {
		return -1, err
	}
	n.enqueue(g)
	return g.ID(), n.Propagate()
}

// Eliminate removes variable x from the scope of an exception table by
// minimization.
func (n *Network) Eliminate(ctr, x int) error {
	c, err := n.nary(ctr)
	if err != nil {
		return err
	}
	v, err := n.variable(x)
	if err != nil {
		return err
	}
	if c.position(v) < 0 {
		return fmt.Errorf("%s does not depend on %s", c, v.Name())
	}
	if err := c.Project(v); err != nil {
		return err
	}
	return n.Propagate()
}

func (n *Network) pair(x, y int) (*Variable, *Variable, error) {
	vs, err := n.scope([]int{x, y})
	if err != nil {
		return nil, nil, err
	}
	return vs[0], vs[1], nil
}

func (n *Network) scope(indices []int) ([]*Variable, error) {
	vs := make([]*Variable, len(indices))
	for i, x := range indices {
		v, err := n.variable(x)
		if err != nil {
			return nil, err
		}
		if slices.Contains(vs[:i], v) {
			return nil, fmt.Errorf("variable %s appears twice in scope", v.Name())
		}
		vs[i] = v
	}
	return vs, nil
}

// checkTupleDomains rejects variables whose values do not fit a Tuple.
func checkTupleDomains(vs []*Variable) error {
	for _, v := range vs {
		if v.InitSize() > math.MaxUint16+1 {
			return fmt.Errorf("domain of %s has %d values, at most %d fit a tuple", v.Name(), v.InitSize(), math.MaxUint16+1)
		}
	}
	return nil
}

func checkTable(costs []wcsp.Cost, size int) error {
	if len(costs) != size {
		return fmt.Errorf("table has %d costs, want %d", len(costs), size)
	}
	for i, cost := range costs {
		if cost < wcsp.MinCost {
			return fmt.Errorf("negative cost %d at %d", cost, i)
		}
	}
	return nil
}
