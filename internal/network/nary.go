package network

import (
	"fmt"
	"slices"
	"strings"

	"github.com/operator-framework/wcsp/internal/trail"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// higherOrder is the part shared by cost functions of arity greater than
// two. They only propagate by collapsing to a pairwise cost function once
// all but two of their variables are assigned.
type higherOrder struct {
	constraint
	scope       []*Variable
	nonassigned trail.Value[int]
	shadow      *Binary
	eval        func(t Tuple) wcsp.Cost
}

func (h *higherOrder) init(n *Network, scope []*Variable, eval func(Tuple) wcsp.Cost) {
	h.constraint = constraint{net: n, id: n.nextID(), connected: trail.NewValue(true)}
	h.scope = scope
	h.eval = eval
	h.links = make([]*Link, len(scope))
	for i, x := range scope {
		h.links[i] = h.link(x, i)
	}
	h.nonassigned = trail.NewValue(len(scope))
}

func (h *higherOrder) Arity() int {
	return len(h.scope)
}

func (h *higherOrder) Scope() []*Variable {
	return h.scope
}

// NonAssigned returns the number of scope variables still connected.
func (h *higherOrder) NonAssigned() int {
	return h.nonassigned.Get()
}

// position returns the scope position of x, or -1.
func (h *higherOrder) position(x *Variable) int {
	for i, v := range h.scope {
		if v == x {
			return i
		}
	}
	return -1
}

func (h *higherOrder) Cost(tuple []int) wcsp.Cost {
	t, err := NewTuple(tuple)
	if err != nil {
		return wcsp.MaxCost
	}
	return h.eval(t)
}

func (h *higherOrder) String() string {
	names := make([]string, len(h.scope))
	for i, x := range h.scope {
		names[i] = x.Name()
	}
	return fmt.Sprintf("C%d(%s)", h.id, strings.Join(names, ","))
}

func (h *higherOrder) Propagate() error {
	for i, x := range h.scope {
		if !h.Connected() {
			return nil
		}
		if x.Assigned() {
			if err := h.Assign(i); err != nil {
				return err
			}
		}
	}
	if h.Connected() && h.nonassigned.Get() <= 2 {
		return h.collapse()
	}
	return nil
}

// Assign disconnects the scope variable at position i once it is fixed.
// When two connected variables remain, the function is replaced by an
// equivalent pairwise cost function until backtrack.
func (h *higherOrder) Assign(i int) error {
	if !h.links[i].Connected() {
		return nil
	}
	h.links[i].disconnect(h.net.trail)
	k := h.nonassigned.Get() - 1
	h.nonassigned.Set(h.net.trail, k)
	if k <= 2 {
		return h.collapse()
	}
	return nil
}

func (h *higherOrder) collapse() error {
	p, q := h.free()
	h.Disconnect()
	switch {
	case q >= 0:
		return h.projectNaryBinary(p, q)
	case p >= 0:
		return h.projectUnary(p)
	}
	var t Tuple
	for i, v := range h.scope {
		t[i] = uint16(v.Value())
	}
	return h.net.IncreaseLb(h.eval(t))
}

// free returns the positions of the first two connected links.
func (h *higherOrder) free() (int, int) {
	p, q := -1, -1
	for i, l := range h.links {
		if !l.Connected() {
			continue
		}
		if p < 0 {
			p = i
		} else if q < 0 {
			q = i
		}
	}
	return p, q
}

// ProjectNaryBinary materializes the function over its two unassigned
// variables, every other variable being held at its assigned value.
func (h *higherOrder) ProjectNaryBinary() error {
	p, q := -1, -1
	for i, x := range h.scope {
		if x.Assigned() {
			continue
		}
		switch {
		case p < 0:
			p = i
		case q < 0:
			q = i
		default:
			return fmt.Errorf("%s has more than two unassigned variables", h)
		}
	}
	if q < 0 {
		return fmt.Errorf("%s has less than two unassigned variables", h)
	}
	h.Disconnect()
	return h.projectNaryBinary(p, q)
}

func (h *higherOrder) projectNaryBinary(p, q int) error {
	n := h.net
	x, y := h.scope[p], h.scope[q]
	var t Tuple
	for i, v := range h.scope {
		if i != p && i != q {
			t[i] = uint16(v.Value())
		}
	}
	sy := y.InitSize()
	table := make([]wcsp.Cost, x.InitSize()*sy)
	for a := range x.Values() {
		t[p] = uint16(a)
		for b := range y.Values() {
			t[q] = uint16(b)
			table[a*sy+b] = h.eval(t)
		}
	}
	if c := x.binaryWith(y); c != nil {
		c.AddCosts(x, table)
		n.enqueue(c)
		return nil
	}
	c := h.shadowFor(x, y)
	c.load(table)
	c.Reconnect()
	n.enqueue(c)
	return nil
}

func (h *higherOrder) projectUnary(p int) error {
	x := h.scope[p]
	var t Tuple
	for i, v := range h.scope {
		if i != p {
			t[i] = uint16(v.Value())
		}
	}
	for a := range x.Values() {
		t[p] = uint16(a)
		if err := x.Project(a, h.eval(t)); err != nil {
			return err
		}
	}
	return nil
}

// shadowFor rebinds the transient pairwise cost function of h to x and y,
// growing its table when the pair is larger than any previous one. It is
// only ever connected while h is collapsed, so rebinding it never touches a
// live function.
func (h *higherOrder) shadowFor(x, y *Variable) *Binary {
	n := h.net
	cells, size := x.InitSize()*y.InitSize(), max(x.InitSize(), y.InitSize())
	if h.shadow == nil {
		h.shadow = &Binary{constraint: constraint{net: n, id: n.nextID(), connected: trail.NewValue(false)}}
		n.register(h.shadow)
	}
	c := h.shadow
	c.bind(x, y, cells, size)
	c.links = []*Link{c.link(x, 0), c.link(y, 1)}
	return c
}

// Ternary is a cost function over three variables with a dense table.
type Ternary struct {
	higherOrder
	sizes [3]int
	costs []wcsp.Cost
}

func newTernary(n *Network, x, y, z *Variable, costs []wcsp.Cost) *Ternary {
	c := &Ternary{
		sizes: [3]int{x.InitSize(), y.InitSize(), z.InitSize()},
		costs: slices.Clone(costs),
	}
	c.init(n, []*Variable{x, y, z}, c.Eval)
	n.register(c)
	return c
}

func (c *Ternary) Eval(t Tuple) wcsp.Cost {
	return c.costs[(int(t[0])*c.sizes[1]+int(t[1]))*c.sizes[2]+int(t[2])]
}

// Nary is a cost function given by a default cost and a sparse table of
// exceptions.
type Nary struct {
	higherOrder
	defaultCost wcsp.Cost
	tuples      map[Tuple]wcsp.Cost
}

func newNary(n *Network, scope []*Variable, defaultCost wcsp.Cost, expected int) *Nary {
	c := &Nary{
		defaultCost: defaultCost,
		tuples:      make(map[Tuple]wcsp.Cost, max(expected, 0)),
	}
	c.init(n, scope, c.Eval)
	n.register(c)
	return c
}

func (c *Nary) DefaultCost() wcsp.Cost {
	return c.defaultCost
}

// Len returns the number of exceptions.
func (c *Nary) Len() int {
	return len(c.tuples)
}

// Eval returns the cost of t.
func (c *Nary) Eval(t Tuple) wcsp.Cost {
	if cost, ok := c.tuples[t]; ok {
		return cost
	}
	return c.defaultCost
}

// Tuples returns the exceptions in lexicographic order.
func (c *Nary) Tuples() []TupleCost {
	return sortedEntries(c.tuples)
}

// InsertTuple sets the cost of a tuple. When scope is given, values[i] is
// the value of scope[i], otherwise values follow the function's own scope.
func (c *Nary) InsertTuple(values []int, cost wcsp.Cost, scope []*Variable) error {
	if len(values) != c.Arity() {
		return fmt.Errorf("%s: tuple of arity %d", c, len(values))
	}
	ordered := values
	if scope != nil {
		ordered = make([]int, len(values))
		for i, x := range scope {
			p := c.position(x)
			if p < 0 {
				return fmt.Errorf("%s: variable %s not in scope", c, x.Name())
			}
			ordered[p] = values[i]
		}
	}
	for i, v := range ordered {
		if v < 0 || v >= c.scope[i].InitSize() {
			return fmt.Errorf("%s: value %d out of domain of %s", c, v, c.scope[i].Name())
		}
	}
	t, err := NewTuple(ordered)
	if err != nil {
		return err
	}
	c.tuples[t] = cost
	return nil
}

// insertSum writes the combination of t1 from f1 and t2 from f2 with the
// sum of their costs, unless they disagree on a shared variable.
func (c *Nary) insertSum(t1 Tuple, c1 wcsp.Cost, f1 *Nary, t2 Tuple, c2 wcsp.Cost, f2 *Nary) {
	var t Tuple
	for i, x := range c.scope {
		p1, p2 := f1.position(x), f2.position(x)
		switch {
		case p1 >= 0 && p2 >= 0:
			if t1[p1] != t2[p2] {
				return
			}
			t[i] = t1[p1]
		case p1 >= 0:
			t[i] = t1[p1]
		default:
			t[i] = t2[p2]
		}
	}
	c.tuples[t] = wcsp.Add(c1, c2)
}

// Sum joins c with other over the union of their scopes. Both operands are
// disconnected and the join is returned as a new connected cost function
// whose default cost is the sum of the default costs. Only pairs of
// exceptions are combined, so the join needs |c|*|other| steps.
func (c *Nary) Sum(other *Nary) (*Nary, error) {
	n := c.net
	if n.Depth() > 0 {
		return nil, fmt.Errorf("cannot join %s and %s during search", c, other)
	}
	scope := slices.Clone(c.scope)
	for _, x := range other.scope {
		if !slices.Contains(scope, x) {
			scope = append(scope, x)
		}
	}
	if len(scope) > MaxArity {
		return nil, fmt.Errorf("join of %s and %s has arity %d, exceeding %d", c, other, len(scope), MaxArity)
	}
	slices.SortFunc(scope, func(a, b *Variable) int {
		return a.Index() - b.Index()
	})
	c.Disconnect()
	other.Disconnect()

	g := newNary(n, scope, wcsp.Add(c.defaultCost, other.defaultCost), len(c.tuples)*len(other.tuples))
	for t1, c1 := range c.tuples {
		for t2, c2 := range other.tuples {
			g.insertSum(t1, c1, c, t2, c2, other)
		}
	}
	n.logger.Debug("joined cost functions", "left", c.String(), "right", other.String(), "result", g.String(), "tuples", g.Len())
	return g, nil
}

// Project eliminates x from the scope, each remaining tuple taking the
// minimum cost over the values of x. Only tuples whose cost differs from
// the default cost are kept.
func (c *Nary) Project(x *Variable) error {
	n := c.net
	if n.Depth() > 0 {
		return fmt.Errorf("cannot eliminate %s from %s during search", x.Name(), c)
	}
	xi := c.position(x)
	if xi < 0 {
		return nil
	}
	arity := c.Arity()
	if arity <= 2 {
		return fmt.Errorf("cannot eliminate %s from %s of arity %d", x.Name(), c, arity)
	}
	last := arity - 1

	// Move x to the last position so that the tuples sharing a prefix are
	// contiguous in lexicographic order.
	swapped := make(map[Tuple]wcsp.Cost, len(c.tuples))
	for t, cost := range c.tuples {
		t[xi], t[last] = t[last], t[xi]
		swapped[t] = cost
	}
	entries := sortedEntries(swapped)

	projected := make(map[Tuple]wcsp.Cost)
	for i := 0; i < len(entries); {
		prefix := entries[i].Tuple
		prefix[last] = 0
		minCost := entries[i].Cost
		count := 1
		j := i + 1
		for ; j < len(entries); j++ {
			next := entries[j].Tuple
			next[last] = 0
			if next != prefix {
				break
			}
			wcsp.GLB(&minCost, entries[j].Cost)
			count++
		}
		if count < x.InitSize() {
			wcsp.GLB(&minCost, c.defaultCost)
		}
		if minCost != c.defaultCost {
			projected[prefix] = minCost
		}
		i = j
	}
	c.tuples = projected

	c.links[xi].disconnect(n.trail)
	c.links[xi] = c.links[last]
	c.links[xi].position = xi
	c.links = c.links[:last]
	c.scope[xi] = c.scope[last]
	c.scope = c.scope[:last]
	connected := 0
	for _, l := range c.links {
		if l.Connected() {
			connected++
		}
	}
	c.nonassigned.Set(n.trail, connected)
	n.enqueue(c)
	n.logger.Debug("eliminated variable", "variable", x.Name(), "constraint", c.String(), "tuples", c.Len())
	return nil
}
