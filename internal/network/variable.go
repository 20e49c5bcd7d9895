package network

import (
	"fmt"
	"iter"

	"github.com/operator-framework/wcsp/internal/trail"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// Link connects a cost function to one variable of its scope. A
// disconnected link is kept so that backtracking can reactivate it.
type Link struct {
	constraint int
	position   int
	connected  trail.Value[bool]
}

// Constraint returns the arena index of the linked cost function.
func (l *Link) Constraint() int {
	return l.constraint
}

// Position returns the scope position of the variable in the linked cost
// function.
func (l *Link) Position() int {
	return l.position
}

func (l *Link) Connected() bool {
	return l.connected.Get()
}

func (l *Link) disconnect(t *trail.Trail) {
	if l.connected.Get() {
		l.connected.Set(t, false)
	}
}

func (l *Link) reconnect(t *trail.Trail) {
	if !l.connected.Get() {
		l.connected.Set(t, true)
	}
}

// Variable is a finite domain variable with a unary cost per value.
type Variable struct {
	net   *Network
	index int
	name  string

	present  []trail.Value[bool]
	size     trail.Value[int]
	inf, sup trail.Value[int]
	costs    []trail.Value[wcsp.Cost]
	support  trail.Value[int]

	links  []*Link
	nlinks trail.Value[int]

	// perm maps a value index to the value index of the loaded problem
	// after SortDomains.
	perm []int
	// pending is set while the variable waits for FindSupport.
	pending bool
}

// AddVariable creates a variable with values 0..size-1 and returns its
// index.
func (n *Network) AddVariable(name string, size int) int {
	if size < 1 {
		size = 1
	}
	x := &Variable{
		net:     n,
		index:   len(n.vars),
		name:    name,
		present: trail.Values(size, true),
		size:    trail.NewValue(size),
		inf:     trail.NewValue(0),
		sup:     trail.NewValue(size - 1),
		costs:   trail.Values(size, wcsp.MinCost),
		support: trail.NewValue(0),
	}
	if x.name == "" {
		x.name = fmt.Sprintf("x%d", x.index)
	}
	n.vars = append(n.vars, x)
	return x.index
}

func (x *Variable) Index() int {
	return x.index
}

func (x *Variable) Name() string {
	return x.name
}

func (x *Variable) String() string {
	return x.name
}

// InitSize returns the size of the domain at creation.
func (x *Variable) InitSize() int {
	return len(x.present)
}

func (x *Variable) Size() int {
	return x.size.Get()
}

func (x *Variable) Assigned() bool {
	return x.size.Get() == 1
}

// Value returns the value of an assigned variable.
func (x *Variable) Value() int {
	return x.inf.Get()
}

func (x *Variable) Inf() int {
	return x.inf.Get()
}

func (x *Variable) Sup() int {
	return x.sup.Get()
}

func (x *Variable) CanBe(a int) bool {
	return a >= 0 && a < len(x.present) && x.present[a].Get()
}

// Values iterates over the remaining values in increasing order. Values
// removed during the iteration are skipped.
func (x *Variable) Values() iter.Seq[int] {
	return func(yield func(int) bool) {
		for a := x.inf.Get(); a <= x.sup.Get(); a++ {
			if x.present[a].Get() && !yield(a) {
				return
			}
		}
	}
}

// Domain returns a copy of the remaining values.
func (x *Variable) Domain() []int {
	d := make([]int, 0, x.Size())
	for a := range x.Values() {
		d = append(d, a)
	}
	return d
}

func (x *Variable) Cost(a int) wcsp.Cost {
	return x.costs[a].Get()
}

// Support returns the cached value with zero unary cost.
func (x *Variable) Support() int {
	return x.support.Get()
}

func (x *Variable) SetSupport(a int) {
	x.support.Set(x.net.trail, a)
}

// OriginalValue maps a value index back to the loaded problem.
func (x *Variable) OriginalValue(a int) int {
	if x.perm == nil {
		return a
	}
	return x.perm[a]
}

// Links iterates over the connected membership links.
func (x *Variable) Links() iter.Seq[*Link] {
	return func(yield func(*Link) bool) {
		for _, l := range x.links[:x.nlinks.Get()] {
			if l.Connected() && !yield(l) {
				return
			}
		}
	}
}

// Degree returns the number of connected cost functions.
func (x *Variable) Degree() int {
	d := 0
	for range x.Links() {
		d++
	}
	return d
}

func (x *Variable) attach(l *Link) {
	n := x.nlinks.Get()
	if n < len(x.links) {
		x.links[n] = l
	} else {
		x.links = append(x.links, l)
	}
	x.nlinks.Set(x.net.trail, n+1)
}

// binaryWith returns the connected pairwise cost function over x and y.
func (x *Variable) binaryWith(y *Variable) *Binary {
	for l := range x.Links() {
		if b, ok := x.net.constrs[l.constraint].(*Binary); ok && b.Connected() && b.other(x) == y {
			return b
		}
	}
	return nil
}

// Project adds cost to value a. A value whose cost becomes forbidden is
// removed.
func (x *Variable) Project(a int, cost wcsp.Cost) error {
	if cost == wcsp.MinCost {
		return nil
	}
	n := x.net
	if n.Cut(cost) {
		return x.Remove(a)
	}
	c, err := wcsp.AddExact(x.costs[a].Get(), cost)
	if err != nil {
		return err
	}
	x.costs[a].Set(n.trail, c)
	if a == x.Support() {
		n.schedule(x)
	}
	if n.Cut(c) {
		return x.Remove(a)
	}
	return nil
}

// Extend subtracts cost from value a. It is the inverse of Project.
func (x *Variable) Extend(a int, cost wcsp.Cost) error {
	if cost == wcsp.MinCost {
		return nil
	}
	c := x.costs[a].Get() - cost
	if c < wcsp.MinCost {
		return &wcsp.InconsistencyError{
			Constraint: x.name,
			Detail:     fmt.Sprintf("extending %s from value %d with cost %s", cost, a, x.costs[a].Get()),
		}
	}
	x.costs[a].Set(x.net.trail, c)
	return nil
}

// FindSupport recomputes the unary support and moves the minimum unary
// cost into the global lower bound.
func (x *Variable) FindSupport() error {
	n := x.net
	minCost := wcsp.MaxCost
	support := -1
	for a := range x.Values() {
		if wcsp.GLB(&minCost, x.Cost(a)) || support < 0 {
			support = a
		}
	}
	if minCost > wcsp.MinCost {
		if n.Cut(minCost) {
			return wcsp.Contradiction{Reason: fmt.Sprintf("every value of %s is forbidden", x.name)}
		}
		for a := range x.Values() {
			x.costs[a].Set(n.trail, x.Cost(a)-minCost)
		}
		if err := n.IncreaseLb(minCost); err != nil {
			return err
		}
	}
	if support != x.Support() {
		x.SetSupport(support)
	}
	return nil
}

// Remove deletes value a. Removing the last value is a contradiction.
func (x *Variable) Remove(a int) error {
	if !x.CanBe(a) {
		return nil
	}
	n := x.net
	size := x.size.Get()
	if size == 1 {
		return wcsp.Contradiction{Reason: fmt.Sprintf("domain wipe-out on %s", x.name)}
	}
	x.present[a].Set(n.trail, false)
	x.size.Set(n.trail, size-1)
	if a == x.inf.Get() {
		b := a + 1
		for !x.present[b].Get() {
			b++
		}
		x.inf.Set(n.trail, b)
	}
	if a == x.sup.Get() {
		b := a - 1
		for !x.present[b].Get() {
			b--
		}
		x.sup.Set(n.trail, b)
	}
	if a == x.Support() || size-1 == 1 {
		n.schedule(x)
	}
	n.valueRemoved(x, a)
	return nil
}

// Assign removes every value but a.
func (x *Variable) Assign(a int) error {
	if !x.CanBe(a) {
		return wcsp.Contradiction{Reason: fmt.Sprintf("value %d of %s already removed", a, x.name)}
	}
	for b := range x.Values() {
		if b != a {
			if err := x.Remove(b); err != nil {
				return err
			}
		}
	}
	return nil
}

// pruneCut removes values whose cost became forbidden after a bound moved.
func (x *Variable) pruneCut() error {
	for a := range x.Values() {
		if x.net.Cut(x.Cost(a)) {
			if err := x.Remove(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// swap exchanges the values a and b of x together with their unary costs
// and the rows of every pairwise cost function on x.
func (x *Variable) swap(a, b int) {
	if a == b {
		return
	}
	t := x.net.trail
	pa, pb := x.present[a].Get(), x.present[b].Get()
	x.present[a].Set(t, pb)
	x.present[b].Set(t, pa)
	ca, cb := x.Cost(a), x.Cost(b)
	x.costs[a].Set(t, cb)
	x.costs[b].Set(t, ca)
	switch x.Support() {
	case a:
		x.SetSupport(b)
	case b:
		x.SetSupport(a)
	}
	for l := range x.Links() {
		if c, ok := x.net.constrs[l.constraint].(*Binary); ok {
			c.Permute(x, a, b)
		}
	}
	if x.perm == nil {
		x.perm = make([]int, x.InitSize())
		for i := range x.perm {
			x.perm[i] = i
		}
	}
	x.perm[a], x.perm[b] = x.perm[b], x.perm[a]

	inf, sup := -1, -1
	for v := range x.present {
		if x.present[v].Get() {
			if inf < 0 {
				inf = v
			}
			sup = v
		}
	}
	x.inf.Set(t, inf)
	x.sup.Set(t, sup)
}
