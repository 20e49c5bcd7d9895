package network

import (
	"fmt"

	"github.com/operator-framework/wcsp/internal/trail"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// constraint holds the connectivity shared by every cost function.
type constraint struct {
	net       *Network
	id        int
	links     []*Link
	connected trail.Value[bool]
}

func (c *constraint) ID() int {
	return c.id
}

func (c *constraint) Connected() bool {
	return c.connected.Get()
}

func (c *constraint) Disconnect() {
	if !c.connected.Get() {
		return
	}
	t := c.net.trail
	c.connected.Set(t, false)
	for _, l := range c.links {
		l.disconnect(t)
	}
}

func (c *constraint) Reconnect() {
	if c.connected.Get() {
		return
	}
	t := c.net.trail
	c.connected.Set(t, true)
	for _, l := range c.links {
		l.reconnect(t)
	}
}

// link creates a connected membership link for the variable at position
// and attaches it to the variable.
func (c *constraint) link(x *Variable, position int) *Link {
	l := &Link{constraint: c.id, position: position, connected: trail.NewValue(true)}
	x.attach(l)
	return l
}

// Binary is a pairwise cost function with a dense cost table.
//
// The table holds the costs as posted. The cost currently carried by the
// function for (a, b) is table[a,b] - deltaX[a] - deltaY[b]; deltaX[a] is
// the cost already moved into the unary cost of value a of x. Moving cost
// between the function and a variable only changes the split, never
// table[a,b].
type Binary struct {
	constraint
	x, y         *Variable
	sizeX, sizeY int

	costs              []trail.Value[wcsp.Cost]
	deltaX, deltaY     []trail.Value[wcsp.Cost]
	supportX, supportY []trail.Value[int]
}

func newBinary(n *Network, x, y *Variable, costs []wcsp.Cost) *Binary {
	c := &Binary{constraint: constraint{net: n, id: n.nextID(), connected: trail.NewValue(true)}}
	c.bind(x, y, x.InitSize()*y.InitSize(), max(x.InitSize(), y.InitSize()))
	for i, cost := range costs {
		c.costs[i] = trail.NewValue(cost)
	}
	c.links = []*Link{c.link(x, 0), c.link(y, 1)}
	n.register(c)
	return c
}

// bind sets the scope and allocates a table of at least cells costs and
// delta and support arrays of at least size values.
func (c *Binary) bind(x, y *Variable, cells, size int) {
	c.x, c.y = x, y
	c.sizeX, c.sizeY = x.InitSize(), y.InitSize()
	if len(c.costs) < cells {
		c.costs = trail.Values(cells, wcsp.MinCost)
	}
	if len(c.deltaX) < size {
		c.deltaX = trail.Values(size, wcsp.MinCost)
		c.deltaY = trail.Values(size, wcsp.MinCost)
		c.supportX = trail.Values(size, 0)
		c.supportY = trail.Values(size, 0)
	}
	for a := 0; a < c.sizeX; a++ {
		c.supportX[a] = trail.NewValue(y.Inf())
	}
	for b := 0; b < c.sizeY; b++ {
		c.supportY[b] = trail.NewValue(x.Inf())
	}
}

func (c *Binary) String() string {
	return fmt.Sprintf("C%d(%s,%s)", c.id, c.x.Name(), c.y.Name())
}

func (c *Binary) Arity() int {
	return 2
}

func (c *Binary) Scope() []*Variable {
	return []*Variable{c.x, c.y}
}

func (c *Binary) X() *Variable {
	return c.x
}

func (c *Binary) Y() *Variable {
	return c.y
}

func (c *Binary) other(v *Variable) *Variable {
	if v == c.x {
		return c.y
	}
	return c.x
}

func (c *Binary) Cost(tuple []int) wcsp.Cost {
	return c.GetCost(tuple[0], tuple[1])
}

// GetCost returns the cost carried for a in x and b in y.
func (c *Binary) GetCost(a, b int) wcsp.Cost {
	cost := c.costs[a*c.sizeY+b].Get()
	if cost >= c.net.ub {
		return cost
	}
	return cost - c.deltaX[a].Get() - c.deltaY[b].Get()
}

// TableCost returns the cost as posted, independent of any projection.
func (c *Binary) TableCost(a, b int) wcsp.Cost {
	return c.costs[a*c.sizeY+b].Get()
}

// Delta returns the cost already moved from the function into value a of
// v.
func (c *Binary) Delta(v *Variable, a int) wcsp.Cost {
	return c.deltas(v)[a].Get()
}

// SupportOf returns the cached support in the other variable of value a
// of v.
func (c *Binary) SupportOf(v *Variable, a int) int {
	return c.supports(v)[a].Get()
}

// costFrom returns the cost for a in v and b in the other variable.
func (c *Binary) costFrom(v *Variable, a, b int) wcsp.Cost {
	if v == c.x {
		return c.GetCost(a, b)
	}
	return c.GetCost(b, a)
}

func (c *Binary) deltas(v *Variable) []trail.Value[wcsp.Cost] {
	if v == c.x {
		return c.deltaX
	}
	return c.deltaY
}

func (c *Binary) supports(v *Variable) []trail.Value[int] {
	if v == c.x {
		return c.supportX
	}
	return c.supportY
}

func (c *Binary) index(v *Variable, a, b int) int {
	if v == c.x {
		return a*c.sizeY + b
	}
	return b*c.sizeY + a
}

// Project moves cost from the function into the unary cost of value a of
// x. It reports whether the unary support of x may have been broken.
// Forbidden costs are not moved out of the table.
func (c *Binary) Project(x *Variable, a int, cost wcsp.Cost) (bool, error) {
	n := c.net
	n.stats.Projections++
	if !n.Cut(cost) {
		d := c.deltas(x)
		d[a].Set(n.trail, d[a].Get()+cost)
	}
	old := x.Cost(a)
	if err := x.Project(a, cost); err != nil {
		return false, err
	}
	return x.Support() == a || (old == wcsp.MinCost && cost > wcsp.MinCost), nil
}

// Extend moves cost from the unary cost of value a of x back into the
// function.
func (c *Binary) Extend(x *Variable, a int, cost wcsp.Cost) error {
	n := c.net
	n.stats.Extensions++
	d := c.deltas(x)
	d[a].Set(n.trail, d[a].Get()-cost)
	return x.Extend(a, cost)
}

// FindSupport enforces directional arc consistency of x with respect to
// y: every value of x gets a value of y with zero cost in the function.
func (c *Binary) FindSupport(x, y *Variable) error {
	n := c.net
	supportX := c.supports(x)
	broken := false
	for a := range x.Values() {
		support := supportX[a].Get()
		if y.CanBe(support) && c.costFrom(x, a, support) == wcsp.MinCost {
			continue
		}
		minValue := -1
		minCost := wcsp.MaxCost
		for b := range y.Values() {
			if wcsp.GLB(&minCost, c.costFrom(x, a, b)) || minValue < 0 {
				minValue = b
			}
			if minCost == wcsp.MinCost {
				break
			}
		}
		if minCost > wcsp.MinCost {
			b, err := c.Project(x, a, minCost)
			if err != nil {
				return err
			}
			broken = broken || b
		}
		supportX[a].Set(n.trail, minValue)
	}
	if broken {
		return x.FindSupport()
	}
	return nil
}

// FindFullSupport enforces full directional arc consistency of x with
// respect to y: every value of x gets a value of y whose cost in the
// function plus its unary cost is zero. The unary costs of y needed to
// reach that state are first extended into the function.
func (c *Binary) FindFullSupport(x, y *Variable) error {
	n := c.net
	supportX, supportY := c.supports(x), c.supports(y)
	broken := false
	for a := range x.Values() {
		support := supportX[a].Get()
		if y.CanBe(support) && wcsp.Add(c.costFrom(x, a, support), y.Cost(support)) == wcsp.MinCost {
			continue
		}
		minValue := -1
		minCost := wcsp.MaxCost
		for b := range y.Values() {
			if wcsp.GLB(&minCost, wcsp.Add(c.costFrom(x, a, b), y.Cost(b))) || minValue < 0 {
				minValue = b
			}
			if minCost == wcsp.MinCost {
				break
			}
		}
		if minCost > wcsp.MinCost {
			if !n.Cut(minCost) {
				for b := range y.Values() {
					if cost := c.costFrom(x, a, b); cost < minCost {
						if err := c.Extend(y, b, minCost-cost); err != nil {
							return err
						}
						supportY[b].Set(n.trail, a)
					}
				}
			}
			b, err := c.Project(x, a, minCost)
			if err != nil {
				return err
			}
			broken = broken || b
		}
		supportX[a].Set(n.trail, minValue)
	}
	if broken {
		return x.FindSupport()
	}
	return nil
}

// Projection moves, for the single value valueY of y, every positive cost
// of the function into the unary costs of x.
func (c *Binary) Projection(x, y *Variable, valueY int) error {
	broken := false
	for a := range x.Values() {
		if cost := c.costFrom(x, a, valueY); cost > wcsp.MinCost {
			b, err := c.Project(x, a, cost)
			if err != nil {
				return err
			}
			broken = broken || b
		}
	}
	if broken {
		return x.FindSupport()
	}
	return nil
}

// Verify reports whether every value of x has a zero-cost value in y.
func (c *Binary) Verify(x, y *Variable) bool {
	for a := range x.Values() {
		minCost := wcsp.MaxCost
		for b := range y.Values() {
			wcsp.GLB(&minCost, c.costFrom(x, a, b))
			if minCost == wcsp.MinCost {
				break
			}
		}
		if minCost > wcsp.MinCost {
			return false
		}
	}
	return true
}

// VerifyFull reports whether every value of x has a value in y whose cost
// plus its unary cost is zero.
func (c *Binary) VerifyFull(x, y *Variable) bool {
	for a := range x.Values() {
		minCost := wcsp.MaxCost
		for b := range y.Values() {
			wcsp.GLB(&minCost, wcsp.Add(c.costFrom(x, a, b), y.Cost(b)))
		}
		if minCost > wcsp.MinCost {
			return false
		}
	}
	return true
}

// Permute exchanges the rows of values a and b of x. Costs, deltas and
// supports follow their values.
func (c *Binary) Permute(x *Variable, a, b int) {
	if a == b {
		return
	}
	t := c.net.trail
	y := c.other(x)
	for v := 0; v < y.InitSize(); v++ {
		ia, ib := c.index(x, a, v), c.index(x, b, v)
		ca, cb := c.costs[ia].Get(), c.costs[ib].Get()
		c.costs[ia].Set(t, cb)
		c.costs[ib].Set(t, ca)
	}
	d := c.deltas(x)
	da, db := d[a].Get(), d[b].Get()
	d[a].Set(t, db)
	d[b].Set(t, da)
	s := c.supports(x)
	sa, sb := s[a].Get(), s[b].Get()
	s[a].Set(t, sb)
	s[b].Set(t, sa)
	sy := c.supports(y)
	for v := 0; v < y.InitSize(); v++ {
		switch sy[v].Get() {
		case a:
			sy[v].Set(t, b)
		case b:
			sy[v].Set(t, a)
		}
	}
}

// AddCosts adds table, indexed by a value of x times the domain size of
// the other variable plus a value of that variable, to the posted costs.
func (c *Binary) AddCosts(x *Variable, table []wcsp.Cost) {
	t := c.net.trail
	y := c.other(x)
	sy := y.InitSize()
	for a := 0; a < x.InitSize(); a++ {
		for b := 0; b < sy; b++ {
			cost := table[a*sy+b]
			if cost == wcsp.MinCost {
				continue
			}
			i := c.index(x, a, b)
			c.costs[i].Set(t, wcsp.Add(c.costs[i].Get(), cost))
		}
	}
}

// load replaces the whole function by table, resetting deltas and
// supports.
func (c *Binary) load(table []wcsp.Cost) {
	t := c.net.trail
	for i := 0; i < c.sizeX*c.sizeY; i++ {
		if c.costs[i].Get() != table[i] {
			c.costs[i].Set(t, table[i])
		}
	}
	for a := 0; a < c.sizeX; a++ {
		if c.deltaX[a].Get() != wcsp.MinCost {
			c.deltaX[a].Set(t, wcsp.MinCost)
		}
		c.supportX[a].Set(t, c.y.Inf())
	}
	for b := 0; b < c.sizeY; b++ {
		if c.deltaY[b].Get() != wcsp.MinCost {
			c.deltaY[b].Set(t, wcsp.MinCost)
		}
		c.supportY[b].Set(t, c.x.Inf())
	}
}

func (c *Binary) Propagate() error {
	x, y := c.x, c.y
	switch {
	case x.Assigned():
		c.Disconnect()
		return c.Projection(y, x, x.Value())
	case y.Assigned():
		c.Disconnect()
		return c.Projection(x, y, y.Value())
	}
	switch c.net.level {
	case AC:
		if err := c.FindSupport(x, y); err != nil {
			return err
		}
		return c.FindSupport(y, x)
	case DAC:
		if y.Index() < x.Index() {
			x, y = y, x
		}
		if err := c.FindFullSupport(x, y); err != nil {
			return err
		}
		return c.FindSupport(y, x)
	}
	return nil
}
