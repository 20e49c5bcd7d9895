// Package network holds a weighted constraint network and its soft arc
// consistency propagation. Variables and cost functions live in arenas
// owned by the Network; membership links address cost functions by their
// arena index. All propagation state is reversible through the Network's
// trail.
package network

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/operator-framework/wcsp/internal/trail"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

var _ wcsp.Builder = &Network{}

// Level selects the local consistency enforced by pairwise cost functions.
type Level int

const (
	// NC only projects pairwise costs once one side is assigned.
	NC Level = iota
	// AC enforces directional arc consistency in both directions.
	AC
	// DAC enforces full supports toward the lower-indexed variable and
	// arc consistency in the other direction.
	DAC
)

func (l Level) String() string {
	switch l {
	case NC:
		return "nc"
	case AC:
		return "ac"
	case DAC:
		return "dac"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps "nc", "ac" or "dac" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "nc":
		return NC, nil
	case "ac", "":
		return AC, nil
	case "dac", "fdac":
		return DAC, nil
	}
	return AC, fmt.Errorf("unknown propagation level %q", s)
}

// Stats counts propagation work. Counters are not reversible.
type Stats struct {
	Projections int64
	Extensions  int64
	Revisions   int64
	Removals    int64
}

// Constraint is a cost function of the network.
type Constraint interface {
	ID() int
	Arity() int
	Scope() []*Variable
	Connected() bool
	Disconnect()
	Reconnect()
	// Propagate runs the cost function to its local fixpoint.
	Propagate() error
	// Cost evaluates the current cost of a tuple of value indices ordered
	// like Scope.
	Cost(tuple []int) wcsp.Cost
}

type Network struct {
	trail  *trail.Trail
	logger *log.Logger
	level  Level

	vars    []*Variable
	constrs []Constraint

	lb trail.Value[wcsp.Cost]
	ub wcsp.Cost

	queue   queue
	pending []*Variable
	// prune is set when lb or ub moved since the last sweep over all
	// domains.
	prune bool

	stats Stats
}

type Option func(n *Network) error

// WithUpperBound sets the initial forbidden-cost threshold.
func WithUpperBound(ub wcsp.Cost) Option {
	return func(n *Network) error {
		if ub <= wcsp.MinCost {
			return fmt.Errorf("upper bound must be positive, got %d", ub)
		}
		n.ub = ub
		return nil
	}
}

func WithLevel(l Level) Option {
	return func(n *Network) error {
		if l < NC || l > DAC {
			return fmt.Errorf("invalid propagation level %d", l)
		}
		n.level = l
		return nil
	}
}

func WithLogger(l *log.Logger) Option {
	return func(n *Network) error {
		n.logger = l
		return nil
	}
}

var defaults = []Option{
	func(n *Network) error {
		if n.logger == nil {
			n.logger = log.NewWithOptions(io.Discard, log.Options{})
		}
		return nil
	},
}

func New(options ...Option) (*Network, error) {
	n := &Network{
		trail: trail.New(),
		level: AC,
		ub:    wcsp.MaxCost,
	}
	for _, option := range append(options, defaults...) {
		if err := option(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *Network) Trail() *trail.Trail {
	return n.trail
}

func (n *Network) Level() Level {
	return n.level
}

func (n *Network) Stats() Stats {
	return n.stats
}

// Enter opens a choice point. Releasing it restores every reversible
// field of the network to its state at the time of the call.
func (n *Network) Enter() *trail.ChoicePoint {
	return n.trail.EnterFunc(n.flush)
}

func (n *Network) Mark() int {
	return n.trail.Mark()
}

// Restore undoes every reversible write made after depth.
func (n *Network) Restore(depth int) {
	n.trail.Restore(depth)
	n.flush()
}

func (n *Network) Depth() int {
	return n.trail.Depth()
}

func (n *Network) Lb() wcsp.Cost {
	return n.lb.Get()
}

func (n *Network) Ub() wcsp.Cost {
	return n.ub
}

// SetUb lowers the upper bound. The bound is global to the search and is
// not restored on backtrack.
func (n *Network) SetUb(ub wcsp.Cost) {
	if ub < n.ub {
		n.ub = ub
		n.prune = true
	}
}

// IncreaseLb adds cost to the global lower bound.
func (n *Network) IncreaseLb(cost wcsp.Cost) error {
	if cost == wcsp.MinCost {
		return nil
	}
	if cost < wcsp.MinCost {
		return &wcsp.InconsistencyError{Constraint: "lb", Detail: fmt.Sprintf("negative lower bound increment %d", cost)}
	}
	lb, err := wcsp.AddExact(n.lb.Get(), cost)
	if err != nil {
		return err
	}
	n.lb.Set(n.trail, lb)
	n.prune = true
	if lb >= n.ub {
		return wcsp.Contradiction{Reason: fmt.Sprintf("lower bound %s reaches upper bound %s", lb, n.ub)}
	}
	return nil
}

// Cut reports whether cost is forbidden with respect to the current
// bounds.
func (n *Network) Cut(cost wcsp.Cost) bool {
	return wcsp.Cut(cost, n.lb.Get(), n.ub)
}

func (n *Network) NumVariables() int {
	return len(n.vars)
}

func (n *Network) Variable(i int) *Variable {
	return n.vars[i]
}

func (n *Network) Variables() []*Variable {
	return n.vars
}

func (n *Network) NumConstraints() int {
	return len(n.constrs)
}

func (n *Network) Constraint(i int) Constraint {
	return n.constrs[i]
}

// Constraints returns the connected cost functions.
func (n *Network) Constraints() []Constraint {
	var cs []Constraint
	for _, c := range n.constrs {
		if c.Connected() {
			cs = append(cs, c)
		}
	}
	return cs
}

func (n *Network) register(c Constraint) {
	n.constrs = append(n.constrs, c)
	n.queue.grow(len(n.constrs))
}

func (n *Network) nextID() int {
	return len(n.constrs)
}

func (n *Network) enqueue(c Constraint) {
	n.queue.push(c)
}

func (n *Network) schedule(x *Variable) {
	if x.pending {
		return
	}
	x.pending = true
	n.pending = append(n.pending, x)
}

func (n *Network) valueRemoved(x *Variable, _ int) {
	n.stats.Removals++
	for l := range x.Links() {
		n.enqueue(n.constrs[l.constraint])
	}
}

// flush drops pending work after a contradiction or a restore.
func (n *Network) flush() {
	n.queue.clear()
	for _, x := range n.pending {
		x.pending = false
	}
	n.pending = n.pending[:0]
	n.prune = true
}

// Propagate drives every queued cost function and every variable with a
// stale unary support to a local fixpoint.
func (n *Network) Propagate() error {
	if err := n.propagate(); err != nil {
		n.flush()
		return err
	}
	return nil
}

func (n *Network) propagate() error {
	if lb := n.lb.Get(); lb >= n.ub {
		return wcsp.Contradiction{Reason: fmt.Sprintf("lower bound %s reaches upper bound %s", lb, n.ub)}
	}
	for {
		if c := n.queue.pop(); c != nil {
			if !c.Connected() {
				continue
			}
			n.stats.Revisions++
			if err := c.Propagate(); err != nil {
				return err
			}
			continue
		}
		if len(n.pending) > 0 {
			x := n.pending[0]
			n.pending = n.pending[1:]
			x.pending = false
			if err := x.FindSupport(); err != nil {
				return err
			}
			continue
		}
		if n.prune {
			n.prune = false
			for _, x := range n.vars {
				if err := x.pruneCut(); err != nil {
					return err
				}
			}
			continue
		}
		return nil
	}
}

// Assign reduces the domain of variable i to value a.
func (n *Network) Assign(i, a int) error {
	if err := n.vars[i].Assign(a); err != nil {
		n.flush()
		return err
	}
	return nil
}

// Remove deletes value a from the domain of variable i.
func (n *Network) Remove(i, a int) error {
	if err := n.vars[i].Remove(a); err != nil {
		n.flush()
		return err
	}
	return nil
}

// Verify checks the arc consistency of every connected pairwise cost
// function and the unary support of every variable. It is a diagnostic
// and must only be called at a propagation fixpoint.
func (n *Network) Verify() error {
	for _, x := range n.vars {
		if c := x.Cost(x.Support()); !x.CanBe(x.Support()) || c != wcsp.MinCost {
			return &wcsp.InconsistencyError{
				Constraint: x.Name(),
				Detail:     fmt.Sprintf("unary support %d has cost %s", x.Support(), c),
			}
		}
	}
	if n.level == NC {
		return nil
	}
	for _, c := range n.constrs {
		b, ok := c.(*Binary)
		if !ok || !b.Connected() {
			continue
		}
		if !b.Verify(b.x, b.y) || !b.Verify(b.y, b.x) {
			return &wcsp.InconsistencyError{Constraint: b.String(), Detail: "row without zero-cost support"}
		}
	}
	return nil
}

// Evaluate returns the cost of a complete assignment in the current state
// of the network, or MaxCost if a value is not in its domain.
func (n *Network) Evaluate(values []int) wcsp.Cost {
	if len(values) != len(n.vars) {
		return wcsp.MaxCost
	}
	total := n.lb.Get()
	for i, x := range n.vars {
		a := values[i]
		if !x.CanBe(a) {
			return wcsp.MaxCost
		}
		total = wcsp.Add(total, x.Cost(a))
	}
	for _, c := range n.constrs {
		if !c.Connected() {
			continue
		}
		scope := c.Scope()
		tuple := make([]int, len(scope))
		for i, x := range scope {
			tuple[i] = values[x.Index()]
		}
		total = wcsp.Add(total, c.Cost(tuple))
	}
	return total
}

type queue struct {
	items []Constraint
	head  int
	in    []bool
}

func (q *queue) grow(n int) {
	for len(q.in) < n {
		q.in = append(q.in, false)
	}
}

func (q *queue) push(c Constraint) {
	id := c.ID()
	if q.in[id] {
		return
	}
	q.in[id] = true
	q.items = append(q.items, c)
}

func (q *queue) pop() Constraint {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return nil
	}
	c := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	q.in[c.ID()] = false
	return c
}

func (q *queue) clear() {
	for _, c := range q.items[q.head:] {
		q.in[c.ID()] = false
	}
	q.items = q.items[:0]
	q.head = 0
}
