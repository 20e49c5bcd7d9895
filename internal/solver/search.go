package solver

import (
	"context"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/internal/trail"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

type guess struct {
	variable   int
	index      int // index of the guessed value in candidates
	candidates []int
	cp         *trail.ChoicePoint
}

// search is a depth-first branch and bound over the values of one
// variable per choice point.
type search struct {
	net       *network.Network
	tracer    wcsp.Tracer
	nodeLimit int64
	guesses   []guess
	nodes     int64
	// backtracks counts choice points released after a contradiction.
	backtracks int64
	err        error

	onSolution  func(values []int, cost wcsp.Cost)
	onNode      func()
	onBacktrack func()
}

var _ wcsp.SearchPosition = &search{}

func (h *search) Depth() int {
	return len(h.guesses)
}

func (h *search) Variable() string {
	if len(h.guesses) == 0 {
		return ""
	}
	return h.net.Variable(h.guesses[len(h.guesses)-1].variable).Name()
}

func (h *search) Value() int {
	if len(h.guesses) == 0 {
		return -1
	}
	g := h.guesses[len(h.guesses)-1]
	return g.candidates[g.index]
}

func (h *search) Lb() wcsp.Cost {
	return h.net.Lb()
}

func (h *search) Ub() wcsp.Cost {
	return h.net.Ub()
}

func (h *search) Err() error {
	return h.err
}

// next returns the unassigned variable with the smallest domain, ties going
// to the most constrained one, or -1 once every variable is assigned.
func (h *search) next() int {
	best := -1
	for _, x := range h.net.Variables() {
		if x.Assigned() {
			continue
		}
		if best < 0 {
			best = x.Index()
			continue
		}
		y := h.net.Variable(best)
		if x.Size() < y.Size() || (x.Size() == y.Size() && x.Degree() > y.Degree()) {
			best = x.Index()
		}
	}
	return best
}

// candidates orders the values of x, its unary support first.
func (h *search) candidates(x *network.Variable) []int {
	values := make([]int, 0, x.Size())
	support := x.Support()
	if x.CanBe(support) {
		values = append(values, support)
	}
	for a := range x.Values() {
		if a != support {
			values = append(values, a)
		}
	}
	return values
}

// PushGuess opens a choice point on x and tries its first value.
func (h *search) PushGuess(x int) {
	h.guesses = append(h.guesses, guess{
		variable:   x,
		index:      -1,
		candidates: h.candidates(h.net.Variable(x)),
	})
	h.advance()
}

// advance tries the remaining values of the innermost guess until one
// propagates without contradiction. h.err is left set when none does.
func (h *search) advance() {
	g := &h.guesses[len(h.guesses)-1]
	for g.index+1 < len(g.candidates) {
		g.index++
		g.cp = h.net.Enter()
		h.nodes++
		if h.onNode != nil {
			h.onNode()
		}
		h.err = h.net.Assign(g.variable, g.candidates[g.index])
		if h.err == nil {
			h.err = h.net.Propagate()
		}
		h.tracer.Trace(h)
		if h.err == nil || !wcsp.IsContradiction(h.err) {
			return
		}
		h.release(g)
	}
}

func (h *search) release(g *guess) {
	g.cp.Release()
	g.cp = nil
	h.backtracks++
	if h.onBacktrack != nil {
		h.onBacktrack()
	}
}

// PopGuess closes the innermost choice point and moves its parent to the
// next value.
func (h *search) PopGuess() {
	g := &h.guesses[len(h.guesses)-1]
	if g.cp != nil {
		h.release(g)
	}
	h.err = wcsp.Contradiction{Reason: "values exhausted"}
	h.guesses = h.guesses[:len(h.guesses)-1]
}

func (h *search) solution() {
	values := make([]int, h.net.NumVariables())
	for i, x := range h.net.Variables() {
		values[i] = x.Value()
	}
	h.onSolution(values, h.net.Lb())
}

// Do explores the search tree. It reports whether the tree was exhausted;
// errors other than contradictions abort the search.
func (h *search) Do(ctx context.Context) (bool, error) {
	if err := h.net.Propagate(); err != nil {
		if wcsp.IsContradiction(err) {
			return true, nil
		}
		return false, err
	}
	defer func() {
		for len(h.guesses) > 0 {
			g := h.guesses[len(h.guesses)-1]
			if g.cp != nil {
				g.cp.Release()
			}
			h.guesses = h.guesses[:len(h.guesses)-1]
		}
	}()

	for {
		if ctx.Err() != nil || (h.nodeLimit > 0 && h.nodes >= h.nodeLimit) {
			return false, nil
		}
		if h.err != nil && !wcsp.IsContradiction(h.err) {
			return false, h.err
		}

		// Move to the next value of the innermost guess, or close it.
		if h.err != nil {
			if len(h.guesses) == 0 {
				return true, nil
			}
			g := &h.guesses[len(h.guesses)-1]
			if g.cp != nil {
				h.release(g)
			}
			h.advance()
			if h.err != nil && wcsp.IsContradiction(h.err) {
				h.PopGuess()
			}
			continue
		}

		x := h.next()
		if x < 0 {
			h.solution()
			h.err = wcsp.Contradiction{Reason: "solution recorded"}
			continue
		}
		h.PushGuess(x)
		if h.err != nil && wcsp.IsContradiction(h.err) {
			h.PopGuess()
		}
	}
}
