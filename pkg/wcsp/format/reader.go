// Package format reads cost function networks written in the .wcsp text
// format: a header line "name nvars maxsize nfunctions ub", one domain size
// per variable, then each cost function as its arity, its scope, a default
// cost, a number of tuples and the tuples themselves.
package format

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

var _ wcsp.ProblemSource = &Problem{}

type function struct {
	scope       []int
	defaultCost wcsp.Cost
	tuples      []tuple
	// table holds the dense costs of unary, pairwise and ternary cost
	// functions in row-major order.
	table []wcsp.Cost
}

type tuple struct {
	values []int
	cost   wcsp.Cost
}

// Problem is a parsed .wcsp file.
type Problem struct {
	name       string
	sizes      []int
	ub         wcsp.Cost
	lb         wcsp.Cost
	functions  []function
	unary      map[int][]wcsp.Cost
	multiplier int64
}

type Option func(p *Problem) error

// WithCostMultiplier scales every cost of the file, the upper bound
// included, by k.
func WithCostMultiplier(k int64) Option {
	return func(p *Problem) error {
		if k < 1 {
			return fmt.Errorf("cost multiplier must be positive, got %d", k)
		}
		p.multiplier = k
		return nil
	}
}

func (p *Problem) Name() string {
	return p.name
}

func (p *Problem) Sizes() []int {
	return p.sizes
}

// Ub is the scaled upper bound of the header.
func (p *Problem) Ub() wcsp.Cost {
	return p.ub
}

func (p *Problem) NumFunctions() int {
	return len(p.functions) + len(p.unary)
}

// NewProblem parses r. Global cost functions and arithmetic pairwise
// functions are rejected.
func NewProblem(r io.Reader, options ...Option) (*Problem, error) {
	p := &Problem{multiplier: 1, unary: map[int][]wcsp.Cost{}}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	s := newScanner(r)
	if err := p.parse(s); err != nil {
		return nil, fmt.Errorf("error parsing wcsp data (token %d): %w", s.tokens, err)
	}
	return p, nil
}

func (p *Problem) scale(c wcsp.Cost) (wcsp.Cost, error) {
	if c < wcsp.MinCost {
		return wcsp.MinCost, fmt.Errorf("negative cost %d", c)
	}
	return wcsp.Scale(c, p.multiplier)
}

func (p *Problem) parse(s *scanner) error {
	var err error
	if p.name, err = s.word(); err != nil {
		return fmt.Errorf("missing problem name: %w", err)
	}
	nvars, err := s.count()
	if err != nil {
		return fmt.Errorf("number of variables: %w", err)
	}
	if _, err := s.count(); err != nil {
		return fmt.Errorf("maximum domain size: %w", err)
	}
	nfunctions, err := s.count()
	if err != nil {
		return fmt.Errorf("number of cost functions: %w", err)
	}
	ub, err := s.cost()
	if err != nil {
		return fmt.Errorf("upper bound: %w", err)
	}
	if ub <= wcsp.MinCost {
		return fmt.Errorf("upper bound must be positive, got %d", ub)
	}
	if p.ub, err = wcsp.Scale(ub, p.multiplier); err != nil {
		p.ub = wcsp.MaxCost
	}
	p.ub = min(p.ub, wcsp.MaxCost)

	p.sizes = make([]int, nvars)
	for i := range p.sizes {
		size, err := s.number()
		if err != nil {
			return fmt.Errorf("domain size of variable %d: %w", i, err)
		}
		if size < 1 {
			return fmt.Errorf("variable %d: unsupported domain size %d", i, size)
		}
		p.sizes[i] = size
	}

	var shared []function
	for i := 0; i < nfunctions; i++ {
		f, isShared, err := p.function(s, shared)
		if err != nil {
			return fmt.Errorf("cost function %d: %w", i, err)
		}
		if isShared {
			shared = append(shared, f)
		}
	}
	if _, err := s.word(); !errors.Is(err, io.EOF) {
		if err != nil {
			return err
		}
		return errors.New("trailing data after the last cost function")
	}
	return nil
}

// function reads one cost function. Unary ones are merged per variable and
// the lower bound contributions summed.
func (p *Problem) function(s *scanner, shared []function) (function, bool, error) {
	arity, err := s.number()
	if err != nil {
		return function{}, false, err
	}
	isShared := arity < 0
	if isShared {
		arity = -arity
	}
	if arity == 0 {
		return function{}, false, p.constant(s)
	}

	f := function{scope: make([]int, arity)}
	for i := range f.scope {
		x, err := s.number()
		if err != nil {
			return f, false, err
		}
		if x < 0 || x >= len(p.sizes) {
			return f, false, fmt.Errorf("variable %d out of range", x)
		}
		if slices.Contains(f.scope[:i], x) {
			return f, false, fmt.Errorf("variable %d appears twice in scope", x)
		}
		f.scope[i] = x
	}
	def, err := s.number64()
	if err != nil {
		return f, false, err
	}
	if def < 0 {
		name, _ := s.word()
		return f, false, fmt.Errorf("global or arithmetic cost function %q is not supported", name)
	}
	if f.defaultCost, err = p.scale(wcsp.Cost(def)); err != nil {
		return f, false, err
	}
	ntuples, err := s.number()
	if err != nil {
		return f, false, err
	}

	if ntuples < 0 {
		reused := -ntuples - 1
		if reused >= len(shared) {
			return f, false, fmt.Errorf("shared cost function %d is not defined", reused+1)
		}
		g := shared[reused]
		if len(g.scope) != arity {
			return f, false, fmt.Errorf("shared cost function %d has arity %d, want %d", reused+1, len(g.scope), arity)
		}
		for i := range g.scope {
			if p.sizes[g.scope[i]] != p.sizes[f.scope[i]] {
				return f, false, fmt.Errorf("shared cost function %d has different domain sizes", reused+1)
			}
		}
		f.defaultCost, f.tuples, f.table = g.defaultCost, g.tuples, g.table
	} else {
		seen := map[string]struct{}{}
		for k := 0; k < ntuples; k++ {
			t := tuple{values: make([]int, arity)}
			for i, x := range f.scope {
				a, err := s.number()
				if err != nil {
					return f, false, err
				}
				if a < 0 || a >= p.sizes[x] {
					return f, false, fmt.Errorf("value %d out of the domain of variable %d", a, x)
				}
				t.values[i] = a
			}
			c, err := s.cost()
			if err != nil {
				return f, false, err
			}
			if t.cost, err = p.scale(c); err != nil {
				return f, false, err
			}
			key := fmt.Sprint(t.values)
			if _, ok := seen[key]; ok {
				return f, false, fmt.Errorf("duplicate tuple %v", t.values)
			}
			seen[key] = struct{}{}
			f.tuples = append(f.tuples, t)
		}
		if arity <= 3 {
			f.table = p.dense(f)
		}
	}

	if arity == 1 {
		p.mergeUnary(f.scope[0], f.table)
		return f, isShared, nil
	}
	if f.defaultCost != wcsp.MinCost || len(f.tuples) > 0 {
		p.functions = append(p.functions, f)
	}
	return f, isShared, nil
}

func (p *Problem) constant(s *scanner) error {
	def, err := s.cost()
	if err != nil {
		return err
	}
	ntuples, err := s.number()
	if err != nil {
		return err
	}
	cost := def
	switch ntuples {
	case 0:
	case 1:
		if cost, err = s.cost(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("lower bound contribution with %d tuples", ntuples)
	}
	if cost, err = p.scale(cost); err != nil {
		return err
	}
	p.lb, err = wcsp.AddExact(p.lb, cost)
	return err
}

func (p *Problem) dense(f function) []wcsp.Cost {
	cells := 1
	for _, x := range f.scope {
		cells *= p.sizes[x]
	}
	table := make([]wcsp.Cost, cells)
	for i := range table {
		table[i] = f.defaultCost
	}
	for _, t := range f.tuples {
		i := 0
		for k, x := range f.scope {
			i = i*p.sizes[x] + t.values[k]
		}
		table[i] = t.cost
	}
	return table
}

// mergeUnary adds costs to the unary costs of x. A value already at the
// upper bound stays there.
func (p *Problem) mergeUnary(x int, costs []wcsp.Cost) {
	merged, ok := p.unary[x]
	if !ok {
		p.unary[x] = slices.Clone(costs)
		return
	}
	for a, c := range costs {
		if merged[a] >= p.ub {
			continue
		}
		if c >= p.ub {
			merged[a] = p.ub
			continue
		}
		merged[a] = wcsp.Add(merged[a], c)
	}
}

// Load posts the problem on b. Pairwise and higher-arity cost functions are
// posted in file order, unary costs last.
func (p *Problem) Load(ctx context.Context, b wcsp.Builder) error {
	vars := make([]int, len(p.sizes))
	for i, size := range p.sizes {
		vars[i] = b.AddVariable(strconv.Itoa(i), size)
	}
	b.SetUb(p.ub)
	if err := b.IncreaseLb(p.lb); err != nil {
		return err
	}
	for i, f := range p.functions {
		if err := ctx.Err(); err != nil {
			return err
		}
		scope := make([]int, len(f.scope))
		for k, x := range f.scope {
			scope[k] = vars[x]
		}
		if err := p.post(b, scope, f); err != nil {
			return fmt.Errorf("cost function %d: %w", i, err)
		}
	}
	for x := range p.sizes {
		costs, ok := p.unary[x]
		if !ok {
			continue
		}
		if err := b.PostUnary(vars[x], costs); err != nil {
			return fmt.Errorf("unary cost function on %d: %w", x, err)
		}
	}
	return nil
}

func (p *Problem) post(b wcsp.Builder, scope []int, f function) error {
	switch len(scope) {
	case 2:
		_, err := b.PostBinary(scope[0], scope[1], f.table)
		return err
	case 3:
		_, err := b.PostTernary(scope[0], scope[1], scope[2], f.table)
		return err
	}
	ctr, err := b.PostNaryBegin(scope, f.defaultCost, len(f.tuples))
	if err != nil {
		return err
	}
	for _, t := range f.tuples {
		if err := b.PostNaryTuple(ctr, t.values, t.cost); err != nil {
			return err
		}
	}
	return b.PostNaryEnd(ctr)
}

type scanner struct {
	s      *bufio.Scanner
	tokens int
}

func newScanner(r io.Reader) *scanner {
	s := bufio.NewScanner(r)
	s.Split(bufio.ScanWords)
	return &scanner{s: s}
}

func (s *scanner) word() (string, error) {
	if !s.s.Scan() {
		if err := s.s.Err(); err != nil {
			return "", fmt.Errorf("error reading wcsp data: %w", err)
		}
		return "", io.EOF
	}
	s.tokens++
	return s.s.Text(), nil
}

func (s *scanner) number64() (int64, error) {
	w, err := s.word()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	v, err := strconv.ParseInt(w, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number (%s)", w)
	}
	return v, nil
}

func (s *scanner) number() (int, error) {
	v, err := s.number64()
	return int(v), err
}

func (s *scanner) count() (int, error) {
	v, err := s.number()
	if err == nil && v < 0 {
		err = fmt.Errorf("negative count %d", v)
	}
	return v, err
}

func (s *scanner) cost() (wcsp.Cost, error) {
	v, err := s.number64()
	if err == nil && v < 0 {
		err = fmt.Errorf("negative cost %d", v)
	}
	return wcsp.Cost(v), err
}
