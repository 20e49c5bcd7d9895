// Package solver finds a minimum cost assignment of a cost function
// network read from a wcsp.ProblemSource.
package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/operator-framework/wcsp/internal/metrics"
	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/internal/solver"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// ErrIncomplete is the Solution error of a search interrupted before it
// found any assignment.
var ErrIncomplete = solver.ErrIncomplete

// Solution is returned by the Solver when the search ran. A search that ran
// can still end without an assignment: Error then reports why.
type Solution struct {
	err        error
	values     []int
	cost       wcsp.Cost
	optimal    bool
	nodes      int64
	backtracks int64
}

// Error returns a wcsp.Contradiction when no assignment is below the upper
// bound and ErrIncomplete when the search was interrupted first.
func (s *Solution) Error() error {
	return s.err
}

// Values returns one value index per variable, in the order the source
// declared them.
func (s *Solution) Values() []int {
	return s.values
}

func (s *Solution) Cost() wcsp.Cost {
	return s.cost
}

// Optimal reports whether the search space was exhausted.
func (s *Solution) Optimal() bool {
	return s.optimal
}

func (s *Solution) Nodes() int64 {
	return s.nodes
}

func (s *Solution) Backtracks() int64 {
	return s.backtracks
}

type settings struct {
	ub          wcsp.Cost
	level       network.Level
	sortDomains bool
	tracer      wcsp.Tracer
	logger      *log.Logger
	metrics     *metrics.Metrics
	nodeLimit   int64
	timeLimit   time.Duration
	hardCheck   bool
	hardBudget  time.Duration
	dump        io.Writer
}

type Option func(s *settings) error

// WithUpperBound tightens the upper bound of the source.
func WithUpperBound(ub wcsp.Cost) Option {
	return func(s *settings) error {
		if ub <= wcsp.MinCost {
			return fmt.Errorf("upper bound must be positive, got %d", ub)
		}
		s.ub = ub
		return nil
	}
}

func WithLevel(l network.Level) Option {
	return func(s *settings) error {
		s.level = l
		return nil
	}
}

// WithSortedDomains orders values by unary cost before search when every
// cost function is pairwise.
func WithSortedDomains() Option {
	return func(s *settings) error {
		s.sortDomains = true
		return nil
	}
}

func WithTracer(t wcsp.Tracer) Option {
	return func(s *settings) error {
		s.tracer = t
		return nil
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *settings) error {
		s.logger = l
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) error {
		s.metrics = m
		return nil
	}
}

func WithNodeLimit(limit int64) Option {
	return func(s *settings) error {
		s.nodeLimit = limit
		return nil
	}
}

func WithTimeLimit(d time.Duration) Option {
	return func(s *settings) error {
		s.timeLimit = d
		return nil
	}
}

// WithHardCheck runs a SAT check of the forbidden tuples before search.
func WithHardCheck(budget time.Duration) Option {
	return func(s *settings) error {
		s.hardCheck = true
		s.hardBudget = budget
		return nil
	}
}

// WithDump writes the network to w in .wcsp format once it is loaded and
// propagated at the root, in the value indices of the source.
func WithDump(w io.Writer) Option {
	return func(s *settings) error {
		s.dump = w
		return nil
	}
}

// WCSPSolver loads a problem source and searches it.
type WCSPSolver struct {
	source   wcsp.ProblemSource
	settings settings
}

func NewSolver(source wcsp.ProblemSource, options ...Option) (*WCSPSolver, error) {
	if source == nil {
		return nil, errors.New("no problem source")
	}
	s := &WCSPSolver{source: source, settings: settings{level: network.AC}}
	for _, option := range options {
		if err := option(&s.settings); err != nil {
			return nil, err
		}
	}
	if s.settings.logger == nil {
		s.settings.logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return s, nil
}

// Solve loads the source into a fresh network and runs branch and bound.
// Infeasibility is reported through Solution.Error; loading and internal
// errors are returned.
func (s *WCSPSolver) Solve(ctx context.Context) (*Solution, error) {
	o := s.settings
	netOptions := []network.Option{network.WithLevel(o.level), network.WithLogger(o.logger)}
	if o.ub > wcsp.MinCost {
		netOptions = append(netOptions, network.WithUpperBound(o.ub))
	}
	n, err := network.New(netOptions...)
	if err != nil {
		return nil, err
	}
	if err := s.source.Load(ctx, n); err != nil {
		if wcsp.IsContradiction(err) {
			return &Solution{err: err, optimal: true}, nil
		}
		return nil, fmt.Errorf("error loading problem: %w", err)
	}
	if err := n.Propagate(); err != nil {
		if wcsp.IsContradiction(err) {
			return &Solution{err: err, optimal: true}, nil
		}
		return nil, err
	}
	o.logger.Debug("problem loaded", "variables", n.NumVariables(), "constraints", len(n.Constraints()), "lb", n.Lb(), "ub", n.Ub())
	if o.dump != nil {
		if err := n.Dump(o.dump, "wcsp"); err != nil {
			return nil, fmt.Errorf("error dumping problem: %w", err)
		}
	}
	if o.sortDomains {
		if err := n.SortDomains(); err != nil {
			o.logger.Warn("domains left unsorted", "err", err)
		}
	}

	options := []solver.Option{
		solver.WithNetwork(n),
		solver.WithLogger(o.logger),
		solver.WithMetrics(o.metrics),
		solver.WithNodeLimit(o.nodeLimit),
		solver.WithTimeLimit(o.timeLimit),
	}
	if o.tracer != nil {
		options = append(options, solver.WithTracer(o.tracer))
	}
	if o.hardCheck {
		options = append(options, solver.WithHardCheck(o.hardBudget))
	}
	bb, err := solver.NewSolver(options...)
	if err != nil {
		return nil, err
	}

	result, err := bb.Solve(ctx)
	if err != nil && !wcsp.IsContradiction(err) && !errors.Is(err, solver.ErrIncomplete) {
		return nil, err
	}
	solution := &Solution{err: err}
	if result != nil {
		solution.values = result.Values
		solution.cost = result.Cost
		solution.optimal = result.Optimal
		solution.nodes = result.Nodes
		solution.backtracks = result.Backtracks
	} else {
		solution.optimal = wcsp.IsContradiction(err)
	}
	return solution, nil
}
