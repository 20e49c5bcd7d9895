package solver

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"

	"github.com/operator-framework/wcsp/internal/metrics"
	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

var ErrIncomplete = errors.New("cancelled before a solution could be found")

type Solver interface {
	Solve(context.Context) (*Result, error)
}

// Result is the outcome of a complete or interrupted search.
type Result struct {
	// Values holds one value index per variable, mapped back to the
	// values of the loaded problem. It is nil when no solution was found.
	Values []int
	Cost   wcsp.Cost
	// Optimal is set when the search space was exhausted.
	Optimal    bool
	Nodes      int64
	Backtracks int64
}

type solver struct {
	net        *network.Network
	tracer     wcsp.Tracer
	logger     *log.Logger
	metrics    *metrics.Metrics
	nodeLimit  int64
	timeLimit  time.Duration
	hardCheck  bool
	hardBudget time.Duration
}

const (
	satisfiable   = 1
	unsatisfiable = -1
	unknown       = 0
)

// Solve runs depth-first branch and bound on the network. The network must
// be at the root depth; it is returned there. A Contradiction is returned
// when no assignment is below the upper bound, ErrIncomplete when the
// search was interrupted before finding any solution.
func (s *solver) Solve(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() {
		s.metrics.Observe(time.Since(start).Seconds())
	}()
	if s.timeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeLimit)
		defer cancel()
	}
	n := s.net
	if n.Depth() > 0 {
		return nil, errors.New("solve must start at the root")
	}
	stats := n.Stats()
	defer func() {
		s.metrics.Stats(n.Stats(), stats)
	}()

	var incumbent []int
	cost := n.Ub()
	if err := n.Propagate(); err != nil {
		return nil, err
	}
	s.metrics.Bounds(n.Lb(), n.Ub())
	if s.hardCheck {
		values, err := s.checkHard()
		if err != nil {
			return nil, err
		}
		if values != nil {
			if c := n.Evaluate(values); c < n.Ub() {
				incumbent, cost = values, c
				s.improve(c)
				if err := n.Propagate(); err != nil && !wcsp.IsContradiction(err) {
					return nil, err
				}
			}
		}
	}

	h := &search{net: n, tracer: s.tracer, nodeLimit: s.nodeLimit}
	h.onSolution = func(values []int, c wcsp.Cost) {
		incumbent, cost = values, c
		s.improve(c)
		s.metrics.Solution(c)
	}
	h.onNode = s.metrics.Node
	h.onBacktrack = s.metrics.Backtrack
	complete, err := h.Do(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Cost: cost, Optimal: complete, Nodes: h.nodes, Backtracks: h.backtracks}
	if incumbent == nil {
		if !complete {
			return result, ErrIncomplete
		}
		return result, wcsp.Contradiction{Reason: "no assignment below the upper bound"}
	}
	result.Values = make([]int, len(incumbent))
	for i, a := range incumbent {
		result.Values[i] = n.Variable(i).OriginalValue(a)
	}
	s.logger.Info("search finished", "cost", cost, "optimal", complete, "nodes", h.nodes, "backtracks", h.backtracks)
	return result, nil
}

// improve records a new incumbent: only strictly better solutions are
// searched from now on.
func (s *solver) improve(cost wcsp.Cost) {
	s.logger.Info("new solution", "cost", cost)
	s.net.SetUb(cost)
}

func (s *solver) checkHard() ([]int, error) {
	budget := func(g inter.S) int {
		if s.hardBudget <= 0 {
			return g.Solve()
		}
		return g.GoSolve().Try(s.hardBudget)
	}
	outcome, values, err := hardCheck(s.net, gini.New(), budget)
	s.logger.Debug("hard constraint check", "outcome", outcome)
	return values, err
}

func NewSolver(options ...Option) (Solver, error) {
	s := solver{}
	for _, option := range append(options, defaults...) {
		if err := option(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

type Option func(s *solver) error

func WithNetwork(n *network.Network) Option {
	return func(s *solver) error {
		s.net = n
		return nil
	}
}

func WithTracer(t wcsp.Tracer) Option {
	return func(s *solver) error {
		s.tracer = t
		return nil
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *solver) error {
		s.logger = l
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *solver) error {
		s.metrics = m
		return nil
	}
}

// WithNodeLimit stops the search after limit nodes. Zero means no limit.
func WithNodeLimit(limit int64) Option {
	return func(s *solver) error {
		if limit < 0 {
			return errors.New("node limit must not be negative")
		}
		s.nodeLimit = limit
		return nil
	}
}

// WithTimeLimit interrupts the search after d. Zero means no limit.
func WithTimeLimit(d time.Duration) Option {
	return func(s *solver) error {
		if d < 0 {
			return errors.New("time limit must not be negative")
		}
		s.timeLimit = d
		return nil
	}
}

// WithHardCheck solves the forbidden part of the network with a SAT solver
// before searching. An unsatisfiable formula ends the solve; a model seeds
// the upper bound. A zero budget lets the SAT solver run to completion.
func WithHardCheck(budget time.Duration) Option {
	return func(s *solver) error {
		s.hardCheck = true
		s.hardBudget = budget
		return nil
	}
}

var defaults = []Option{
	func(s *solver) error {
		if s.net == nil {
			var err error
			s.net, err = network.New()
			return err
		}
		return nil
	},
	func(s *solver) error {
		if s.tracer == nil {
			s.tracer = DefaultTracer{}
		}
		return nil
	},
	func(s *solver) error {
		if s.logger == nil {
			s.logger = log.NewWithOptions(io.Discard, log.Options{})
		}
		return nil
	},
}
