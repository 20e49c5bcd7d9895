package solver_test

import (
	"bytes"
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
	"github.com/operator-framework/wcsp/pkg/wcsp/format"
	"github.com/operator-framework/wcsp/pkg/wcsp/solver"
)

type failingSource struct{}

func (failingSource) Load(context.Context, wcsp.Builder) error {
	return errors.New("source unreachable")
}

// chain of three variables where neighbours prefer different values, with a
// unary preference on the first one.
const chain = `chain 3 3 4 100
3 3 3
2 0 1 0 3
0 0 5
1 1 5
2 2 5
2 1 2 0 3
0 0 5
1 1 5
2 2 5
1 0 0 3
0 2
1 1
2 0
1 2 0 1
2 1
`

// Three pairwise different variables over two values.
const triangle = `triangle 3 2 3 1
2 2 2
2 0 1 0 2
0 0 1
1 1 1
2 1 2 0 2
0 0 1
1 1 1
2 0 2 0 2
0 0 1
1 1 1
`

func problem(data string) *format.Problem {
	p, err := format.NewProblem(strings.NewReader(data))
	Expect(err).ToNot(HaveOccurred())
	return p
}

var _ = Describe("WCSPSolver", func() {
	It("finds an optimal assignment", func() {
		s, err := solver.NewSolver(problem(chain))
		Expect(err).ToNot(HaveOccurred())
		solution, err := s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(solution.Error()).ToNot(HaveOccurred())
		Expect(solution.Optimal()).To(BeTrue())
		Expect(solution.Cost()).To(Equal(wcsp.Cost(0)))
		Expect(solution.Values()).To(HaveLen(3))
		Expect(solution.Values()[0]).To(Equal(2))
		Expect(solution.Values()[2]).ToNot(Equal(2))
	})

	DescribeTable("agrees across settings",
		func(options ...solver.Option) {
			s, err := solver.NewSolver(problem(chain), options...)
			Expect(err).ToNot(HaveOccurred())
			solution, err := s.Solve(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(solution.Cost()).To(Equal(wcsp.Cost(0)))

			n, err := network.New()
			Expect(err).ToNot(HaveOccurred())
			Expect(problem(chain).Load(context.Background(), n)).To(Succeed())
			Expect(n.Evaluate(solution.Values())).To(Equal(solution.Cost()))
		},
		Entry("node consistency", solver.WithLevel(network.NC)),
		Entry("full directional arc consistency", solver.WithLevel(network.DAC)),
		Entry("sorted domains", solver.WithSortedDomains()),
		Entry("hard check", solver.WithHardCheck(0)),
		Entry("tighter upper bound", solver.WithUpperBound(10)),
	)

	It("reports infeasibility in the solution", func() {
		s, err := solver.NewSolver(problem(triangle))
		Expect(err).ToNot(HaveOccurred())
		solution, err := s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(wcsp.IsContradiction(solution.Error())).To(BeTrue())
		Expect(solution.Values()).To(BeNil())
		Expect(solution.Optimal()).To(BeTrue())
	})

	It("reports infeasibility found by the hard check", func() {
		s, err := solver.NewSolver(problem(triangle), solver.WithHardCheck(0))
		Expect(err).ToNot(HaveOccurred())
		solution, err := s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(wcsp.IsContradiction(solution.Error())).To(BeTrue())
	})

	It("reports infeasibility found while loading", func() {
		s, err := solver.NewSolver(problem("lb 1 2 1 10\n2\n0 12 0\n"))
		Expect(err).ToNot(HaveOccurred())
		solution, err := s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(wcsp.IsContradiction(solution.Error())).To(BeTrue())
	})

	It("reports an interrupted search", func() {
		s, err := solver.NewSolver(problem(chain), solver.WithNodeLimit(1))
		Expect(err).ToNot(HaveOccurred())
		solution, err := s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(solution.Error()).To(MatchError(solver.ErrIncomplete))
		Expect(solution.Optimal()).To(BeFalse())
	})

	It("returns cancellation while loading", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s, err := solver.NewSolver(problem(chain))
		Expect(err).ToNot(HaveOccurred())
		_, err = s.Solve(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("returns source errors", func() {
		s, err := solver.NewSolver(failingSource{})
		Expect(err).ToNot(HaveOccurred())
		_, err = s.Solve(context.Background())
		Expect(err).To(MatchError(ContainSubstring("source unreachable")))
	})

	It("rejects invalid options", func() {
		_, err := solver.NewSolver(problem(chain), solver.WithUpperBound(0))
		Expect(err).To(HaveOccurred())
		_, err = solver.NewSolver(nil)
		Expect(err).To(HaveOccurred())

		s, err := solver.NewSolver(problem(chain), solver.WithNodeLimit(-1))
		Expect(err).ToNot(HaveOccurred())
		_, err = s.Solve(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("dumps the propagated network", func() {
		var buf bytes.Buffer
		s, err := solver.NewSolver(problem(chain), solver.WithDump(&buf))
		Expect(err).ToNot(HaveOccurred())
		_, err = s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())

		dumped, err := format.NewProblem(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(dumped.Sizes()).To(Equal([]int{3, 3, 3}))
		Expect(dumped.Ub()).To(Equal(wcsp.Cost(100)))
	})

	It("dumps values in source order when domains are sorted", func() {
		var buf bytes.Buffer
		s, err := solver.NewSolver(problem(chain), solver.WithSortedDomains(), solver.WithDump(&buf))
		Expect(err).ToNot(HaveOccurred())
		_, err = s.Solve(context.Background())
		Expect(err).ToNot(HaveOccurred())

		dumped, err := format.NewProblem(&buf)
		Expect(err).ToNot(HaveOccurred())
		fromDump, err := network.New()
		Expect(err).ToNot(HaveOccurred())
		Expect(dumped.Load(context.Background(), fromDump)).To(Succeed())
		fromSource, err := network.New()
		Expect(err).ToNot(HaveOccurred())
		Expect(problem(chain).Load(context.Background(), fromSource)).To(Succeed())

		for a := range 3 {
			for b := range 3 {
				for c := range 3 {
					values := []int{a, b, c}
					Expect(fromDump.Evaluate(values)).To(Equal(fromSource.Evaluate(values)), "assignment %v", values)
				}
			}
		}
	})
})
