package format_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
	"github.com/operator-framework/wcsp/pkg/wcsp/format"
)

type posted struct {
	scope       []int
	costs       []wcsp.Cost
	defaultCost wcsp.Cost
	tuples      map[string]wcsp.Cost
}

// recorder is a wcsp.Builder keeping every call.
type recorder struct {
	sizes     []int
	ub        wcsp.Cost
	lb        wcsp.Cost
	unary     map[int][]wcsp.Cost
	functions []posted
}

func newRecorder() *recorder {
	return &recorder{unary: map[int][]wcsp.Cost{}}
}

func (r *recorder) AddVariable(_ string, size int) int {
	r.sizes = append(r.sizes, size)
	return len(r.sizes) - 1
}

func (r *recorder) SetUb(ub wcsp.Cost) {
	r.ub = ub
}

func (r *recorder) IncreaseLb(cost wcsp.Cost) error {
	r.lb += cost
	return nil
}

func (r *recorder) PostUnary(x int, costs []wcsp.Cost) error {
	r.unary[x] = costs
	return nil
}

func (r *recorder) PostBinary(x, y int, costs []wcsp.Cost) (int, error) {
	r.functions = append(r.functions, posted{scope: []int{x, y}, costs: costs})
	return len(r.functions) - 1, nil
}

func (r *recorder) PostTernary(x, y, z int, costs []wcsp.Cost) (int, error) {
	r.functions = append(r.functions, posted{scope: []int{x, y, z}, costs: costs})
	return len(r.functions) - 1, nil
}

func (r *recorder) PostNaryBegin(scope []int, defaultCost wcsp.Cost, _ int) (int, error) {
	r.functions = append(r.functions, posted{scope: scope, defaultCost: defaultCost, tuples: map[string]wcsp.Cost{}})
	return len(r.functions) - 1, nil
}

func (r *recorder) PostNaryTuple(ctr int, tuple []int, cost wcsp.Cost) error {
	r.functions[ctr].tuples[key(tuple)] = cost
	return nil
}

func (r *recorder) PostNaryEnd(int) error {
	return nil
}

func key(vs []int) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, " ")
}

const example = `example 4 3 6 100
2 3 2 2
0 5 0
1 1 0 2
1 10
2 10
2 0 1 0 2
0 0 4
1 2 100
3 0 1 2 1 1
1 2 1 0
4 0 1 2 3 3 3
0 0 0 0 0
1 1 1 1 7
1 1 1 0 0
1 0 50 0
`

func parse(data string, options ...format.Option) (*format.Problem, error) {
	return format.NewProblem(strings.NewReader(data), options...)
}

var _ = Describe("NewProblem", func() {
	It("reads the header", func() {
		p, err := parse(example)
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Name()).To(Equal("example"))
		Expect(p.Sizes()).To(Equal([]int{2, 3, 2, 2}))
		Expect(p.Ub()).To(Equal(wcsp.Cost(100)))
	})

	It("posts every cost function", func() {
		p, err := parse(example)
		Expect(err).ToNot(HaveOccurred())
		r := newRecorder()
		Expect(p.Load(context.Background(), r)).To(Succeed())

		Expect(r.sizes).To(Equal([]int{2, 3, 2, 2}))
		Expect(r.ub).To(Equal(wcsp.Cost(100)))
		Expect(r.lb).To(Equal(wcsp.Cost(5)))
		Expect(r.unary).To(HaveKeyWithValue(1, []wcsp.Cost{0, 10, 10}))
		Expect(r.unary).To(HaveKeyWithValue(0, []wcsp.Cost{50, 50}))
		Expect(r.functions).To(HaveLen(3))

		Expect(r.functions[0].scope).To(Equal([]int{0, 1}))
		Expect(r.functions[0].costs).To(Equal([]wcsp.Cost{4, 0, 0, 0, 0, 100}))

		ternary := make([]wcsp.Cost, 12)
		for i := range ternary {
			ternary[i] = 1
		}
		ternary[11] = 0
		Expect(r.functions[1].scope).To(Equal([]int{0, 1, 2}))
		Expect(r.functions[1].costs).To(Equal(ternary))

		Expect(r.functions[2].scope).To(Equal([]int{0, 1, 2, 3}))
		Expect(r.functions[2].defaultCost).To(Equal(wcsp.Cost(3)))
		Expect(r.functions[2].tuples).To(Equal(map[string]wcsp.Cost{
			"0 0 0 0": 0,
			"1 1 1 1": 7,
			"1 1 1 0": 0,
		}))
	})

	It("scales costs by the multiplier", func() {
		p, err := parse(example, format.WithCostMultiplier(10))
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Ub()).To(Equal(wcsp.Cost(1000)))
		r := newRecorder()
		Expect(p.Load(context.Background(), r)).To(Succeed())
		Expect(r.lb).To(Equal(wcsp.Cost(50)))
		Expect(r.unary[1]).To(Equal([]wcsp.Cost{0, 100, 100}))
		Expect(r.functions[2].defaultCost).To(Equal(wcsp.Cost(30)))
	})

	It("reuses shared cost functions", func() {
		p, err := parse(`shared 3 2 3 10
2 2 2
-2 0 1 0 1
0 0 10
2 1 2 0 -1
-1 0 1 1
0 0
`)
		Expect(err).ToNot(HaveOccurred())
		r := newRecorder()
		Expect(p.Load(context.Background(), r)).To(Succeed())
		Expect(r.functions).To(HaveLen(2))
		Expect(r.functions[0].costs).To(Equal([]wcsp.Cost{10, 0, 0, 0}))
		Expect(r.functions[1].scope).To(Equal([]int{1, 2}))
		Expect(r.functions[1].costs).To(Equal([]wcsp.Cost{10, 0, 0, 0}))
		Expect(r.unary[0]).To(Equal([]wcsp.Cost{0, 1}))
	})

	It("merges unary cost functions on the same variable", func() {
		p, err := parse(`merge 1 3 3 5
3
1 0 0 1
0 3
1 0 0 1
0 4
1 0 0 2
1 2
2 7
`)
		Expect(err).ToNot(HaveOccurred())
		r := newRecorder()
		Expect(p.Load(context.Background(), r)).To(Succeed())
		Expect(r.unary).To(HaveLen(1))
		Expect(r.unary[0]).To(Equal([]wcsp.Cost{7, 2, 5}))
	})

	It("skips empty cost functions", func() {
		p, err := parse("empty 2 2 1 10\n2 2\n2 0 1 0 0\n")
		Expect(err).ToNot(HaveOccurred())
		Expect(p.NumFunctions()).To(Equal(0))
	})

	It("reports cost overflow", func() {
		_, err := parse("big 1 2 1 10\n2\n1 0 900000000000000000 0\n", format.WithCostMultiplier(10))
		var overflow *wcsp.OverflowError
		Expect(errors.As(err, &overflow)).To(BeTrue())
	})

	It("rejects an invalid multiplier", func() {
		_, err := parse(example, format.WithCostMultiplier(0))
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("rejects malformed input",
		func(data, message string) {
			_, err := parse(data)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(message))
		},
		Entry("empty", "", "missing problem name"),
		Entry("zero upper bound", "p 1 2 0 0\n2\n", "upper bound must be positive"),
		Entry("interval variable", "p 1 2 0 10\n-4\n", "unsupported domain size"),
		Entry("global cost function", "p 2 2 1 10\n2 2\n2 0 1 -1 salldiff var 1\n", `"salldiff" is not supported`),
		Entry("arithmetic cost function", "p 2 2 1 10\n2 2\n2 0 1 -1 >= 0 5\n", `">=" is not supported`),
		Entry("variable out of range", "p 1 2 1 10\n2\n1 3 0 0\n", "variable 3 out of range"),
		Entry("value out of range", "p 1 2 1 10\n2\n1 0 0 1\n5 1\n", "value 5 out of the domain"),
		Entry("duplicate tuple", "p 1 2 1 10\n2\n1 0 0 2\n0 1\n0 2\n", "duplicate tuple"),
		Entry("repeated variable", "p 2 2 1 10\n2 2\n2 0 0 0 0\n", "appears twice"),
		Entry("undefined shared function", "p 2 2 1 10\n2 2\n2 0 1 0 -1\n", "shared cost function 1 is not defined"),
		Entry("negative cost", "p 1 2 1 10\n2\n1 0 0 1\n0 -3\n", "negative cost"),
		Entry("missing cost function", "p 1 2 2 10\n2\n1 0 0 0\n", "cost function 1"),
		Entry("trailing data", "p 1 2 0 10\n2\n1 0 0 0\n", "trailing data"),
		Entry("not a number", "p x 2 0 10\n", "invalid number (x)"),
		Entry("several lower bound tuples", "p 1 2 1 10\n2\n0 0 2\n", "lower bound contribution with 2 tuples"),
	)
})

var _ = Describe("Load", func() {
	It("builds a network with the same costs", func() {
		p, err := parse(example)
		Expect(err).ToNot(HaveOccurred())
		n, err := network.New()
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Load(context.Background(), n)).To(Succeed())

		Expect(n.Ub()).To(Equal(wcsp.Cost(100)))
		// lb 5, unary 50, pairwise 4, ternary 1
		Expect(n.Evaluate([]int{0, 0, 0, 0})).To(Equal(wcsp.Cost(60)))
		Expect(n.Evaluate([]int{1, 0, 0, 1})).To(Equal(wcsp.Cost(59)))
	})

	It("reads back a dumped network", func() {
		p, err := parse(example)
		Expect(err).ToNot(HaveOccurred())
		n, err := network.New()
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Load(context.Background(), n)).To(Succeed())

		var buf bytes.Buffer
		Expect(n.Dump(&buf, "dumped")).To(Succeed())
		q, err := format.NewProblem(&buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(q.Name()).To(Equal("dumped"))
		m, err := network.New()
		Expect(err).ToNot(HaveOccurred())
		Expect(q.Load(context.Background(), m)).To(Succeed())

		each([]int{2, 3, 2, 2}, func(values []int) {
			if c := n.Evaluate(values); c < n.Ub() {
				Expect(m.Evaluate(values)).To(Equal(c), "assignment %v", values)
			}
		})
	})

	It("stops when the context is cancelled", func() {
		p, err := parse(example)
		Expect(err).ToNot(HaveOccurred())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(p.Load(ctx, newRecorder())).To(MatchError(context.Canceled))
	})
})

func each(sizes []int, f func([]int)) {
	values := make([]int, len(sizes))
	var walk func(i int)
	walk = func(i int) {
		if i == len(sizes) {
			f(values)
			return
		}
		for a := 0; a < sizes[i]; a++ {
			values[i] = a
			walk(i + 1)
		}
	}
	walk(0)
}
