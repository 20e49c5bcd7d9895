package solve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/operator-framework/wcsp/internal/cli"
	"github.com/operator-framework/wcsp/internal/config"
	"github.com/operator-framework/wcsp/internal/metrics"
	internalsolver "github.com/operator-framework/wcsp/internal/solver"
	"github.com/operator-framework/wcsp/pkg/wcsp"
	"github.com/operator-framework/wcsp/pkg/wcsp/format"
	"github.com/operator-framework/wcsp/pkg/wcsp/solver"
)

type flags struct {
	ub              int64
	multiplier      int64
	propagation     string
	sortDomains     bool
	hardCheck       bool
	hardCheckBudget time.Duration
	timeLimit       time.Duration
	nodeLimit       int64
	output          string
	metricsFile     string
	dump            string
	trace           bool
}

func NewSolveCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "solve <path>",
		Short: "Solves a weighted constraint network given in wcsp format",
		Long: `Solves a weighted constraint network given in wcsp format. For instance:
example 2 2 2 10
2 2
1 0 0 1
1 3
2 0 1 0 1
1 1 10

header: <name> <variables> <max domain size> <cost functions> <upper bound>
then one domain size per variable, then per cost function:
<arity> <scope...> <default cost> <tuples> followed by <values...> <cost> per tuple
`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("file (%s) not found", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.apply(cmd, cli.Config(cmd.Context()))
			if err != nil {
				return err
			}
			return solve(cmd.Context(), args[0], c, f, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.Int64Var(&f.ub, "ub", 0, "upper bound overriding the one of the file when lower")
	fs.Int64VarP(&f.multiplier, "multiplier", "C", 1, "cost multiplier")
	fs.StringVar(&f.propagation, "propagation", "ac", "local consistency: nc, ac or dac")
	fs.BoolVar(&f.sortDomains, "sort-domains", false, "order values by unary cost before search")
	fs.BoolVar(&f.hardCheck, "hard-check", false, "check the forbidden tuples with a SAT solver before search")
	fs.DurationVar(&f.hardCheckBudget, "hard-check-budget", 0, "time budget of the SAT check, 0 for none")
	fs.DurationVar(&f.timeLimit, "time-limit", 0, "stop the search after this duration, 0 for none")
	fs.Int64Var(&f.nodeLimit, "node-limit", 0, "stop the search after this many nodes, 0 for none")
	fs.StringVarP(&f.output, "output", "o", "text", "output format: text or yaml")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write search metrics to this file in Prometheus text format")
	fs.StringVar(&f.dump, "dump", "", "write the network propagated at the root to this file")
	fs.BoolVar(&f.trace, "trace", false, "log every search node at debug level")
	return cmd
}

// apply overrides c with the flags set on the command line.
func (f flags) apply(cmd *cobra.Command, c config.Config) (config.Config, error) {
	fs := cmd.Flags()
	if fs.Changed("ub") {
		c.UpperBound = f.ub
	}
	if fs.Changed("multiplier") {
		c.CostMultiplier = f.multiplier
	}
	if fs.Changed("propagation") {
		c.Propagation = f.propagation
	}
	if fs.Changed("sort-domains") {
		c.SortDomains = f.sortDomains
	}
	if fs.Changed("hard-check") {
		c.HardCheck = f.hardCheck
	}
	if fs.Changed("hard-check-budget") {
		c.HardCheckBudget = config.Duration(f.hardCheckBudget)
	}
	if fs.Changed("time-limit") {
		c.TimeLimit = config.Duration(f.timeLimit)
	}
	if fs.Changed("node-limit") {
		c.NodeLimit = f.nodeLimit
	}
	if fs.Changed("output") {
		c.Output = f.output
	}
	if fs.Changed("metrics-file") {
		c.MetricsFile = f.metricsFile
	}
	return c, c.Validate()
}

type report struct {
	Problem    string  `yaml:"problem"`
	Run        string  `yaml:"run"`
	Cost       *int64  `yaml:"cost,omitempty"`
	Optimal    bool    `yaml:"optimal"`
	Values     []int   `yaml:"values,omitempty"`
	Nodes      int64   `yaml:"nodes"`
	Backtracks int64   `yaml:"backtracks"`
	Error      string  `yaml:"error,omitempty"`
	Seconds    float64 `yaml:"seconds"`
}

func solve(ctx context.Context, path string, c config.Config, f flags, out io.Writer) error {
	logger := cli.Logger(ctx)
	start := time.Now()

	// open wcsp file
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening wcsp file (%s): %w", path, err)
	}
	defer file.Close()

	problem, err := format.NewProblem(file, format.WithCostMultiplier(c.CostMultiplier))
	if err != nil {
		return fmt.Errorf("error parsing wcsp file (%s): %w", path, err)
	}
	logger.Info("problem read", "name", problem.Name(), "variables", len(problem.Sizes()), "functions", problem.NumFunctions(), "ub", problem.Ub())

	level, err := c.Level()
	if err != nil {
		return err
	}
	m := metrics.New()
	options := []solver.Option{
		solver.WithLevel(level),
		solver.WithLogger(logger),
		solver.WithMetrics(m),
		solver.WithNodeLimit(c.NodeLimit),
		solver.WithTimeLimit(time.Duration(c.TimeLimit)),
	}
	if ub := c.Ub(); ub > wcsp.MinCost {
		options = append(options, solver.WithUpperBound(ub))
	}
	if c.SortDomains {
		options = append(options, solver.WithSortedDomains())
	}
	if c.HardCheck {
		options = append(options, solver.WithHardCheck(time.Duration(c.HardCheckBudget)))
	}
	if f.trace {
		options = append(options, solver.WithTracer(internalsolver.LoggingTracer{Logger: logger}))
	}
	if f.dump != "" {
		dump, err := os.Create(f.dump)
		if err != nil {
			return fmt.Errorf("error creating dump file (%s): %w", f.dump, err)
		}
		defer dump.Close()
		options = append(options, solver.WithDump(dump))
	}

	// build solver
	so, err := solver.NewSolver(problem, options...)
	if err != nil {
		return err
	}

	// get solution
	solution, err := so.Solve(ctx)
	if err != nil {
		return err
	}
	if c.MetricsFile != "" {
		if err := m.WriteFile(c.MetricsFile); err != nil {
			return fmt.Errorf("error writing metrics (%s): %w", c.MetricsFile, err)
		}
	}

	r := report{
		Problem:    problem.Name(),
		Run:        cli.Run(ctx).String(),
		Optimal:    solution.Optimal(),
		Values:     solution.Values(),
		Nodes:      solution.Nodes(),
		Backtracks: solution.Backtracks(),
		Seconds:    time.Since(start).Seconds(),
	}
	if err := solution.Error(); err != nil {
		r.Error = err.Error()
	} else {
		cost := int64(solution.Cost())
		r.Cost = &cost
	}
	return write(out, c.Output, r)
}

func write(out io.Writer, output string, r report) error {
	if output == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}
	if r.Error != "" {
		_, err := fmt.Fprintf(out, "no solution found: %s\n", r.Error)
		return err
	}
	fmt.Fprintln(out, "solution found:")
	fmt.Fprintf(out, "cost = %d\n", *r.Cost)
	fmt.Fprintf(out, "optimal = %t\n", r.Optimal)
	for i, a := range r.Values {
		fmt.Fprintf(out, "%d = %d\n", i, a)
	}
	return nil
}
