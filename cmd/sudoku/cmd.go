package sudoku

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/operator-framework/wcsp/internal/cli"
	"github.com/operator-framework/wcsp/pkg/wcsp/solver"
)

func NewSudokuCommand() *cobra.Command {
	var (
		seed      int64
		hardCheck bool
	)
	cmd := &cobra.Command{
		Use:   "sudoku",
		Short: "Returns a solved sudoku board",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				seed = time.Now().UnixNano()
			}
			return solve(cmd.Context(), seed, hardCheck, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed of the random first row")
	cmd.Flags().BoolVar(&hardCheck, "hard-check", true, "solve the board with the SAT check before search")
	return cmd
}

func solve(ctx context.Context, seed int64, hardCheck bool, out io.Writer) error {
	logger := cli.Logger(ctx)

	// build solver
	sudoku := NewSudoku(rand.New(rand.NewSource(seed)))
	options := []solver.Option{solver.WithLogger(logger)}
	if hardCheck {
		options = append(options, solver.WithHardCheck(0))
	}
	so, err := solver.NewSolver(sudoku, options...)
	if err != nil {
		return err
	}

	// get solution
	solution, err := so.Solve(ctx)
	if err != nil {
		return err
	}
	if err := solution.Error(); err != nil {
		_, err := fmt.Fprintf(out, "no solution found: %s\n", err)
		return err
	}
	_, err = fmt.Fprint(out, Format(solution.Values()))
	return err
}
