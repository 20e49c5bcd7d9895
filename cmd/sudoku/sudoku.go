package sudoku

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

var _ wcsp.ProblemSource = &Sudoku{}

// hard is the upper bound of the network: every violated rule costs it.
const hard wcsp.Cost = 1

// Sudoku is a 9x9 board as a cost function network: one variable per cell
// with the values 0..8 and a forbidden pairwise cost on equal values within
// a row, a column or a box. The first row is a random permutation so that
// every run yields a new board.
type Sudoku struct {
	first []int
}

func NewSudoku(r *rand.Rand) *Sudoku {
	return &Sudoku{first: r.Perm(9)}
}

func GetID(row, col int) int {
	return row*9 + col
}

func (s *Sudoku) Load(ctx context.Context, b wcsp.Builder) error {
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			b.AddVariable(fmt.Sprintf("r%dc%d", row+1, col+1), 9)
		}
	}
	b.SetUb(hard)

	different := make([]wcsp.Cost, 81)
	for n := 0; n < 9; n++ {
		different[n*9+n] = hard
	}
	seen := map[[2]int]bool{}
	post := func(a, b2 int) error {
		if a > b2 {
			a, b2 = b2, a
		}
		if seen[[2]int{a, b2}] {
			return nil
		}
		seen[[2]int{a, b2}] = true
		_, err := b.PostBinary(a, b2, different)
		return err
	}

	for row := 0; row < 9; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for colA := 0; colA < 9; colA++ {
			for colB := colA + 1; colB < 9; colB++ {
				// every row has unique numbers
				if err := post(GetID(row, colA), GetID(row, colB)); err != nil {
					return err
				}
				// every column has unique numbers
				if err := post(GetID(colA, row), GetID(colB, row)); err != nil {
					return err
				}
			}
		}
	}
	// every box has unique numbers
	for x := 0; x < 9; x += 3 {
		for y := 0; y < 9; y += 3 {
			for i := 0; i < 9; i++ {
				for j := i + 1; j < 9; j++ {
					if err := post(GetID(x+i/3, y+i%3), GetID(x+j/3, y+j%3)); err != nil {
						return err
					}
				}
			}
		}
	}

	for col, n := range s.first {
		costs := make([]wcsp.Cost, 9)
		for m := range costs {
			if m != n {
				costs[m] = hard
			}
		}
		if err := b.PostUnary(GetID(0, col), costs); err != nil {
			return err
		}
	}
	return nil
}

// Format prints the board of a solution, numbers from 1 to 9.
func Format(values []int) string {
	var b strings.Builder
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if col != 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", values[GetID(row, col)]+1)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
