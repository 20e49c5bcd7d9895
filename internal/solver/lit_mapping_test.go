package solver

import (
	"testing"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

func solveAll(g inter.S) int {
	return g.Solve()
}

func TestLitMappingVariables(t *testing.T) {
	n, err := network.New(network.WithUpperBound(5))
	require.NoError(t, err)
	x := n.AddVariable("x", 3)
	n.AddVariable("y", 2)
	require.NoError(t, n.PostUnary(x, []wcsp.Cost{5, 0, 1}))

	d := newLitMapping(n)
	assert.Equal(t, 4, d.Vars())
	assert.Equal(t, 0, int(d.LitOf(x, 0)))
	require.NoError(t, d.AddConstraints(gini.New()))
	// x: one at-least-one clause and one at-most-one pair, y: one of each
	assert.Equal(t, 4, d.Clauses())
}

func TestHardCheck(t *testing.T) {
	type tc struct {
		Name    string
		Network func(t *testing.T) *network.Network
		Outcome int
		Check   func(t *testing.T, n *network.Network, values []int)
	}

	for _, tt := range []tc{
		{
			Name:    "two colors",
			Network: func(t *testing.T) *network.Network { return triangle(t, 2, network.WithUpperBound(1)) },
			Outcome: unsatisfiable,
		},
		{
			Name:    "three colors",
			Network: func(t *testing.T) *network.Network { return triangle(t, 3, network.WithUpperBound(1)) },
			Outcome: satisfiable,
			Check: func(t *testing.T, n *network.Network, values []int) {
				assert.Less(t, n.Evaluate(values), n.Ub())
			},
		},
		{
			Name: "forbidden default",
			Network: func(t *testing.T) *network.Network {
				n, err := network.New(network.WithUpperBound(4))
				require.NoError(t, err)
				for _, name := range []string{"a", "b", "c"} {
					n.AddVariable(name, 2)
				}
				ctr, err := n.PostNaryBegin([]int{0, 1, 2}, 4, 2)
				require.NoError(t, err)
				require.NoError(t, n.PostNaryTuple(ctr, []int{0, 1, 0}, 1))
				require.NoError(t, n.PostNaryTuple(ctr, []int{1, 1, 1}, 4))
				require.NoError(t, n.PostNaryEnd(ctr))
				return n
			},
			Outcome: satisfiable,
			Check: func(t *testing.T, n *network.Network, values []int) {
				assert.Equal(t, []int{0, 1, 0}, values)
			},
		},
		{
			Name: "forbidden exceptions",
			Network: func(t *testing.T) *network.Network {
				n, err := network.New(network.WithUpperBound(4))
				require.NoError(t, err)
				for _, name := range []string{"a", "b", "c"} {
					n.AddVariable(name, 2)
				}
				ctr, err := n.PostNaryBegin([]int{0, 1, 2}, 0, 2)
				require.NoError(t, err)
				require.NoError(t, n.PostNaryTuple(ctr, []int{0, 0, 0}, 4))
				require.NoError(t, n.PostNaryEnd(ctr))
				require.NoError(t, n.PostUnary(1, []wcsp.Cost{0, 4}))
				require.NoError(t, n.PostUnary(2, []wcsp.Cost{0, 4}))
				return n
			},
			Outcome: satisfiable,
			Check: func(t *testing.T, n *network.Network, values []int) {
				assert.Equal(t, []int{1, 0, 0}, values)
			},
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			n := tt.Network(t)
			outcome, values, err := hardCheck(n, gini.New(), solveAll)
			assert.Equal(t, tt.Outcome, outcome)
			if tt.Outcome == unsatisfiable {
				assert.True(t, wcsp.IsContradiction(err))
				assert.Nil(t, values)
				return
			}
			require.NoError(t, err)
			tt.Check(t, n, values)
		})
	}
}
