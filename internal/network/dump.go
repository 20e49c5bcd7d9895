package network

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// Dump writes the current state of the network in the .wcsp text format.
// Removed values are written with a forbidden unary cost, the lower bound
// as a cost function of arity zero, and only connected cost functions are
// kept.
func (n *Network) Dump(w io.Writer, name string) error {
	ub := n.ub
	top := func(c wcsp.Cost) int64 {
		if c >= ub {
			return int64(ub)
		}
		return int64(c)
	}

	var body strings.Builder
	count := 0
	if lb := n.Lb(); lb > wcsp.MinCost {
		fmt.Fprintf(&body, "0 %d 0\n", top(lb))
		count++
	}
	maxSize := 0
	for _, x := range n.vars {
		maxSize = max(maxSize, x.InitSize())
		var tuples []string
		for a := 0; a < x.InitSize(); a++ {
			cost := ub
			if x.CanBe(a) {
				cost = x.Cost(a)
			}
			if cost > wcsp.MinCost {
				tuples = append(tuples, fmt.Sprintf("%d %d", a, top(cost)))
			}
		}
		if len(tuples) > 0 {
			fmt.Fprintf(&body, "1 %d 0 %d\n%s\n", x.Index(), len(tuples), strings.Join(tuples, "\n"))
			count++
		}
	}
	for _, c := range n.Constraints() {
		scope := c.Scope()
		header := make([]string, len(scope))
		for i, x := range scope {
			header[i] = fmt.Sprint(x.Index())
		}
		var (
			defaultCost wcsp.Cost
			tuples      []string
		)
		if nary, ok := c.(*Nary); ok {
			defaultCost = nary.DefaultCost()
			for _, e := range nary.Tuples() {
				tuples = append(tuples, fmt.Sprintf("%s %d", joinInts(e.Tuple.Values(len(scope))), top(e.Cost)))
			}
		} else {
			tuple := make([]int, len(scope))
			var walk func(i int)
			walk = func(i int) {
				if i == len(scope) {
					if cost := c.Cost(tuple); cost > wcsp.MinCost {
						tuples = append(tuples, fmt.Sprintf("%s %d", joinInts(tuple), top(cost)))
					}
					return
				}
				for a := 0; a < scope[i].InitSize(); a++ {
					tuple[i] = a
					walk(i + 1)
				}
			}
			walk(0)
		}
		fmt.Fprintf(&body, "%d %s %d %d\n", len(scope), strings.Join(header, " "), top(defaultCost), len(tuples))
		for _, t := range tuples {
			fmt.Fprintln(&body, t)
		}
		count++
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %d %d %d %d\n", name, len(n.vars), maxSize, count, int64(ub))
	sizes := make([]int, len(n.vars))
	for i, x := range n.vars {
		sizes[i] = x.InitSize()
	}
	fmt.Fprintln(bw, joinInts(sizes))
	if _, err := bw.WriteString(body.String()); err != nil {
		return err
	}
	return bw.Flush()
}

func joinInts(vs []int) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = fmt.Sprint(v)
	}
	return strings.Join(s, " ")
}
