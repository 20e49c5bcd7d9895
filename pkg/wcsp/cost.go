package wcsp

import (
	"fmt"
	"math"
)

// Cost is a scaled, non-negative integer cost. Any cost at or above the
// current upper bound of a network is forbidden.
type Cost int64

const (
	// MinCost is the neutral cost.
	MinCost Cost = 0
	// MaxCost is the forbidden sentinel. Sums of two finite costs never wrap
	// below it, so saturation can be detected without overflowing int64.
	MaxCost Cost = math.MaxInt64 / 3
)

func (c Cost) String() string {
	if c >= MaxCost {
		return "inf"
	}
	return fmt.Sprintf("%d", int64(c))
}

// Add combines two costs, saturating at MaxCost.
func Add(a, b Cost) Cost {
	if a >= MaxCost || b >= MaxCost {
		return MaxCost
	}
	if s := a + b; s < MaxCost {
		return s
	}
	return MaxCost
}

// AddExact adds two finite costs and reports an OverflowError when the
// result is not representable below MaxCost. It is used wherever the
// conservation of cost depends on the exact value.
func AddExact(a, b Cost) (Cost, error) {
	if a >= MaxCost || b >= MaxCost || a+b >= MaxCost {
		return MaxCost, &OverflowError{Op: "+", A: a, B: b}
	}
	return a + b, nil
}

// Scale multiplies a cost by a positive integer factor, reporting an
// OverflowError instead of wrapping.
func Scale(c Cost, k int64) (Cost, error) {
	if k <= 0 {
		return MinCost, fmt.Errorf("invalid cost multiplier %d", k)
	}
	if c != 0 && int64(c) > int64(MaxCost)/k {
		return MaxCost, &OverflowError{Op: "*", A: c, B: Cost(k)}
	}
	return Cost(int64(c) * k), nil
}

// Cut reports whether cost is forbidden given the current global lower
// bound lb and the upper threshold ub.
func Cut(cost, lb, ub Cost) bool {
	return Add(cost, lb) >= ub
}

// GLB keeps the lower of *min and cost in *min and reports whether it
// changed. Ties keep the first value seen.
func GLB(min *Cost, cost Cost) bool {
	if cost < *min {
		*min = cost
		return true
	}
	return false
}
