package wcsp

import (
	"context"
	"errors"
	"fmt"
)

// Contradiction reports that the accumulated cost of a variable or of the
// whole network reached the upper bound. It is recovered only by
// restoring the trail to an earlier choice point.
type Contradiction struct {
	Reason string
}

func (e Contradiction) Error() string {
	const msg = "network infeasible"
	if e.Reason == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, e.Reason)
}

// IsContradiction reports whether err, or any error it wraps, is a
// Contradiction.
func IsContradiction(err error) bool {
	return errors.As(err, &Contradiction{})
}

// OverflowError reports a cost computation whose exact result is not
// representable. It is fatal: continuing would break cost conservation.
type OverflowError struct {
	Op   string
	A, B Cost
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("cost overflow: %d %s %d exceeds %d", int64(e.A), e.Op, int64(e.B), int64(MaxCost))
}

// InconsistencyError is returned by diagnostic checks. It always points at
// a propagation bug.
type InconsistencyError struct {
	Constraint string
	Detail     string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent cost function %s: %s", e.Constraint, e.Detail)
}

// Builder receives a cost function network. Scopes refer to variable
// indices returned by AddVariable and tuples to value indices in
// [0, size).
type Builder interface {
	AddVariable(name string, size int) int
	SetUb(ub Cost)
	IncreaseLb(cost Cost) error
	PostUnary(x int, costs []Cost) error
	PostBinary(x, y int, costs []Cost) (int, error)
	PostTernary(x, y, z int, costs []Cost) (int, error)
	PostNaryBegin(scope []int, defaultCost Cost, expected int) (int, error)
	PostNaryTuple(ctr int, tuple []int, cost Cost) error
	PostNaryEnd(ctr int) error
}

// ProblemSource loads a problem into a Builder.
type ProblemSource interface {
	Load(ctx context.Context, b Builder) error
}
