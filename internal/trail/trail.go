// Package trail implements a reversible store: an undo log partitioned by
// choice-point depth. Every mutable field of the propagation core lives in
// a Value and is written through Set, so that restoring the trail to an
// earlier depth reproduces the exact earlier state.
package trail

type undoer interface {
	undo()
}

type write[T any] struct {
	p   *T
	old T
}

func (w write[T]) undo() {
	*w.p = w.old
}

// Trail is a single logical timeline of writes. It is not safe for
// concurrent use.
//
// Depth 0 is the root context: writes made there are permanent and are not
// recorded. Every Enter opens a new depth.
type Trail struct {
	entries []undoer
	marks   []int
}

func New() *Trail {
	return &Trail{
		entries: make([]undoer, 0, 1024),
	}
}

// Depth returns the number of open choice points.
func (t *Trail) Depth() int {
	return len(t.marks)
}

// Mark returns the current depth, suitable for a later Restore.
func (t *Trail) Mark() int {
	return t.Depth()
}

// Len returns the number of recorded writes.
func (t *Trail) Len() int {
	return len(t.entries)
}

// Enter opens a choice point. Releasing the returned handle restores the
// trail to the depth it had before Enter.
func (t *Trail) Enter() *ChoicePoint {
	return t.EnterFunc(nil)
}

// EnterFunc is Enter with a function called after every restore made by
// the returned handle.
func (t *Trail) EnterFunc(restored func()) *ChoicePoint {
	depth := t.Depth()
	t.marks = append(t.marks, len(t.entries))
	return &ChoicePoint{trail: t, depth: depth, restored: restored}
}

// Restore undoes, in reverse order, every write recorded after depth was
// current, and closes all choice points opened since.
func (t *Trail) Restore(depth int) {
	if depth < 0 {
		depth = 0
	}
	for len(t.marks) > depth {
		top := t.marks[len(t.marks)-1]
		for i := len(t.entries) - 1; i >= top; i-- {
			t.entries[i].undo()
			t.entries[i] = nil
		}
		t.entries = t.entries[:top]
		t.marks = t.marks[:len(t.marks)-1]
	}
}

func (t *Trail) record(u undoer) {
	if len(t.marks) > 0 {
		t.entries = append(t.entries, u)
	}
}

// ChoicePoint is a scoped handle on an open depth.
type ChoicePoint struct {
	trail    *Trail
	depth    int
	released bool
	restored func()
}

// Depth is the depth the trail returns to on Release.
func (c *ChoicePoint) Depth() int {
	return c.depth
}

// Release restores the trail to the depth it had when the choice point was
// entered. Calling it more than once is a no-op, so it can be deferred and
// also called explicitly.
func (c *ChoicePoint) Release() {
	if c.released {
		return
	}
	c.released = true
	c.trail.Restore(c.depth)
	if c.restored != nil {
		c.restored()
	}
}

// Value is a reversible cell.
type Value[T any] struct {
	v T
}

func NewValue[T any](v T) Value[T] {
	return Value[T]{v: v}
}

func (r *Value[T]) Get() T {
	return r.v
}

// Set writes v, recording the previous value on t when a choice point is
// open.
func (r *Value[T]) Set(t *Trail, v T) {
	t.record(write[T]{p: &r.v, old: r.v})
	r.v = v
}

// Values allocates n reversible cells holding v.
func Values[T any](n int, v T) []Value[T] {
	vs := make([]Value[T], n)
	for i := range vs {
		vs[i].v = v
	}
	return vs
}
