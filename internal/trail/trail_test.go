package trail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootWritesArePermanent(t *testing.T) {
	tr := New()
	v := NewValue(1)
	v.Set(tr, 2)
	assert.Equal(t, 0, tr.Len())
	tr.Restore(0)
	assert.Equal(t, 2, v.Get())
}

func TestRestore(t *testing.T) {
	type tc struct {
		Name    string
		Writes  [][]int
		Restore int
		Want    int
	}

	for _, tt := range []tc{
		{
			Name:    "restore to root",
			Writes:  [][]int{{1, 2}, {3}},
			Restore: 0,
			Want:    0,
		},
		{
			Name:    "restore to first depth",
			Writes:  [][]int{{1, 2}, {3, 4}},
			Restore: 1,
			Want:    2,
		},
		{
			Name:    "restore to current depth is a no-op",
			Writes:  [][]int{{1}, {5}},
			Restore: 2,
			Want:    5,
		},
		{
			Name:    "negative depth restores everything",
			Writes:  [][]int{{7}},
			Restore: -3,
			Want:    0,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			tr := New()
			v := NewValue(0)
			for _, level := range tt.Writes {
				tr.Enter()
				for _, w := range level {
					v.Set(tr, w)
				}
			}
			tr.Restore(tt.Restore)
			assert.Equal(t, tt.Want, v.Get())
			if tt.Restore >= 0 && tt.Restore <= len(tt.Writes) {
				assert.Equal(t, tt.Restore, tr.Depth())
			}
		})
	}
}

func TestChoicePointRelease(t *testing.T) {
	tr := New()
	costs := Values(3, int64(0))
	flag := NewValue(true)

	outer := tr.Enter()
	costs[0].Set(tr, 4)
	inner := tr.Enter()
	costs[1].Set(tr, 5)
	costs[1].Set(tr, 6)
	flag.Set(tr, false)
	require.Equal(t, 2, tr.Depth())
	require.Equal(t, 4, tr.Len())

	inner.Release()
	inner.Release()
	assert.Equal(t, 1, tr.Depth())
	assert.Equal(t, int64(4), costs[0].Get())
	assert.Equal(t, int64(0), costs[1].Get())
	assert.True(t, flag.Get())

	outer.Release()
	assert.Equal(t, 0, tr.Depth())
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, int64(0), costs[0].Get())
}

func TestReleaseAfterOuterRestoreIsNoop(t *testing.T) {
	tr := New()
	v := NewValue("a")
	outer := tr.Enter()
	v.Set(tr, "b")
	inner := tr.Enter()
	v.Set(tr, "c")
	outer.Release()
	assert.Equal(t, "a", v.Get())
	inner.Release()
	assert.Equal(t, "a", v.Get())
	assert.Equal(t, 0, tr.Depth())
}

func TestEnterFuncCallsRestored(t *testing.T) {
	tr := New()
	v := NewValue(0)
	calls := 0
	cp := tr.EnterFunc(func() { calls++ })
	v.Set(tr, 3)

	cp.Release()
	cp.Release()
	assert.Equal(t, 0, v.Get())
	assert.Equal(t, 1, calls)
}
