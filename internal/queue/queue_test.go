package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushNilIsNoop(t *testing.T) {
	q := New[any]("a")

	q.Push(nil)
	var p *int
	q.Push(p)
	var m map[string]any
	q.Push(m)

	assert.Equal(t, 1, q.Len())
}

func TestQueue_PushIncrementsByOne(t *testing.T) {
	q := New[any]()
	for i, v := range []any{1, "x", struct{}{}} {
		q.Push(v)
		assert.Equal(t, i+1, q.Len())
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := New("a", "b", "c")

	var got []string
	for v := range q.Drain() {
		got = append(got, v)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.True(t, q.IsEmpty())
}

func TestQueue_PopEmptyIsDistinguishable(t *testing.T) {
	q := New[any]()

	_, ok := q.Pop()
	assert.False(t, ok)

	for _, falsy := range []any{0, "", false} {
		q.Push(falsy)
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, falsy, v)
	}

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_PeekDoesNotRemove(t *testing.T) {
	q := New(1, 2)

	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, q.Len())

	q.Clear()
	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestQueue_AllKeepsItems(t *testing.T) {
	q := New(1, 2, 3)

	sum := 0
	for v := range q.All() {
		sum += v
	}

	assert.Equal(t, 6, sum)
	assert.Equal(t, 3, q.Len())
}

func TestQueue_DrainStopsOnBreak(t *testing.T) {
	q := New(1, 2, 3)

	for v := range q.Drain() {
		if v == 1 {
			break
		}
	}

	assert.Equal(t, 2, q.Len())
}
