// Package queue provides the FIFO container that carries records and
// commands between pipeline stages.
package queue

import (
	"iter"
	"reflect"
)

// Queue is an ordered FIFO sequence. It is owned by one stage call at a
// time and is not safe for concurrent use.
type Queue[T any] struct {
	items []T
}

// New returns a queue holding items in order. Nil items are skipped.
func New[T any](items ...T) *Queue[T] {
	q := &Queue[T]{items: make([]T, 0, len(items))}
	for _, item := range items {
		q.Push(item)
	}
	return q
}

// Push appends item to the back of the queue unless item is nil.
func (q *Queue[T]) Push(item T) {
	if isNil(item) {
		return
	}
	q.items = append(q.items, item)
}

// Pop removes and returns the front item. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]

	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the front item without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	if len(q.items) == 0 {
		return item, false
	}
	return q.items[0], true
}

func (q *Queue[T]) Len() int {
	return len(q.items)
}

func (q *Queue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Clear drops every item.
func (q *Queue[T]) Clear() {
	q.items = nil
}

// All iterates the items front to back without removing them.
func (q *Queue[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, item := range q.items {
			if !yield(item) {
				return
			}
		}
	}
}

// Drain pops items until the queue is empty or the loop breaks.
func (q *Queue[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			item, ok := q.Pop()
			if !ok || !yield(item) {
				return
			}
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
