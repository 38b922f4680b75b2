// Package cbuffer implements an in-memory sorted cache of objects.
//
// The order is defined by a comparator injected at construction. Lookups
// are binary searches, insertions keep the buffer sorted.
package cbuffer

import "sort"

// CBuffer is an array-backed sorted container.
type CBuffer[T any] struct {
	compare func(a, b T) int
	unique  bool
	buf     []T
}

// New creates an empty buffer ordered by the given comparator. When unique
// is true, inserting an element which compares equal to an existing one
// replaces it instead of duplicating.
func New[T any](compare func(a, b T) int, unique bool) *CBuffer[T] {
	return &CBuffer[T]{compare: compare, unique: unique}
}

// GetAt returns the element at the given position. The position must be
// within bounds.
func (c *CBuffer[T]) GetAt(at int) T {
	return c.buf[at]
}

// GetLast returns the last element of the buffer, if any.
func (c *CBuffer[T]) GetLast() (T, bool) {
	if len(c.buf) == 0 {
		var zero T
		return zero, false
	}
	return c.buf[len(c.buf)-1], true
}

// Put adds one or more elements to the buffer keeping it sorted.
func (c *CBuffer[T]) Put(vals ...T) {
	for _, v := range vals {
		c.insertSorted(v)
	}
}

func (c *CBuffer[T]) insertSorted(v T) {
	idx, exact := c.findNearest(v)
	if exact && c.unique {
		c.buf[idx] = v
		return
	}
	c.buf = append(c.buf, v)
	copy(c.buf[idx+1:], c.buf[idx:])
	c.buf[idx] = v
}

// DelAt removes the element at the given position and returns it.
func (c *CBuffer[T]) DelAt(at int) T {
	v := c.buf[at]
	c.buf = append(c.buf[:at], c.buf[at+1:]...)
	return v
}

// DelRange removes elements between two positions: since inclusive,
// before exclusive. Removed elements are returned.
func (c *CBuffer[T]) DelRange(since, before int) []T {
	if since < 0 {
		since = 0
	}
	if before > len(c.buf) {
		before = len(c.buf)
	}
	if since >= before {
		return nil
	}
	removed := make([]T, before-since)
	copy(removed, c.buf[since:before])
	c.buf = append(c.buf[:since], c.buf[before:]...)
	return removed
}

// Len returns the number of elements the buffer holds.
func (c *CBuffer[T]) Len() int {
	return len(c.buf)
}

// Reset discards all elements.
func (c *CBuffer[T]) Reset() {
	c.buf = nil
}

// ForEach calls fn for each element in positions [startIdx, beforeIdx).
// A beforeIdx of zero or less means the end of the buffer. The bounds are
// clamped to the buffer size.
func (c *CBuffer[T]) ForEach(startIdx, beforeIdx int, fn func(v T, idx int)) {
	if startIdx < 0 {
		startIdx = 0
	}
	if beforeIdx <= 0 || beforeIdx > len(c.buf) {
		beforeIdx = len(c.buf)
	}
	for i := startIdx; i < beforeIdx; i++ {
		fn(c.buf[i], i)
	}
}

// Find locates an element using the buffer's comparator. If an exact match
// is not found it returns -1, unless nearest is true in which case the
// insertion point which preserves order is returned.
func (c *CBuffer[T]) Find(elem T, nearest bool) int {
	idx, exact := c.findNearest(elem)
	if exact || nearest {
		return idx
	}
	return -1
}

// findNearest is a binary search for the leftmost position where elem could
// be inserted. The second return value tells whether the element at that
// position compares equal to elem.
func (c *CBuffer[T]) findNearest(elem T) (int, bool) {
	idx := sort.Search(len(c.buf), func(i int) bool {
		return c.compare(c.buf[i], elem) >= 0
	})
	if idx < len(c.buf) && c.compare(c.buf[idx], elem) == 0 {
		return idx, true
	}
	return idx, false
}
