package cbuffer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intCmp(a, b int) int {
	return a - b
}

func content(c *CBuffer[int]) []int {
	var out []int
	c.ForEach(0, 0, func(v, _ int) {
		out = append(out, v)
	})
	return out
}

func TestPutSorted(t *testing.T) {
	c := New(intCmp, false)
	c.Put(5, 1, 3, 4, 2)
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, content(c)); diff != "" {
		t.Error(diff)
	}
}

func TestPutUnique(t *testing.T) {
	c := New(intCmp, true)
	c.Put(5, 1, 3, 1, 5, 5)
	if diff := cmp.Diff([]int{1, 3, 5}, content(c)); diff != "" {
		t.Error(diff)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	// Without uniqueness duplicates are kept.
	c = New(intCmp, false)
	c.Put(5, 1, 3, 1)
	if diff := cmp.Diff([]int{1, 1, 3, 5}, content(c)); diff != "" {
		t.Error(diff)
	}
}

func TestGetLast(t *testing.T) {
	c := New(intCmp, true)
	if _, ok := c.GetLast(); ok {
		t.Error("GetLast on empty buffer reported ok")
	}
	c.Put(2, 7, 4)
	if last, ok := c.GetLast(); !ok || last != 7 {
		t.Errorf("GetLast() = %d, %v; want 7, true", last, ok)
	}
}

func TestDelAt(t *testing.T) {
	c := New(intCmp, true)
	c.Put(1, 2, 3)
	if v := c.DelAt(1); v != 2 {
		t.Errorf("DelAt(1) = %d, want 2", v)
	}
	if diff := cmp.Diff([]int{1, 3}, content(c)); diff != "" {
		t.Error(diff)
	}
}

func TestDelRange(t *testing.T) {
	c := New(intCmp, true)
	c.Put(1, 2, 3, 4, 5)

	removed := c.DelRange(1, 3)
	if diff := cmp.Diff([]int{2, 3}, removed); diff != "" {
		t.Error("removed:", diff)
	}
	if diff := cmp.Diff([]int{1, 4, 5}, content(c)); diff != "" {
		t.Error("remaining:", diff)
	}

	// Out of range bounds are clamped.
	removed = c.DelRange(-2, 100)
	if len(removed) != 3 || c.Len() != 0 {
		t.Errorf("clamped DelRange removed %d, left %d", len(removed), c.Len())
	}

	// Inverted range is a noop.
	c.Put(1, 2)
	if removed = c.DelRange(1, 1); removed != nil {
		t.Errorf("empty range removed %v", removed)
	}
}

func TestFind(t *testing.T) {
	c := New(intCmp, true)
	c.Put(10, 20, 30)

	if idx := c.Find(20, false); idx != 1 {
		t.Errorf("Find(20) = %d, want 1", idx)
	}
	if idx := c.Find(25, false); idx != -1 {
		t.Errorf("Find(25) = %d, want -1", idx)
	}
	// Nearest returns the insertion point.
	if idx := c.Find(25, true); idx != 2 {
		t.Errorf("Find(25, nearest) = %d, want 2", idx)
	}
	if idx := c.Find(5, true); idx != 0 {
		t.Errorf("Find(5, nearest) = %d, want 0", idx)
	}
	if idx := c.Find(35, true); idx != 3 {
		t.Errorf("Find(35, nearest) = %d, want 3", idx)
	}
}

func TestForEachBounds(t *testing.T) {
	c := New(intCmp, true)
	c.Put(1, 2, 3, 4, 5)

	var out []int
	c.ForEach(1, 3, func(v, _ int) {
		out = append(out, v)
	})
	if diff := cmp.Diff([]int{2, 3}, out); diff != "" {
		t.Error(diff)
	}

	// Non-positive beforeIdx means the end of the buffer.
	out = nil
	c.ForEach(3, 0, func(v, _ int) {
		out = append(out, v)
	})
	if diff := cmp.Diff([]int{4, 5}, out); diff != "" {
		t.Error(diff)
	}
}

func TestReset(t *testing.T) {
	c := New(intCmp, true)
	c.Put(1, 2, 3)
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("Len() after Reset = %d", c.Len())
	}
}
