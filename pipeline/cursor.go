package pipeline

// cursor is a reversible iterator over a slice: next yields the element at
// the current position and advances; reverse reflects the underlying
// slice in place and remaps the position so that a subsequent walk yields
// previously consumed elements in reverse order. Generalized out of
// go.alis.build/atom's Transaction, which inlines the equivalent
// operations-list-plus-LIFO-rollback walk directly in Commit/Rollback;
// here it's a standalone type because SimulateUntil needs to reverse,
// partially walk, and reverse again as a distinct, externally visible step.
type cursor[T any] struct {
	items []T
	pos   int
}

func newCursor[T any](items []T) *cursor[T] {
	return &cursor[T]{items: items}
}

// hasNext reports whether a call to next would yield an element.
func (c *cursor[T]) hasNext() bool {
	return c.pos < len(c.items)
}

// peek returns the element next would yield, without consuming it. Only
// valid when hasNext is true.
func (c *cursor[T]) peek() T {
	return c.items[c.pos]
}

// next returns the element at the current position and advances past it.
func (c *cursor[T]) next() T {
	it := c.items[c.pos]
	c.pos++
	return it
}

// reverse reflects the underlying slice in place and remaps the position
// so that a walk from here on yields elements already consumed, in
// reverse order.
func (c *cursor[T]) reverse() {
	for i, j := 0, len(c.items)-1; i < j; i, j = i+1, j-1 {
		c.items[i], c.items[j] = c.items[j], c.items[i]
	}
	c.pos = len(c.items) - c.pos
}

// snapshot returns a copy of the items in their current order.
func (c *cursor[T]) snapshot() []T {
	cp := make([]T, len(c.items))
	copy(cp, c.items)
	return cp
}
