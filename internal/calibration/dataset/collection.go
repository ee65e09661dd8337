package dataset

// identified is anything looked up by id in the store.
type identified interface {
	ID() string
}

// collection is an append-only list with id lookup. Duplicate ids shadow
// each other: the first inserted wins.
type collection[T identified] struct {
	items []T
	index map[string]int
}

func newCollection[T identified](items []T) collection[T] {
	c := collection[T]{}
	for _, it := range items {
		c.add(it)
	}
	return c
}

func (c *collection[T]) add(it T) int {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	c.items = append(c.items, it)
	i := len(c.items) - 1
	if _, exists := c.index[it.ID()]; !exists {
		c.index[it.ID()] = i
	}
	return i
}

func (c *collection[T]) get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

func (c *collection[T]) all() []T {
	return append([]T(nil), c.items...)
}

// resolved returns the items that id lookups resolve to, in insertion order.
// Later duplicates of an id are left out.
func (c *collection[T]) resolved() []T {
	out := make([]T, 0, len(c.items))
	for i, it := range c.items {
		if c.index[it.ID()] == i {
			out = append(out, it)
		}
	}
	return out
}

func (c *collection[T]) len() int { return len(c.items) }

func (c *collection[T]) clear() {
	c.items = nil
	c.index = nil
}
