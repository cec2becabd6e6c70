package querycache

import "context"

// Mutation is a write through the persistence layer and the cache keys it
// affects.
type Mutation[T any] struct {
	// Keys are captured before Optimistic runs and invalidated on success.
	Keys []string
	// Optimistic, when set, writes the expected outcome into the cache
	// before Run is called.
	Optimistic func(c *Cache) error
	Run        func(ctx context.Context) (T, error)
}

// Result is either Data (Err nil) or the failure plus the cache state from
// before the mutation. The cache is not rolled back automatically: callers
// decide whether to Restore(Previous).
type Result[T any] struct {
	Data        T
	Err         error
	Previous    Snapshot
	Invalidated []string
}

// OK reports whether the mutation succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Mutate runs m against c.
func Mutate[T any](ctx context.Context, c *Cache, m Mutation[T]) Result[T] {
	previous := c.Snapshot(m.Keys...)

	if m.Optimistic != nil {
		if err := m.Optimistic(c); err != nil {
			c.Restore(previous)
			return Result[T]{Err: err, Previous: previous}
		}
	}

	data, err := m.Run(ctx)
	if err != nil {
		return Result[T]{Err: err, Previous: previous}
	}

	return Result[T]{
		Data:        data,
		Previous:    previous,
		Invalidated: c.Invalidate(m.Keys...),
	}
}
