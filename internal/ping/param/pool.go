package param

import (
	"sync"
	"sync/atomic"
)

// pool is a lazily loaded list of items handed out round-robin.
//
// The first caller loads the items; concurrent first callers wait for that
// load. A failed load is remembered and returned to every caller.
type pool[T any] struct {
	once    sync.Once
	items   []T
	err     error
	counter atomic.Uint64
}

// next returns the next item in cyclic order. ok is false when the pool is empty.
func (p *pool[T]) next(load func() ([]T, error)) (item T, ok bool, err error) {
	p.once.Do(func() {
		p.items, p.err = load()
	})
	if p.err != nil {
		return item, false, p.err
	}
	if len(p.items) == 0 {
		return item, false, nil
	}
	n := p.counter.Add(1) - 1
	return p.items[n%uint64(len(p.items))], true, nil
}
