package command

import (
	"context"
)

// batch queues bound argument lists and flushes them in groups.
//
// size > 1 flushes every size additions; size < 0 only flushes on demand.
type batch struct {
	size    int
	pending [][]any
	flush   func(ctx context.Context, pending [][]any) error
	flushes int
}

func newBatch(size int, flush func(ctx context.Context, pending [][]any) error) *batch {
	return &batch{size: size, flush: flush}
}

// add queues args, flushing when the batch is full.
func (b *batch) add(ctx context.Context, args []any) error {
	b.pending = append(b.pending, args)
	if b.size > 0 && len(b.pending) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush sends every pending argument list. It is a no-op when nothing is pending.
func (b *batch) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	pending := b.pending
	b.pending = nil
	b.flushes++
	return b.flush(ctx, pending)
}
