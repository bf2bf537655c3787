package batch

import (
	"context"
	"fmt"
)

// MaxSize is the hard per-commit write limit of the backing store.
const MaxSize = 500

// DefaultSize leaves headroom under MaxSize.
const DefaultSize = 450

// ChunkError reports which chunk failed. Chunks before Index stay committed.
type ChunkError struct {
	Index int
	Size  int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("batch: chunk %d (%d writes) failed: %v", e.Index, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// ClampSize keeps size within 1..MaxSize, falling back to DefaultSize.
func ClampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultSize
	case size > MaxSize:
		return MaxSize
	default:
		return size
	}
}

// Split cuts items into consecutive chunks of at most size writes,
// where every item costs writesPerItem writes.
func Split[T any](items []T, size, writesPerItem int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if writesPerItem <= 0 {
		writesPerItem = 1
	}
	perChunk := ClampSize(size) / writesPerItem
	if perChunk < 1 {
		perChunk = 1
	}
	out := make([][]T, 0, (len(items)+perChunk-1)/perChunk)
	for start := 0; start < len(items); start += perChunk {
		end := start + perChunk
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// Run commits chunks in order through commit and stops at the first failure.
// It returns how many items were committed.
func Run[T any](ctx context.Context, items []T, size, writesPerItem int, commit func(ctx context.Context, chunk []T) error) (int, error) {
	done := 0
	for i, chunk := range Split(items, size, writesPerItem) {
		if err := ctx.Err(); err != nil {
			return done, &ChunkError{Index: i, Size: len(chunk) * max(writesPerItem, 1), Err: err}
		}
		if err := commit(ctx, chunk); err != nil {
			return done, &ChunkError{Index: i, Size: len(chunk) * max(writesPerItem, 1), Err: err}
		}
		done += len(chunk)
	}
	return done, nil
}

// Recorder receives one call per attempted chunk commit.
type Recorder interface {
	ChunkCommitted(op string, writes int, err error)
}

// Observed wraps commit so every chunk outcome reaches rec under op.
// A nil rec returns commit unchanged.
func Observed[T any](op string, writesPerItem int, rec Recorder, commit func(ctx context.Context, chunk []T) error) func(ctx context.Context, chunk []T) error {
	if rec == nil {
		return commit
	}
	return func(ctx context.Context, chunk []T) error {
		err := commit(ctx, chunk)
		rec.ChunkCommitted(op, len(chunk)*max(writesPerItem, 1), err)
		return err
	}
}
