package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	items := make([]int, 1000)
	chunks := Split(items, 450, 1)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 450)
	assert.Len(t, chunks[2], 100)

	chunks = Split(items, 450, 2)
	require.Len(t, chunks, 5)
	assert.Len(t, chunks[0], 225)

	assert.Nil(t, Split([]int{}, 450, 1))
}

func TestClampSize(t *testing.T) {
	assert.Equal(t, DefaultSize, ClampSize(0))
	assert.Equal(t, MaxSize, ClampSize(10_000))
	assert.Equal(t, 10, ClampSize(10))
}

func TestRunStopsAtFailingChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var committed [][]int
	boom := errors.New("boom")

	done, err := Run(context.Background(), items, 2, 1, func(_ context.Context, chunk []int) error {
		if chunk[0] == 3 {
			return boom
		}
		committed = append(committed, chunk)
		return nil
	})

	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, done)
	assert.Equal(t, [][]int{{1, 2}}, committed)
}

type recorded struct {
	op     string
	writes int
	failed bool
}

type recorderStub struct{ calls []recorded }

func (r *recorderStub) ChunkCommitted(op string, writes int, err error) {
	r.calls = append(r.calls, recorded{op: op, writes: writes, failed: err != nil})
}

func TestObservedReportsEveryChunk(t *testing.T) {
	rec := &recorderStub{}
	boom := errors.New("boom")
	commit := Observed("purge", 2, rec, func(_ context.Context, chunk []int) error {
		if chunk[0] == 5 {
			return boom
		}
		return nil
	})

	_, err := Run(context.Background(), []int{1, 2, 3, 4, 5}, 4, 2, commit)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []recorded{
		{op: "purge", writes: 4},
		{op: "purge", writes: 4},
		{op: "purge", writes: 2, failed: true},
	}, rec.calls)
}
