package sdk

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_SerializesInOrder(t *testing.T) {
	t.Parallel()

	q := newQueue(0)
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, q.do(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestQueue_CallReturnsValue(t *testing.T) {
	t.Parallel()

	q := newQueue(4)
	v, err := q.call(func() (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)

	_, err = q.call(func() (any, error) {
		return nil, fmt.Errorf("boom")
	})
	require.ErrorContains(t, err, "boom")
}

func TestQueue_NilSafe(t *testing.T) {
	t.Parallel()

	var q *queue
	require.Error(t, q.do(func() {}))
	_, err := q.call(func() (any, error) { return nil, nil })
	require.Error(t, err)

	live := newQueue(1)
	require.NoError(t, live.do(nil))
	v, err := live.call(nil)
	require.NoError(t, err)
	require.Nil(t, v)
}
