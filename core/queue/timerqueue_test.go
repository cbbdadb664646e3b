package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/meridian-dds/meridian/core/queue"
	"github.com/stretchr/testify/require"
)

func TestTimerQueueFiresInOrder(t *testing.T) {
	var mu sync.Mutex
	var fired []int

	q := queue.NewTimerQueue(func(v interface{}) {
		mu.Lock()
		fired = append(fired, v.(int))
		mu.Unlock()
	})
	q.Start()
	defer q.Stop()

	now := uint64(time.Now().UnixNano())
	q.Push(now+uint64(30*time.Millisecond), 3)
	q.Push(now+uint64(10*time.Millisecond), 1)
	q.Push(now+uint64(20*time.Millisecond), 2)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, fired)
}

func TestCancelPreventsFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	q := queue.NewTimerQueue(func(v interface{}) { fired <- struct{}{} })
	q.Start()
	defer q.Stop()

	now := uint64(time.Now().UnixNano())
	h := q.Push(now+uint64(5*time.Millisecond), "x")
	q.Cancel(h)

	select {
	case <-fired:
		t.Fatal("cancelled entry fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPopReclaimsBeforeFire(t *testing.T) {
	q := queue.NewTimerQueue(func(v interface{}) {})
	now := uint64(time.Now().UnixNano())
	q.Push(now+uint64(time.Hour), "a")
	require.Equal(t, 1, q.Len())
	require.Equal(t, "a", q.Pop())
	require.Equal(t, 0, q.Len())
	require.Nil(t, q.Pop())
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := queue.NewTimerQueue(func(v interface{}) {})
	now := uint64(time.Now().UnixNano())
	q.Push(now+uint64(time.Hour), "a")
	require.Equal(t, "a", q.Peek())
	require.Equal(t, 1, q.Len())
}
