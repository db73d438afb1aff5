package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueSerializesWork(t *testing.T) {
	q := NewQueue(0)
	defer q.Close()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				require.NoError(t, q.Do(func() { counter++ }))
			}
		}()
	}
	wg.Wait()

	v, err := q.Call(func() (interface{}, error) { return counter, nil })
	require.NoError(t, err)
	require.Equal(t, 1000, v)
}

func TestTimerStopPreventsExecution(t *testing.T) {
	q := NewQueue(0)
	defer q.Close()

	var fired atomic.Int32
	timer := q.After(20*time.Millisecond, func() { fired.Add(1) })
	timer.Stop()

	q.After(30*time.Millisecond, func() { fired.Add(10) })

	require.Eventually(t, func() bool { return fired.Load() == 10 }, time.Second, 5*time.Millisecond)
}

func TestDoAfterCloseFails(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	require.ErrorIs(t, q.Do(func() {}), ErrClosed)
	_, err := q.Call(func() (interface{}, error) { return nil, nil })
	require.ErrorIs(t, err, ErrClosed)
}
