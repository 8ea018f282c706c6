package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalNotifierCoalescesSignals(t *testing.T) {
	n := NewLocalNotifier()
	ch, stop := n.Listen("a", "b")
	defer stop()

	require.NoError(t, n.Publish(context.Background(), "a"))
	require.NoError(t, n.Publish(context.Background(), "b"))
	require.NoError(t, n.Publish(context.Background(), "unrelated"))

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should be coalesced")
	default:
	}
}

func TestLocalNotifierStopRemovesListener(t *testing.T) {
	n := NewLocalNotifier()
	_, stop := n.Listen("a")
	stop()
	stop()

	n.mu.RLock()
	defer n.mu.RUnlock()
	assert.Empty(t, n.listeners)
}

func TestWatchDeliversInitialAndChangedSnapshots(t *testing.T) {
	n := NewLocalNotifier()
	var value atomic.Int64
	value.Store(1)

	var mu sync.Mutex
	var got []int64
	unsubscribe := Watch(context.Background(), n, []string{"counter"},
		func(context.Context) (int64, error) { return value.Load(), nil },
		func(v int64) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		},
		nil,
	)
	defer unsubscribe()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	value.Store(2)
	require.NoError(t, n.Publish(context.Background(), "counter"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && got[1] == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWatchReportsErrors(t *testing.T) {
	n := NewLocalNotifier()
	errs := make(chan error, 1)
	unsubscribe := Watch(context.Background(), n, []string{"x"},
		func(context.Context) (string, error) { return "", errors.New("boom") },
		func(string) { t.Error("no snapshot expected") },
		func(err error) { errs <- err },
	)
	defer unsubscribe()

	select {
	case err := <-errs:
		assert.EqualError(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("expected an error callback")
	}
}

func TestWatchStopsDeliveringAfterUnsubscribe(t *testing.T) {
	n := NewLocalNotifier()
	var calls atomic.Int32
	unsubscribe := Watch(context.Background(), n, []string{"x"},
		func(context.Context) (int, error) { return 0, nil },
		func(int) { calls.Add(1) },
		nil,
	)

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	unsubscribe()
	unsubscribe()

	for i := 0; i < 10; i++ {
		require.NoError(t, n.Publish(context.Background(), "x"))
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
