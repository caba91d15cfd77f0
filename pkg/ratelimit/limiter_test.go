package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fitdb/pkg/store"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *time.Time) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Now()
	l := New(st, limit, window)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestSlidingWindow(t *testing.T) {
	l, now := newTestLimiter(t, 3, time.Second)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow("10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok, "request %d inside the window", i+1)
	}

	ok, err := l.Allow("10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok, "4th request within the window is denied")

	// window elapses; earlier stamps prune away
	*now = now.Add(1100 * time.Millisecond)
	ok, err = l.Allow("10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWindowSlides(t *testing.T) {
	l, now := newTestLimiter(t, 2, time.Second)

	ok, _ := l.Allow("id")
	require.True(t, ok)
	*now = now.Add(600 * time.Millisecond)
	ok, _ = l.Allow("id")
	require.True(t, ok)

	// first stamp still in window
	*now = now.Add(200 * time.Millisecond)
	ok, _ = l.Allow("id")
	require.False(t, ok)

	// first stamp slides out, second remains
	*now = now.Add(300 * time.Millisecond)
	ok, _ = l.Allow("id")
	require.True(t, ok)
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Second)

	ok, _ := l.Allow("a")
	require.True(t, ok)
	ok, _ = l.Allow("a")
	require.False(t, ok)
	ok, _ = l.Allow("b")
	require.True(t, ok)
}

func TestConcurrentContentionNeverOverAdmits(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow("shared")
			if err != nil {
				errCh <- err
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	// fail-closed: contention may under-admit, never over-admit
	require.LessOrEqual(t, allowed, 3)
	require.GreaterOrEqual(t, allowed, 1)
}
