package spinlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockMutualExclusion(t *testing.T) {
	l := &Lock_t{Name: "test"}
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
			defer l.Release()
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 100, counter)
}

func TestLockHolding(t *testing.T) {
	l := &Lock_t{Name: "test"}
	require.False(t, l.Holding(), "Holding() true before any Acquire")
	l.Acquire()
	require.True(t, l.Holding(), "Holding() false while held")
	l.Release()
	require.False(t, l.Holding(), "Holding() true after Release")
}

func TestCliNesting(t *testing.T) {
	var c Cli
	c.Pushcli(true)
	c.Pushcli(false) // nested pushcli should not overwrite the saved state
	require.Equal(t, 2, c.Depth())
	require.False(t, c.Popcli(), "Popcli reported reenable before reaching depth zero")
	require.True(t, c.Popcli(), "Popcli did not report reenable at depth zero, despite outermost Pushcli(true)")
}

func TestPopcliBelowZeroPanics(t *testing.T) {
	var c Cli
	require.Panics(t, func() { c.Popcli() })
}
