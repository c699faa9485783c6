package dedup

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginOrSkip(t *testing.T) {
	d := New()

	require.True(t, d.BeginOrSkip(PhaseLight, "k"))
	assert.False(t, d.BeginOrSkip(PhaseLight, "k"))
	assert.True(t, d.InFlight(PhaseLight, "k"))

	// phases are independent
	assert.True(t, d.BeginOrSkip(PhaseFull, "k"))

	d.End(PhaseLight, "k")
	assert.False(t, d.InFlight(PhaseLight, "k"))
	assert.True(t, d.BeginOrSkip(PhaseLight, "k"))
}

func TestAcquireRelease(t *testing.T) {
	d := New()

	release, ok := d.Acquire(PhaseFull, "x")
	require.True(t, ok)

	noop, ok := d.Acquire(PhaseFull, "x")
	assert.False(t, ok)
	noop()
	assert.True(t, d.InFlight(PhaseFull, "x"), "no-op release must not drop the key")

	release()
	assert.Equal(t, 0, d.Len(PhaseFull))
}

func TestInstancesDoNotShareState(t *testing.T) {
	a, b := New(), New()
	require.True(t, a.BeginOrSkip(PhaseLight, "k"))
	assert.True(t, b.BeginOrSkip(PhaseLight, "k"))
}

func TestConcurrentBeginOrSkip(t *testing.T) {
	d := New()
	var winners atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.BeginOrSkip(PhaseLight, "same") {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
