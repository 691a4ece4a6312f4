package table

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_RunsOnceAfterBurst(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { runs.Add(1) })
	t.Cleanup(d.Stop)

	for range 5 {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return !d.Pending() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })
	t.Cleanup(d.Stop)

	d.Trigger()
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 2*time.Millisecond)
	d.Trigger()
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 2*time.Millisecond)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { runs.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	assert.False(t, d.Pending())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
