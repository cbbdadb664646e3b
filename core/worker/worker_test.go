package worker_test

import (
	"testing"
	"time"

	"github.com/meridian-dds/meridian/core/worker"
	"github.com/stretchr/testify/require"
)

type thing struct {
	worker.Worker
	ticks int
}

func (t *thing) run() {
	t.Go(func() {
		for {
			select {
			case <-t.HaltCh():
				return
			case <-time.After(time.Millisecond):
				t.ticks++
			}
		}
	})
}

func TestHaltStopsGoroutine(t *testing.T) {
	th := &thing{}
	th.run()
	time.Sleep(10 * time.Millisecond)
	th.Halt()
	th.Wait()
	require.Greater(t, th.ticks, 0)

	// Halt is idempotent.
	require.NotPanics(t, func() { th.Halt() })
}
