package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/awesome-security/vast/internal/vlog"
)

func TestPacer_FirstEventNeverSleeps(t *testing.T) {
	p := New(2, vlog.Noop())
	start := time.Now()
	p.Wait(context.Background(), 1_700_000_000_000_000_000)
	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestPacer_DisabledFactorNeverSleeps(t *testing.T) {
	p := New(0, vlog.Noop())
	require.False(t, p.Enabled())
	start := time.Now()
	p.Wait(context.Background(), 1)
	p.Wait(context.Background(), int64(time.Hour))
	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestPacer_SleepsProportionallyToFactor(t *testing.T) {
	p := New(2, vlog.Noop())
	base := int64(1_700_000_000_000_000_000)
	p.Wait(context.Background(), base) // first event, no sleep

	start := time.Now()
	p.Wait(context.Background(), base+int64(100*time.Millisecond)) // sleeps ~50ms
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	require.Less(t, elapsed, 200*time.Millisecond)
}

func TestPacer_NonMonotonicTimestampSkipsSleep(t *testing.T) {
	p := New(1, vlog.Noop())
	p.Wait(context.Background(), 1000)
	start := time.Now()
	p.Wait(context.Background(), 500) // regressed
	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestPacer_CancellationInterruptsSleep(t *testing.T) {
	p := New(1, vlog.Noop())
	p.Wait(context.Background(), 1) // first event baseline

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	p.Wait(ctx, 1+int64(time.Hour)) // would otherwise sleep an hour
	require.Less(t, time.Since(start), time.Second)
}
