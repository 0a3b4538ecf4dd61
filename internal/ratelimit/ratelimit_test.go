package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCheckUnknownOriginAllowed(t *testing.T) {
	l := New(120 * time.Second)
	ok, remaining := l.Check("10.0.0.1")
	require.True(t, ok)
	require.Zero(t, remaining)
}

func TestCooldownCountsDown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)}
	l := New(120*time.Second, WithClock(clock.Now))
	l.Record("10.0.0.1")

	ok, remaining := l.Check("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, 120, remaining)

	prev := remaining
	for _, step := range []time.Duration{500 * time.Millisecond, 30 * time.Second, 60 * time.Second, 29 * time.Second} {
		clock.Advance(step)
		ok, remaining = l.Check("10.0.0.1")
		require.False(t, ok)
		require.LessOrEqual(t, remaining, prev)
		require.GreaterOrEqual(t, remaining, 1)
		prev = remaining
	}

	// 119.5s elapsed: never reports zero while still limited
	ok, remaining = l.Check("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, 1, remaining)

	clock.Advance(500 * time.Millisecond)
	ok, remaining = l.Check("10.0.0.1")
	require.True(t, ok)
	require.Zero(t, remaining)
}

func TestOriginsAreIndependent(t *testing.T) {
	l := New(time.Minute)
	l.Record("a")
	ok, _ := l.Check("b")
	require.True(t, ok)
	ok, _ = l.Check("a")
	require.False(t, ok)
}

func TestRecordOverwrites(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(time.Minute, WithClock(clock.Now))
	l.Record("a")
	clock.Advance(61 * time.Second)
	ok, _ := l.Check("a")
	require.True(t, ok)

	l.Record("a")
	ok, remaining := l.Check("a")
	require.False(t, ok)
	require.Equal(t, 60, remaining)
}

func TestCheckSweepsStaleEntries(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(time.Minute, WithClock(clock.Now))
	l.Record("a")
	l.Record("b")
	clock.Advance(90 * time.Second)
	l.Record("c")
	require.Equal(t, 3, l.Len())

	clock.Advance(31 * time.Second)
	l.Check("z")
	require.Equal(t, 1, l.Len())
}

func TestReserveAdmitsOneOfConcurrentSubmissions(t *testing.T) {
	l := New(120 * time.Second)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if slot, _ := l.Reserve("10.0.0.1"); slot != nil {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), admitted.Load())
	ok, remaining := l.Check("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, 120, remaining)
}

func TestReserveCancel(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)}
	l := New(120*time.Second, WithClock(clock.Now))

	testCases := []struct {
		name    string
		setup   func()
		allowed bool
	}{
		{
			name:    "fresh origin is free again",
			setup:   func() {},
			allowed: true,
		},
		{
			name: "expired stamp is restored, still allowed",
			setup: func() {
				l.Record("10.0.0.1")
				clock.Advance(150 * time.Second)
			},
			allowed: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup()
			slot, _ := l.Reserve("10.0.0.1")
			require.NotNil(t, slot)

			blocked, remaining := l.Reserve("10.0.0.1")
			require.Nil(t, blocked)
			require.Equal(t, 120, remaining)

			slot.Cancel()
			ok, _ := l.Check("10.0.0.1")
			require.Equal(t, tc.allowed, ok)
		})
	}

	// a cancel after a newer stamp leaves the newer one alone
	clock.Advance(time.Hour)
	slot, _ := l.Reserve("10.0.0.2")
	require.NotNil(t, slot)
	clock.Advance(time.Second)
	l.Record("10.0.0.2")
	slot.Cancel()
	ok, _ := l.Check("10.0.0.2")
	require.False(t, ok)

	var none *Reservation
	none.Cancel()
}
