package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelIsFIFO(t *testing.T) {
	c := NewChannel()
	c.Logf("Page %d: Found %d venues", 1, 12)
	c.Progress("ayo", 1, 3)
	c.Logf("Scraping completed!")
	c.Complete()

	ctx := context.Background()
	var kinds []Kind
	for {
		e, ok, err := c.Next(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)
		kinds = append(kinds, e.Kind)
		if e.Terminal() {
			break
		}
	}
	require.Equal(t, []Kind{KindLog, KindProgress, KindLog, KindComplete}, kinds)
}

func TestNextTimesOut(t *testing.T) {
	c := NewChannel()
	start := time.Now()
	_, ok, err := c.Next(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestNextWakesOnPublish(t *testing.T) {
	c := NewChannel()
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Fail("boom")
	}()
	e, ok, err := c.Next(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindError, e.Kind)
	require.Equal(t, "boom", e.Message)
}

func TestNextHonoursContext(t *testing.T) {
	c := NewChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := c.Next(ctx, time.Second)
	require.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNothingAfterTerminal(t *testing.T) {
	c := NewChannel()
	c.Complete()
	c.Logf("late line")
	c.Fail("late failure")
	require.Equal(t, 1, c.Len())
}

func TestConcurrentProducerKeepsOrder(t *testing.T) {
	c := NewChannel()
	const n = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			c.Progress("gelora", i, n)
		}
		c.Complete()
	}()

	next := 0
	for {
		e, ok, err := c.Next(context.Background(), time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		if e.Kind == KindComplete {
			break
		}
		require.Equal(t, next, e.Current)
		next++
	}
	wg.Wait()
	require.Equal(t, n, next)
}

func TestPercent(t *testing.T) {
	require.Equal(t, 0, Event{Current: 3, Total: 0}.Percent())
	require.Equal(t, 33, Event{Current: 1, Total: 3}.Percent())
	require.Equal(t, 100, Event{Current: 7, Total: 7}.Percent())
}

func TestFilterLines(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			name: "keeps progress phrases",
			in:   "Found venue: Senayan -> https://ayo.co.id/v/senayan\nrandom chatter\n  Page 2: Found 9 venues  ",
			want: "Found venue: Senayan -> https://ayo.co.id/v/senayan\nPage 2: Found 9 venues",
			ok:   true,
		},
		{
			name: "skip beats keep",
			in:   "Field: Court 1 field_id=41\nAPI URL: Page 3",
			ok:   false,
		},
		{
			name: "markers",
			in:   "  ✅ Senayan | slot available -> 2 available fields\n  ❌ Kemang",
			want: "✅ Senayan | slot available -> 2 available fields\n❌ Kemang",
			ok:   true,
		},
		{
			name: "nothing relevant",
			in:   "\n   \nloading",
			ok:   false,
		},
		{
			name: "platform banner",
			in:   "========================================\n[GELORA] Starting Gelora scraper...",
			want: "[GELORA] Starting Gelora scraper...",
			ok:   true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FilterLines(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}
