package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/metrics"
)

type longPollFixture struct {
	clock    *clockwork.FakeClock
	registry *LongPollRegistry
	metrics  *metrics.Metrics

	mu      sync.Mutex
	current content.Content
}

func newLongPollFixture(t *testing.T) *longPollFixture {
	t.Helper()
	f := &longPollFixture{
		clock:   clockwork.NewFakeClock(),
		metrics: newTestMetrics(t),
		current: content.Content{ImageURL: "initial", Message: "welcome"},
	}
	f.registry = NewLongPollRegistry(f.clock, DefaultLongPollTimeout, f.getCurrent, testLogger(), f.metrics)
	return f
}

func (f *longPollFixture) getCurrent() content.Content {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *longPollFixture) setCurrent(c content.Content) {
	f.mu.Lock()
	f.current = c
	f.mu.Unlock()
}

func (f *longPollFixture) waitForTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, n))
}

func TestLongPollRegistry_TimeoutRespondsWithCurrentContent(t *testing.T) {
	f := newLongPollFixture(t)
	client := &mockLongPoll{}

	f.registry.Register(client)
	f.waitForTimers(t, 1)

	f.clock.Advance(DefaultLongPollTimeout - time.Millisecond)
	assert.Equal(t, 0, client.count())
	assert.Equal(t, 1, f.registry.Count())

	f.setCurrent(content.Content{ImageURL: "at-timeout", Message: "m"})
	f.clock.Advance(time.Millisecond)

	require.Eventually(t, func() bool { return client.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "at-timeout", client.received()[0].ImageURL)
	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LongPollResolutions.WithLabelValues(metrics.ReasonTimeout)))
}

func TestLongPollRegistry_ResolveAllPreventsTimeoutResponse(t *testing.T) {
	f := newLongPollFixture(t)
	client := &mockLongPoll{}

	f.registry.Register(client)
	f.waitForTimers(t, 1)

	next := content.Content{ImageURL: "next", Message: "m"}
	assert.Equal(t, 1, f.registry.ResolveAll(next))
	assert.Equal(t, 0, f.registry.Count())

	f.clock.Advance(2 * DefaultLongPollTimeout)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, 1, client.count(), "client must be answered exactly once")
	assert.Equal(t, next, client.received()[0])
}

func TestLongPollRegistry_TimedOutClientExcludedFromResolveAll(t *testing.T) {
	f := newLongPollFixture(t)
	client := &mockLongPoll{}

	f.registry.Register(client)
	f.waitForTimers(t, 1)
	f.clock.Advance(DefaultLongPollTimeout)

	require.Eventually(t, func() bool { return f.registry.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.registry.ResolveAll(content.Content{Message: "later"}))
	assert.Equal(t, 1, client.count())
}

func TestLongPollRegistry_DeregisterNeverResponds(t *testing.T) {
	f := newLongPollFixture(t)
	client := &mockLongPoll{}

	id := f.registry.Register(client)
	f.waitForTimers(t, 1)

	assert.True(t, f.registry.Deregister(id))
	assert.False(t, f.registry.Deregister(id))
	assert.False(t, f.registry.Deregister("lp-unknown"))

	f.clock.Advance(DefaultLongPollTimeout)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, f.registry.ResolveAll(content.Content{}))
	assert.Equal(t, 0, client.count())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LongPollResolutions.WithLabelValues(metrics.ReasonDisconnect)))
}

func TestLongPollRegistry_ResolveAllDrainsOnlyExistingEntries(t *testing.T) {
	f := newLongPollFixture(t)
	first, second := &mockLongPoll{}, &mockLongPoll{}

	f.registry.Register(first)
	f.registry.Register(second)
	assert.Equal(t, 2, f.registry.ResolveAll(content.Content{Message: "tick"}))

	late := &mockLongPoll{}
	f.registry.Register(late)

	assert.Equal(t, 1, f.registry.Count())
	assert.Equal(t, 0, late.count())
	assert.Equal(t, 1, first.count())
	assert.Equal(t, 1, second.count())
}

func TestLongPollRegistry_CountMatchesOutstanding(t *testing.T) {
	f := newLongPollFixture(t)

	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, f.registry.Register(&mockLongPoll{}))
	}
	for i, id := range ids[:4] {
		f.registry.Deregister(id)
		assert.Equal(t, 10-(i+1), f.registry.Count())
	}
	f.registry.Deregister(ids[0])
	assert.Equal(t, 6, f.registry.Count())

	f.registry.ResolveAll(content.Content{})
	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.LongPollClients))
}

// Races every resolution path against the others with a real clock and
// checks that each client is answered at most once.
func TestLongPollRegistry_ExactlyOnceUnderContention(t *testing.T) {
	m := newTestMetrics(t)
	r := NewLongPollRegistry(clockwork.NewRealClock(), time.Millisecond, func() content.Content {
		return content.Content{Message: "timeout"}
	}, testLogger(), m)

	const n = 300
	clients := make([]*mockLongPoll, n)
	ids := make([]string, n)
	for i := range clients {
		clients[i] = &mockLongPoll{}
		ids[i] = r.Register(clients[i])
	}

	var disconnected atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.ResolveAll(content.Content{Message: "update"})
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i += 3 {
			if r.Deregister(ids[i]) {
				disconnected.Add(1)
			}
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return r.Count() == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	answered := 0
	for _, c := range clients {
		got := c.count()
		require.LessOrEqual(t, got, 1)
		answered += got
	}
	assert.Equal(t, n, answered+int(disconnected.Load()))
}

func TestLongPollRegistry_GaugeTracksCountUnderConcurrency(t *testing.T) {
	f := newLongPollFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := f.registry.Register(&mockLongPoll{})
				if j%2 == 0 {
					f.registry.Deregister(id)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 16*25, f.registry.Count())
	assert.Equal(t, float64(f.registry.Count()), testutil.ToFloat64(f.metrics.LongPollClients))
}
