package inactivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSession struct {
	mu sync.Mutex
	n  int
}

func (c *countingSession) SignOut(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingSession) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// fakeClock runs due callbacks on Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	due     time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{due: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.due <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func newMonitor(t *testing.T, timeout time.Duration) (*Monitor, *countingSession, *fakeClock) {
	t.Helper()
	sess := &countingSession{}
	clk := &fakeClock{}
	return New(sess, timeout, zaptest.NewLogger(t), WithAfterFunc(clk.AfterFunc)), sess, clk
}

func TestMonitor_FiresAfterTimeout(t *testing.T) {
	m, sess, clk := newMonitor(t, 0)
	m.Start()

	clk.Advance(DefaultTimeout - time.Second)
	require.Zero(t, sess.count())
	clk.Advance(time.Second)
	require.Equal(t, 1, sess.count())
}

func TestMonitor_RearmTwiceSchedulesOneSignOutFromLatest(t *testing.T) {
	m, sess, clk := newMonitor(t, time.Hour)
	m.Start()

	clk.Advance(20 * time.Minute)
	m.Foreground()
	clk.Advance(20 * time.Minute)
	m.HandleAppState(AppActive)

	require.Len(t, clk.pending(), 1)
	require.Equal(t, 40*time.Minute+time.Hour, clk.pending()[0].due)

	// the first arming would have fired at 60m
	clk.Advance(59 * time.Minute)
	require.Zero(t, sess.count())
	clk.Advance(time.Minute)
	require.Equal(t, 1, sess.count())

	clk.Advance(5 * time.Hour)
	require.Equal(t, 1, sess.count())
}

func TestMonitor_BackgroundDoesNotPause(t *testing.T) {
	m, sess, clk := newMonitor(t, time.Hour)
	m.Start()
	m.HandleAppState(AppBackground)
	m.HandleAppState(AppInactive)

	clk.Advance(time.Hour)
	require.Equal(t, 1, sess.count())
}

func TestMonitor_Stop(t *testing.T) {
	m, sess, clk := newMonitor(t, time.Hour)
	m.Start()
	m.Stop()
	m.Foreground()

	clk.Advance(2 * time.Hour)
	require.Zero(t, sess.count())
	require.Empty(t, clk.pending())
}

func TestMonitor_StaleCallbackIsNoop(t *testing.T) {
	sess := &countingSession{}
	var fns []func()
	m := New(sess, time.Hour, zaptest.NewLogger(t), WithAfterFunc(func(_ time.Duration, f func()) Timer {
		fns = append(fns, f)
		return &fakeTimer{}
	}))
	m.Start()
	m.Foreground()
	require.Len(t, fns, 2)

	// a timer that already fired before being stopped
	fns[0]()
	require.Zero(t, sess.count())
	fns[1]()
	require.Equal(t, 1, sess.count())
}
