package actuator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type transition struct {
	pin   string
	level gpio.Level
}

// pinLog records every level change and notes if both ballast outputs were
// ever high at the same time.
type pinLog struct {
	mu      sync.Mutex
	events  []transition
	high    map[string]bool
	overlap bool
}

func (l *pinLog) add(name string, lvl gpio.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, transition{name, lvl})
	l.high[name] = bool(lvl)
	if l.high["out"] && l.high["in"] {
		l.overlap = true
	}
}

func (l *pinLog) rising(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.pin == name && e.level == gpio.High {
			n++
		}
	}
	return n
}

type recPin struct {
	*gpiotest.Pin
	log *pinLog
	err error
}

func (p *recPin) Out(l gpio.Level) error {
	if p.err != nil && l == gpio.High {
		return p.err
	}
	p.log.add(p.N, l)
	return p.Pin.Out(l)
}

type rig struct {
	c                      *Controller
	log                    *pinLog
	light, ballOut, ballIn *recPin
}

func newRig(t *testing.T, opts ...Option) *rig {
	t.Helper()
	log := &pinLog{high: map[string]bool{}}
	r := &rig{
		log:     log,
		light:   &recPin{Pin: &gpiotest.Pin{N: "light", L: gpio.High}, log: log},
		ballOut: &recPin{Pin: &gpiotest.Pin{N: "out", L: gpio.High}, log: log},
		ballIn:  &recPin{Pin: &gpiotest.Pin{N: "in"}, log: log},
	}
	c, err := New(r.light, r.ballOut, r.ballIn, opts...)
	require.NoError(t, err)
	r.c = c
	t.Cleanup(func() { _ = c.Close() })
	return r
}

func (r *rig) requireAllLow(t *testing.T) {
	t.Helper()
	require.Equal(t, gpio.Low, r.light.Read())
	require.Equal(t, gpio.Low, r.ballOut.Read())
	require.Equal(t, gpio.Low, r.ballIn.Read())
	require.Equal(t, State{}, r.c.State())
}

func TestNewDrivesAllLow(t *testing.T) {
	r := newRig(t)
	r.requireAllLow(t)
}

func TestSurfaceBlocks(t *testing.T) {
	r := newRig(t)

	start := time.Now()
	require.NoError(t, r.c.Surface(context.Background(), 30*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, 1, r.log.rising("out"))
	require.Zero(t, r.log.rising("in"))
	r.requireAllLow(t)
}

func TestSinkAsyncReturnsImmediately(t *testing.T) {
	r := newRig(t)

	start := time.Now()
	task := r.c.SinkAsync(100 * time.Millisecond)
	require.Less(t, time.Since(start), 50*time.Millisecond)

	require.Eventually(t, func() bool { return r.c.State().BallastIn }, time.Second, time.Millisecond)
	require.NoError(t, task.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	r.requireAllLow(t)
}

func TestBallastActionsAreSerialized(t *testing.T) {
	r := newRig(t, WithBobStep(5*time.Millisecond))

	up := r.c.SurfaceAsync(30 * time.Millisecond)
	down := r.c.SinkAsync(30 * time.Millisecond)
	bob := r.c.Bob(20 * time.Millisecond)

	ctx := context.Background()
	require.NoError(t, up.Wait(ctx))
	require.NoError(t, down.Wait(ctx))
	require.NoError(t, bob.Wait(ctx))

	require.False(t, r.log.overlap, "ballast outputs were high together")
	require.GreaterOrEqual(t, r.log.rising("out"), 2)
	require.GreaterOrEqual(t, r.log.rising("in"), 2)
	r.requireAllLow(t)
}

func TestCancelRunningTask(t *testing.T) {
	r := newRig(t)

	task := r.c.SurfaceAsync(time.Hour)
	require.Eventually(t, func() bool { return r.c.State().BallastOut }, time.Second, time.Millisecond)
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop after Cancel")
	}
	require.ErrorIs(t, task.Err(), context.Canceled)
	r.requireAllLow(t)
}

func TestCancelQueuedTaskNeverRuns(t *testing.T) {
	r := newRig(t)

	first := r.c.SurfaceAsync(20 * time.Millisecond)
	queued := r.c.SinkAsync(time.Hour)
	queued.Cancel()

	require.NoError(t, first.Wait(context.Background()))
	require.ErrorIs(t, queued.Wait(context.Background()), context.Canceled)
	require.Zero(t, r.log.rising("in"))
}

func TestSinkContextCanceled(t *testing.T) {
	r := newRig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.c.Sink(ctx, time.Hour)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	r.requireAllLow(t)
}

func TestBlinkLight(t *testing.T) {
	r := newRig(t)

	start := time.Now()
	task := r.c.BlinkLight(3, 5*time.Millisecond)
	require.NoError(t, task.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, 3, r.log.rising("light"))
	r.requireAllLow(t)
}

func TestBlinkDoesNotWaitForBallast(t *testing.T) {
	r := newRig(t)

	ballast := r.c.SinkAsync(time.Hour)
	blink := r.c.BlinkLight(1, time.Millisecond)
	require.NoError(t, blink.Wait(context.Background()))
	require.Nil(t, ballast.Err())
	ballast.Cancel()
	<-ballast.Done()
}

func TestToggleLight(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	require.NoError(t, r.c.ToggleLight(ctx))
	require.True(t, r.c.State().Light)
	require.Equal(t, gpio.High, r.light.Read())
	require.NoError(t, r.c.ToggleLight(ctx))
	require.False(t, r.c.State().Light)
}

func TestCloseFailsQueuedTasks(t *testing.T) {
	r := newRig(t)

	running := r.c.SurfaceAsync(time.Hour)
	require.Eventually(t, func() bool { return r.c.State().BallastOut }, time.Second, time.Millisecond)
	queued := r.c.SinkAsync(time.Second)

	require.NoError(t, r.c.Close())
	require.ErrorIs(t, running.Err(), context.Canceled)
	require.ErrorIs(t, queued.Err(), ErrClosed)
	r.requireAllLow(t)

	require.ErrorIs(t, r.c.SurfaceAsync(time.Second).Err(), ErrClosed)
	require.NoError(t, r.c.Close())
}

func TestQueueFull(t *testing.T) {
	r := newRig(t, WithQueueSize(1))

	running := r.c.SurfaceAsync(time.Hour)
	require.Eventually(t, func() bool { return r.c.State().BallastOut }, time.Second, time.Millisecond)
	r.c.SinkAsync(time.Second)

	overflow := r.c.SinkAsync(time.Second)
	require.ErrorIs(t, overflow.Err(), ErrQueueFull)
	running.Cancel()
}

func TestBlockingSinkWaitsForQueueSlot(t *testing.T) {
	r := newRig(t, WithQueueSize(1))

	running := r.c.SurfaceAsync(time.Hour)
	require.Eventually(t, func() bool { return r.c.State().BallastOut }, time.Second, time.Millisecond)
	filler := r.c.SinkAsync(time.Millisecond)
	require.NoError(t, filler.Err())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := r.c.Sink(ctx, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrQueueFull)

	done := make(chan error, 1)
	go func() { done <- r.c.Sink(context.Background(), time.Millisecond) }()
	time.Sleep(20 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("sink returned while queue was full: %v", err)
	default:
	}

	running.Cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sink never ran")
	}
	require.NoError(t, filler.Wait(context.Background()))
}

func TestStartedClosesWhenTaskRuns(t *testing.T) {
	r := newRig(t)

	first := r.c.SurfaceAsync(50 * time.Millisecond)
	second := r.c.SinkAsync(time.Millisecond)
	select {
	case <-first.Started():
	case <-time.After(time.Second):
		t.Fatal("first task never started")
	}
	select {
	case <-second.Started():
		t.Fatal("second task started while first was running")
	default:
	}
	<-second.Started()
	require.False(t, r.c.State().BallastOut)
	require.NoError(t, second.Wait(context.Background()))
}

func TestPinErrorLeavesOutputLow(t *testing.T) {
	r := newRig(t)
	r.ballIn.err = errors.New("gpio busy")

	err := r.c.Sink(context.Background(), time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ballast-in")
	r.requireAllLow(t)
}
