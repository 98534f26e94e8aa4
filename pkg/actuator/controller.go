package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
)

var (
	ErrClosed    = errors.New("actuator: controller closed")
	ErrQueueFull = errors.New("actuator: queue full")
)

const (
	defaultQueueSize = 8
	defaultBobStep   = time.Second
)

type output int

const (
	outLight output = iota
	outBallastOut
	outBallastIn
)

func (o output) String() string {
	switch o {
	case outLight:
		return "light"
	case outBallastOut:
		return "ballast-out"
	case outBallastIn:
		return "ballast-in"
	}
	return fmt.Sprintf("output(%d)", int(o))
}

// State is a snapshot of the three output levels.
type State struct {
	Light      bool `json:"light"`
	BallastOut bool `json:"ballast_out"`
	BallastIn  bool `json:"ballast_in"`
}

// Controller drives the light and the two ballast syringe outputs. Ballast
// actions run one at a time on a dedicated worker, so surfacing and sinking
// never overlap; light actions run on their own worker.
type Controller struct {
	pins [3]gpio.PinOut

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ballastQ chan *Task
	lightQ   chan *Task
	bobStep  time.Duration

	// qmu is held for reading while a task is being queued and for writing
	// by Close, so no task is queued after the workers have been drained.
	qmu sync.RWMutex

	mu     sync.Mutex
	state  State
	closed bool
}

type Option func(*Controller)

// WithQueueSize sets how many actions each worker accepts before
// ErrQueueFull.
func WithQueueSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.ballastQ = make(chan *Task, n)
			c.lightQ = make(chan *Task, n)
		}
	}
}

// WithBobStep sets the duration of each half of a bob cycle.
func WithBobStep(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.bobStep = d
		}
	}
}

// New drives every output low and starts the workers.
func New(light, ballastOut, ballastIn gpio.PinOut, opts ...Option) (*Controller, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		pins:     [3]gpio.PinOut{light, ballastOut, ballastIn},
		ctx:      ctx,
		cancel:   cancel,
		ballastQ: make(chan *Task, defaultQueueSize),
		lightQ:   make(chan *Task, defaultQueueSize),
		bobStep:  defaultBobStep,
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.allLow(); err != nil {
		cancel()
		return nil, fmt.Errorf("init outputs: %w", err)
	}
	c.wg.Add(2)
	go c.worker(c.ballastQ)
	go c.worker(c.lightQ)
	return c, nil
}

func (c *Controller) worker(q <-chan *Task) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case t := <-q:
			if c.ctx.Err() != nil {
				t.finish(ErrClosed)
				continue
			}
			glog.V(1).Infof("actuator: start %s", t.name)
			t.execute()
			if err := t.Err(); err != nil {
				glog.V(1).Infof("actuator: %s ended: %v", t.name, err)
			}
		}
	}
}

// submit queues an action without blocking; a full queue fails the task
// with ErrQueueFull.
func (c *Controller) submit(q chan *Task, name string, run func(ctx context.Context) error) *Task {
	t := newTask(c.ctx, name, run)
	c.qmu.RLock()
	defer c.qmu.RUnlock()
	if c.ctx.Err() != nil {
		t.finish(ErrClosed)
		return t
	}
	select {
	case q <- t:
	default:
		t.finish(fmt.Errorf("%w: %s", ErrQueueFull, name))
	}
	return t
}

// submitWait queues an action, waiting for a free queue slot until ctx is
// done.
func (c *Controller) submitWait(ctx context.Context, q chan *Task, name string, run func(ctx context.Context) error) *Task {
	t := newTask(c.ctx, name, run)
	c.qmu.RLock()
	defer c.qmu.RUnlock()
	if c.ctx.Err() != nil {
		t.finish(ErrClosed)
		return t
	}
	select {
	case q <- t:
	case <-ctx.Done():
		t.finish(ctx.Err())
	case <-c.ctx.Done():
		t.finish(ErrClosed)
	}
	return t
}

// Surface drives the ballast-out output high for d, expelling water. It
// blocks until the action is over, waiting behind queued ballast actions
// rather than failing with ErrQueueFull; cancelling ctx ends it early.
func (c *Controller) Surface(ctx context.Context, d time.Duration) error {
	name, run := c.surface(d)
	return c.await(ctx, c.submitWait(ctx, c.ballastQ, name, run))
}

// Sink drives the ballast-in output high for d, taking on water. It blocks
// like Surface.
func (c *Controller) Sink(ctx context.Context, d time.Duration) error {
	name, run := c.sink(d)
	return c.await(ctx, c.submitWait(ctx, c.ballastQ, name, run))
}

// SurfaceAsync queues a surface action and returns at once. It fails with
// ErrQueueFull instead of waiting for a queue slot.
func (c *Controller) SurfaceAsync(d time.Duration) *Task {
	name, run := c.surface(d)
	return c.submit(c.ballastQ, name, run)
}

// SinkAsync is the non-blocking form of Sink.
func (c *Controller) SinkAsync(d time.Duration) *Task {
	name, run := c.sink(d)
	return c.submit(c.ballastQ, name, run)
}

func (c *Controller) surface(d time.Duration) (string, func(context.Context) error) {
	return fmt.Sprintf("surface %s", d), func(ctx context.Context) error {
		return c.pulse(ctx, outBallastOut, d)
	}
}

func (c *Controller) sink(d time.Duration) (string, func(context.Context) error) {
	return fmt.Sprintf("sink %s", d), func(ctx context.Context) error {
		return c.pulse(ctx, outBallastIn, d)
	}
}

// Bob alternates surfacing and sinking until d has elapsed.
func (c *Controller) Bob(d time.Duration) *Task {
	return c.submit(c.ballastQ, fmt.Sprintf("bob %s", d), func(ctx context.Context) error {
		end := time.Now().Add(d)
		for time.Now().Before(end) {
			if err := c.pulse(ctx, outBallastOut, c.bobStep); err != nil {
				return err
			}
			if err := c.pulse(ctx, outBallastIn, c.bobStep); err != nil {
				return err
			}
		}
		return nil
	})
}

// BlinkLight flashes the light times times, interval on and interval off.
func (c *Controller) BlinkLight(times int, interval time.Duration) *Task {
	return c.submit(c.lightQ, fmt.Sprintf("blink %dx%s", times, interval), func(ctx context.Context) error {
		for i := 0; i < times; i++ {
			if err := c.pulse(ctx, outLight, interval); err != nil {
				return err
			}
			if err := sleep(ctx, interval); err != nil {
				return err
			}
		}
		return nil
	})
}

// ToggleLight inverts the light output.
func (c *Controller) ToggleLight(ctx context.Context) error {
	return c.await(ctx, c.submitWait(ctx, c.lightQ, "toggle light", func(context.Context) error {
		c.mu.Lock()
		on := c.state.Light
		c.mu.Unlock()
		return c.set(outLight, !on)
	}))
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops the workers, fails queued actions with ErrClosed and drives
// every output low.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	// wait out submitters that were already queuing
	c.qmu.Lock()
	defer c.qmu.Unlock()
	c.wg.Wait()
	for _, q := range []chan *Task{c.ballastQ, c.lightQ} {
	drain:
		for {
			select {
			case t := <-q:
				t.finish(ErrClosed)
			default:
				break drain
			}
		}
	}
	return c.allLow()
}

// await waits for t; when ctx ends first the task is cancelled and its
// outputs are low by the time await returns.
func (c *Controller) await(ctx context.Context, t *Task) error {
	if err := t.Wait(ctx); err != nil {
		t.Cancel()
		<-t.Done()
		return err
	}
	return nil
}

// pulse drives o high for d. The opposite ballast output is driven low
// first; o is always low again on return.
func (c *Controller) pulse(ctx context.Context, o output, d time.Duration) error {
	switch o {
	case outBallastOut:
		if err := c.set(outBallastIn, false); err != nil {
			return err
		}
	case outBallastIn:
		if err := c.set(outBallastOut, false); err != nil {
			return err
		}
	}
	if err := c.set(o, true); err != nil {
		return multierr.Append(err, c.set(o, false))
	}
	err := sleep(ctx, d)
	return multierr.Append(err, c.set(o, false))
}

func (c *Controller) set(o output, on bool) error {
	l := gpio.Low
	if on {
		l = gpio.High
	}
	if err := c.pins[o].Out(l); err != nil {
		return fmt.Errorf("%s %s: %w", o, c.pins[o], err)
	}
	c.mu.Lock()
	switch o {
	case outLight:
		c.state.Light = on
	case outBallastOut:
		c.state.BallastOut = on
	case outBallastIn:
		c.state.BallastIn = on
	}
	c.mu.Unlock()
	glog.V(2).Infof("actuator: %s -> %s", o, l)
	return nil
}

func (c *Controller) allLow() error {
	var err error
	for o := range c.pins {
		err = multierr.Append(err, c.set(output(o), false))
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
