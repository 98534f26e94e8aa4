package actuator

import (
	"context"
	"sync"
)

// Task is a handle on an action queued to one of the controller workers.
type Task struct {
	name    string
	run     func(ctx context.Context) error
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started chan struct{}
	once    sync.Once
	err     error
}

func newTask(parent context.Context, name string, run func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{name: name, run: run, ctx: ctx, cancel: cancel, done: make(chan struct{}), started: make(chan struct{})}
}

func (t *Task) Name() string { return t.name }

// Done is closed once the action has finished and its pins are low.
func (t *Task) Done() <-chan struct{} { return t.done }

// Started is closed when a worker begins running the action. A task that
// fails before running never closes it; select on Done as well.
func (t *Task) Started() <-chan struct{} { return t.started }

// Cancel stops the action. A queued action never starts; a running one
// drives its output low and returns early.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the action finishes and returns its error, or until ctx
// is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the result of a finished task, nil while it is still pending.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) execute() {
	if err := t.ctx.Err(); err != nil {
		t.finish(err)
		return
	}
	close(t.started)
	t.finish(t.run(t.ctx))
}

func (t *Task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		t.cancel()
		close(t.done)
	})
}
