// Package mission runs the dive profile sequence: an alive signal, a motor
// test, then a number of sink/record/surface profiles with a pause at the
// surface between them.
package mission

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/squid-float/pkg/actuator"
	"github.com/ericogr/squid-float/pkg/config"
	"github.com/ericogr/squid-float/pkg/output"
	"github.com/ericogr/squid-float/pkg/telemetry"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

const (
	aliveBlinks      = 3
	aliveInterval    = 500 * time.Millisecond
	progressBlinks   = 5
	progressInterval = 250 * time.Millisecond
	motorTestPause   = 200 * time.Millisecond
)

// Probe is what a mission needs from the hardware.
type Probe interface {
	Surface(ctx context.Context, d time.Duration) error
	Sink(ctx context.Context, d time.Duration) error
	SurfaceAsync(d time.Duration) *actuator.Task
	SinkAsync(d time.Duration) *actuator.Task
	Bob(d time.Duration) *actuator.Task
	BlinkLight(times int, interval time.Duration) *actuator.Task
	Status(ctx context.Context) (telemetry.Sample, error)
	Recorder(interval time.Duration) *telemetry.Recorder
}

type Mission struct {
	probe    Probe
	recorder *telemetry.Recorder
	outputs  []output.Output
	cfg      config.MissionConfig
}

func New(p Probe, cfg config.MissionConfig, outputs ...output.Output) *Mission {
	return &Mission{
		probe:    p,
		recorder: p.Recorder(cfg.SampleInterval()),
		outputs:  outputs,
		cfg:      cfg,
	}
}

// Run executes the whole sequence and returns the completed profiles. On
// error the profiles finished so far are returned along with it.
func (m *Mission) Run(ctx context.Context) ([]telemetry.Profile, error) {
	m.probe.BlinkLight(aliveBlinks, aliveInterval)

	status, err := m.probe.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial status: %w", err)
	}
	m.publish(func(o output.Output) error { return o.PublishStatus(status) })

	if err := m.motorTest(ctx); err != nil {
		return nil, err
	}
	// give the operator time to connect
	if err := sleep(ctx, m.cfg.SurfaceWait()); err != nil {
		return nil, err
	}

	profiles := make([]telemetry.Profile, 0, m.cfg.Profiles)
	for i := 1; i <= m.cfg.Profiles; i++ {
		glog.Infof("Starting profile %d.", i)
		p, err := m.profile(ctx, i)
		if err != nil {
			return profiles, fmt.Errorf("profile %d: %w", i, err)
		}
		profiles = append(profiles, p)
		m.publish(func(o output.Output) error { return o.PublishProfile(p) })
		glog.Infof("Completed profile %d, max depth %.2fm.", i, p.MaxDepth())

		m.probe.BlinkLight(progressBlinks, progressInterval)
		if err := sleep(ctx, m.cfg.SurfaceWait()); err != nil {
			return profiles, err
		}
	}
	glog.Infof("Completed %d profiles.", len(profiles))
	return profiles, nil
}

// StatusLoop publishes a status reading every interval until ctx is done.
// Read failures are logged and retried on the next tick.
func (m *Mission) StatusLoop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		s, err := m.probe.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			glog.Warningf("status: %v", err)
			continue
		}
		m.publish(func(o output.Output) error { return o.PublishStatus(s) })
	}
}

func (m *Mission) motorTest(ctx context.Context) error {
	if err := m.probe.Sink(ctx, m.cfg.MotorTest()); err != nil {
		return fmt.Errorf("motor test: %w", err)
	}
	if err := sleep(ctx, motorTestPause); err != nil {
		return err
	}
	if err := m.probe.Surface(ctx, m.cfg.MotorTest()); err != nil {
		return fmt.Errorf("motor test: %w", err)
	}
	return nil
}

func (m *Mission) profile(ctx context.Context, n int) (telemetry.Profile, error) {
	p := telemetry.Profile{Number: n}

	if err := m.record(ctx, &p, m.probe.SinkAsync(m.cfg.Sink()), "down"); err != nil {
		return p, err
	}

	st, err := m.probe.Status(ctx)
	if err != nil {
		return p, err
	}
	if st.Depth >= m.cfg.BobDepth {
		glog.Infof("Reached %.2f meters, bobbing for %s.", st.Depth, m.cfg.Bob())
		if err := begin(ctx, m.probe.Bob(m.cfg.Bob())); err != nil {
			return p, fmt.Errorf("bob: %w", err)
		}
	}

	// continue sinking until the bottom
	if err := m.record(ctx, &p, m.probe.SinkAsync(m.cfg.Sink()), "down"); err != nil {
		return p, err
	}

	up := m.probe.SurfaceAsync(m.cfg.Surface())
	if err := m.record(ctx, &p, up, "up"); err != nil {
		return p, err
	}

	// the profile is done once the probe is back up
	if err := up.Wait(ctx); err != nil {
		return p, fmt.Errorf("surface: %w", err)
	}
	return p, nil
}

// record waits for the ballast action t to start and then records while it
// runs.
func (m *Mission) record(ctx context.Context, p *telemetry.Profile, t *actuator.Task, direction string) error {
	if err := begin(ctx, t); err != nil {
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	samples, err := m.recorder.Record(ctx, direction)
	if err != nil {
		return err
	}
	p.Add(samples...)
	// nil while the action is still running
	if err := t.Err(); err != nil {
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	return nil
}

// begin blocks until t is running or has finished, returning the error of a
// finished task.
func begin(ctx context.Context, t *actuator.Task) error {
	select {
	case <-t.Started():
		return t.Err()
	case <-t.Done():
		return t.Err()
	case <-ctx.Done():
		t.Cancel()
		return ctx.Err()
	}
}

// publish fans out to every output. Output failures are logged, they never
// stop the mission.
func (m *Mission) publish(f func(output.Output) error) {
	var g errgroup.Group
	for _, o := range m.outputs {
		o := o
		g.Go(func() error { return f(o) })
	}
	if err := g.Wait(); err != nil {
		glog.Errorf("publish: %v", err)
	}
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
