package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericogr/squid-float/pkg/actuator"
	"github.com/ericogr/squid-float/pkg/probe"
)

var errUsage = errors.New("usage")

// session holds the probe and the background actions started from the
// shell with a trailing "&".
type session struct {
	probe *probe.Probe

	mu   sync.Mutex
	jobs []*actuator.Task
}

func newSession(p *probe.Probe) *session { return &session{probe: p} }

func (s *session) pressure(ctx context.Context, _ []string) (string, error) {
	st, err := s.probe.Status(ctx)
	if err != nil {
		return "", err
	}
	f := st.Strings()
	return fmt.Sprintf("pressure=%s kPa depth=%s m", f[1], f[2]), nil
}

func (s *session) surface(ctx context.Context, args []string) (string, error) {
	return s.ballast(ctx, args, s.probe.Surface, s.probe.SurfaceAsync)
}

func (s *session) sink(ctx context.Context, args []string) (string, error) {
	return s.ballast(ctx, args, s.probe.Sink, s.probe.SinkAsync)
}

func (s *session) ballast(ctx context.Context, args []string,
	blocking func(context.Context, time.Duration) error,
	async func(time.Duration) *actuator.Task,
) (string, error) {
	args, bg := background(args)
	if len(args) != 1 {
		return "", fmt.Errorf("%w: <seconds> [&]", errUsage)
	}
	d, err := parseSeconds(args[0])
	if err != nil {
		return "", err
	}
	if bg {
		return s.track(async(d)), nil
	}
	if err := blocking(ctx, d); err != nil {
		return "", err
	}
	return "done", nil
}

func (s *session) bob(_ context.Context, args []string) (string, error) {
	args, _ = background(args)
	if len(args) != 1 {
		return "", fmt.Errorf("%w: <seconds>", errUsage)
	}
	d, err := parseSeconds(args[0])
	if err != nil {
		return "", err
	}
	return s.track(s.probe.Bob(d)), nil
}

func (s *session) blink(_ context.Context, args []string) (string, error) {
	args, _ = background(args)
	if len(args) != 2 {
		return "", fmt.Errorf("%w: <times> <seconds>", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid times %q", args[0])
	}
	d, err := parseSeconds(args[1])
	if err != nil {
		return "", err
	}
	return s.track(s.probe.BlinkLight(n, d)), nil
}

func (s *session) light(ctx context.Context, _ []string) (string, error) {
	if err := s.probe.ToggleLight(ctx); err != nil {
		return "", err
	}
	return onOff(s.probe.State().Light), nil
}

func (s *session) record(ctx context.Context, args []string) (string, error) {
	dir := "down"
	if len(args) > 0 {
		dir = strings.Join(args, " ")
	}
	samples, err := s.probe.Record(ctx, dir)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%8s %8s %6s", "time", "kPa", "m")
	for _, smp := range samples {
		f := smp.Strings()
		fmt.Fprintf(&b, "\n%8s %8s %6s", f[0], f[1], f[2])
	}
	return b.String(), nil
}

func (s *session) state(context.Context, []string) (string, error) {
	st := s.probe.State()
	return fmt.Sprintf("light=%s ballast-out=%s ballast-in=%s",
		onOff(st.Light), onOff(st.BallastOut), onOff(st.BallastIn)), nil
}

// jobs lists background actions, dropping the finished ones after
// reporting them once.
func (s *session) listJobs(context.Context, []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return "no jobs", nil
	}
	lines := make([]string, 0, len(s.jobs))
	running := s.jobs[:0]
	for i, t := range s.jobs {
		status := "running"
		select {
		case <-t.Done():
			status = "done"
			if err := t.Err(); err != nil {
				status = err.Error()
			}
		default:
			running = append(running, t)
		}
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, t.Name(), status))
	}
	s.jobs = running
	return strings.Join(lines, "\n"), nil
}

// stop cancels every background action.
func (s *session) stop(context.Context, []string) (string, error) {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = nil
	s.mu.Unlock()
	for _, t := range jobs {
		t.Cancel()
	}
	for _, t := range jobs {
		<-t.Done()
	}
	return fmt.Sprintf("stopped %d jobs", len(jobs)), nil
}

func (s *session) track(t *actuator.Task) string {
	select {
	case <-t.Done():
		if err := t.Err(); err != nil {
			return fmt.Sprintf("%s: %v", t.Name(), err)
		}
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, t)
	return fmt.Sprintf("[%d] %s", len(s.jobs), t.Name())
}

func background(args []string) ([]string, bool) {
	if n := len(args); n > 0 && args[n-1] == "&" {
		return args[:n-1], true
	}
	return args, false
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid seconds %q", s)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
