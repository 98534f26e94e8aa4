package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// SamplesPerRecording is the length of every recording.
const SamplesPerRecording = 8

// Source supplies absolute pressure in kPa.
type Source interface {
	Pressure(ctx context.Context) (float64, error)
}

// Recorder samples pressure into fixed-length recordings. Elapsed times are
// measured from start.
type Recorder struct {
	source   Source
	start    time.Time
	interval time.Duration
}

// NewRecorder returns a recorder that waits interval between samples. With
// a zero interval the cadence is set by the pressure read latency.
func NewRecorder(source Source, start time.Time, interval time.Duration) *Recorder {
	return &Recorder{source: source, start: start, interval: interval}
}

// Sample takes a single reading.
func (r *Recorder) Sample(ctx context.Context) (Sample, error) {
	p, err := r.source.Pressure(ctx)
	if err != nil {
		return Sample{}, err
	}
	return NewSample(time.Since(r.start), p), nil
}

// Record takes SamplesPerRecording samples. direction is only logged; the
// caller is responsible for starting the matching ballast action.
func (r *Recorder) Record(ctx context.Context, direction string) ([]Sample, error) {
	glog.Infof("Going %s.", direction)
	out := make([]Sample, 0, SamplesPerRecording)
	for i := 0; i < SamplesPerRecording; i++ {
		if i > 0 && r.interval > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.interval):
			}
		}
		s, err := r.Sample(ctx)
		if err != nil {
			return nil, fmt.Errorf("record %s sample %d: %w", direction, i, err)
		}
		glog.V(1).Infof("data packet: %v", s.Strings())
		out = append(out, s)
	}
	return out, nil
}
