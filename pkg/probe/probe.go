// Package probe ties the pressure sensor, the actuators and the recorder
// together. A Probe is the single owner of the hardware; everything else
// talks to the hardware through it.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/squid-float/pkg/actuator"
	"github.com/ericogr/squid-float/pkg/config"
	"github.com/ericogr/squid-float/pkg/sensor"
	"github.com/ericogr/squid-float/pkg/telemetry"
	"go.uber.org/multierr"
)

type Probe struct {
	*actuator.Controller
	source   sensor.PressureSource
	start    time.Time
	recorder *telemetry.Recorder
}

// Open builds the pressure source and the actuator controller described by
// cfg.
func Open(cfg config.Config, opts ...actuator.Option) (*Probe, error) {
	src, err := sensor.New(cfg)
	if err != nil {
		return nil, err
	}
	ctrl, err := actuator.Open(cfg, opts...)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("open actuators: %w", err), src.Close())
	}
	return New(ctrl, src, time.Now(), cfg.RecordInterval()), nil
}

// New returns a probe whose recordings measure elapsed time from start.
func New(ctrl *actuator.Controller, src sensor.PressureSource, start time.Time, recordInterval time.Duration) *Probe {
	p := &Probe{Controller: ctrl, source: src, start: start}
	p.recorder = telemetry.NewRecorder(p, start, recordInterval)
	return p
}

// Pressure returns the current absolute pressure in kPa.
func (p *Probe) Pressure(ctx context.Context) (float64, error) {
	return p.source.Pressure(ctx)
}

// Depth returns the current depth in meters.
func (p *Probe) Depth(ctx context.Context) (float64, error) {
	kpa, err := p.Pressure(ctx)
	if err != nil {
		return 0, err
	}
	return sensor.DepthFromPressure(kpa), nil
}

// Status takes a single sample.
func (p *Probe) Status(ctx context.Context) (telemetry.Sample, error) {
	return p.recorder.Sample(ctx)
}

// Record takes a full recording; see telemetry.Recorder.Record.
func (p *Probe) Record(ctx context.Context, direction string) ([]telemetry.Sample, error) {
	return p.recorder.Record(ctx, direction)
}

// Recorder returns a recorder sharing this probe's start time that waits
// interval between samples.
func (p *Probe) Recorder(interval time.Duration) *telemetry.Recorder {
	return telemetry.NewRecorder(p, p.start, interval)
}

// Close releases the actuators first so every output is low before the
// sensor goes away.
func (p *Probe) Close() error {
	return multierr.Combine(p.Controller.Close(), p.source.Close())
}
