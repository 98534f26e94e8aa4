package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/squid-float/pkg/sensor"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	values []float64
	calls  int
	failAt int
	err    error
}

func (s *stubSource) Pressure(ctx context.Context) (float64, error) {
	defer func() { s.calls++ }()
	if s.err != nil && s.calls == s.failAt {
		return 0, s.err
	}
	if len(s.values) == 0 {
		return sensor.AtmosphericKPa, nil
	}
	return s.values[s.calls%len(s.values)], nil
}

func TestRecordReturnsEightSamples(t *testing.T) {
	for _, dir := range []string{"down", "up", "", "sideways with spaces"} {
		r := NewRecorder(sensor.NewFakeSource(7), time.Now(), 0)
		samples, err := r.Record(context.Background(), dir)
		require.NoError(t, err)
		require.Len(t, samples, SamplesPerRecording, "direction %q", dir)
		for i := 1; i < len(samples); i++ {
			require.GreaterOrEqual(t, samples[i].Elapsed, samples[i-1].Elapsed)
		}
	}
}

func TestRecordDepth(t *testing.T) {
	src := &stubSource{values: []float64{101.325, 111.135}}
	r := NewRecorder(src, time.Now(), 0)

	samples, err := r.Record(context.Background(), "down")
	require.NoError(t, err)
	require.Equal(t, SamplesPerRecording, src.calls)
	require.InDelta(t, 0.0, samples[0].Depth, 1e-9)
	require.InDelta(t, 1.0, samples[1].Depth, 1e-9)
	require.Equal(t, "0.00", samples[0].Strings()[2])
	require.Equal(t, "1.00", samples[1].Strings()[2])
}

func TestRecordElapsedFromStart(t *testing.T) {
	r := NewRecorder(&stubSource{}, time.Now().Add(-90*time.Second), 0)
	samples, err := r.Record(context.Background(), "up")
	require.NoError(t, err)
	require.GreaterOrEqual(t, samples[0].Elapsed, 90.0)
	require.Less(t, samples[0].Elapsed, 100.0)
}

func TestRecordInterval(t *testing.T) {
	r := NewRecorder(&stubSource{}, time.Now(), 5*time.Millisecond)
	start := time.Now()
	samples, err := r.Record(context.Background(), "down")
	require.NoError(t, err)
	require.Len(t, samples, SamplesPerRecording)
	require.GreaterOrEqual(t, time.Since(start), 7*5*time.Millisecond)
	require.GreaterOrEqual(t, samples[7].Elapsed-samples[0].Elapsed, 0.035)
}

func TestRecordCanceled(t *testing.T) {
	r := NewRecorder(&stubSource{}, time.Now(), time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Record(ctx, "down")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecordSourceError(t *testing.T) {
	sourceErr := errors.New("bus stuck")
	src := &stubSource{err: sourceErr, failAt: 3}
	r := NewRecorder(src, time.Now(), 0)

	samples, err := r.Record(context.Background(), "up")
	require.ErrorIs(t, err, sourceErr)
	require.Nil(t, samples)
	require.Contains(t, err.Error(), "sample 3")
}

func TestSampleFormatting(t *testing.T) {
	s := NewSample(1234*time.Millisecond, 120.457)
	require.Equal(t, [3]string{"1.23", "120.46", "1.95"}, s.Strings())

	b, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `{"time":1.23,"pressure":120.46,"depth":1.95}`, string(b))
}

func TestProfileMaxDepth(t *testing.T) {
	var p Profile
	require.Zero(t, p.MaxDepth())
	p.Add(NewSample(0, 101.325), NewSample(time.Second, 130.755), NewSample(2*time.Second, 111.135))
	require.InDelta(t, 3.0, p.MaxDepth(), 1e-9)
	require.Len(t, p.Samples, 3)
}
