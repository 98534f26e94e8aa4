package sensor

import (
	"context"
	"fmt"
)

// ADC is the part of the ADS1115 driver the transducer needs.
type ADC interface {
	Read(ctx context.Context, channel, rate int) (int16, error)
	RawToVoltage(raw int16) float64
	Close() error
}

var _ ADC = (*ADS1115)(nil)

// Transducer reads a 0.5-4.5V ratiometric pressure transducer wired to
// channel 0 of the ADC.
type Transducer struct {
	adc     ADC
	channel int
	rate    int
	offset  float64
}

func NewTransducer(adc ADC, rate int, offsetKPa float64) *Transducer {
	return &Transducer{adc: adc, channel: 0, rate: rate, offset: offsetKPa}
}

func (t *Transducer) Pressure(ctx context.Context) (float64, error) {
	raw, err := t.adc.Read(ctx, t.channel, t.rate)
	if err != nil {
		return 0, fmt.Errorf("read pressure: %w", err)
	}
	return VoltageToPressure(t.adc.RawToVoltage(raw)) + t.offset, nil
}

func (t *Transducer) Close() error { return t.adc.Close() }
