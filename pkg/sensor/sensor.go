package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/ericogr/squid-float/pkg/config"
)

// PressureSource supplies absolute pressure readings in kPa.
type PressureSource interface {
	Pressure(ctx context.Context) (float64, error)
	Close() error
}

// New returns the pressure source selected by the configuration: the
// simulated source when cfg.Simulated() is set, the ADS1115 transducer
// otherwise.
func New(cfg config.Config) (PressureSource, error) {
	if cfg.Simulated() {
		return NewFakeSource(time.Now().UnixNano()), nil
	}
	adc, err := OpenADS1115(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ads1115: %w", err)
	}
	return NewTransducer(adc, cfg.Rate, cfg.CalibrationOffset), nil
}
