package actuator

import (
	"fmt"

	"github.com/ericogr/squid-float/pkg/config"
	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/host/v3"
)

// Open resolves the configured pins through periph.io and returns a running
// controller. In simulation mode the outputs are in-memory pins so the
// probe can run on a machine without GPIO.
func Open(cfg config.Config, opts ...Option) (*Controller, error) {
	names := []string{cfg.Pins.Light, cfg.Pins.BallastOut, cfg.Pins.BallastIn}
	pins := make([]gpio.PinOut, len(names))
	if cfg.Simulated() {
		for i, n := range names {
			pins[i] = &gpiotest.Pin{N: n}
		}
		glog.Infof("actuator: simulated pins %v", names)
		return New(pins[0], pins[1], pins[2], opts...)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	for i, n := range names {
		p := gpioreg.ByName(n)
		if p == nil {
			return nil, fmt.Errorf("%s: no gpio pin named %q", output(i), n)
		}
		pins[i] = p
	}
	glog.Infof("actuator: light=%s ballast-out=%s ballast-in=%s", pins[0], pins[1], pins[2])
	return New(pins[0], pins[1], pins[2], opts...)
}
