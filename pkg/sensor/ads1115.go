package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ericogr/squid-float/pkg/config"
	"github.com/golang/glog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	DefaultAddress = 0x48

	pointerConv   = 0x00
	pointerConfig = 0x01

	configOSSingle    uint16 = 0x8000 // write: start conversion, read: ready
	configMuxSingle   uint16 = 0x4000 // AIN0 vs GND, +channel<<12
	configModeSingle  uint16 = 0x0100
	configCompDisable uint16 = 0x0003

	defaultPollInterval = time.Millisecond
	defaultReadyTimeout = 100 * time.Millisecond
)

var (
	ErrInvalidChannel = errors.New("ads1115: invalid channel")
	ErrInvalidRate    = errors.New("ads1115: invalid rate")
	ErrInvalidGain    = errors.New("ads1115: invalid gain")
	ErrNotResponding  = errors.New("ads1115: device not responding")
)

// PGA settings, index is the gain setting.
var (
	gainBits  = [...]uint16{0x0000, 0x0200, 0x0400, 0x0600, 0x0800, 0x0A00}
	fullScale = [...]float64{6.144, 4.096, 2.048, 1.024, 0.512, 0.256}
)

// Data rate settings, index is the rate setting.
var (
	rateBits = [...]uint16{0x0000, 0x0020, 0x0040, 0x0060, 0x0080, 0x00A0, 0x00C0, 0x00E0}
	RateSPS  = [...]int{8, 16, 32, 64, 128, 250, 475, 860}
)

type ADS1115 struct {
	mu           sync.Mutex
	dev          conn.Conn
	bus          io.Closer
	gain         int
	pollInterval time.Duration
	readyTimeout time.Duration
}

type Option func(*ADS1115)

// WithPollInterval sets the delay between conversion ready checks.
func WithPollInterval(d time.Duration) Option {
	return func(a *ADS1115) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// WithReadyTimeout bounds how long Read waits for a conversion.
func WithReadyTimeout(d time.Duration) Option {
	return func(a *ADS1115) {
		if d > 0 {
			a.readyTimeout = d
		}
	}
}

// NewADS1115 returns a driver talking to dev with a fixed gain setting.
func NewADS1115(dev conn.Conn, gain int, opts ...Option) (*ADS1115, error) {
	if gain < 0 || gain >= len(gainBits) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGain, gain)
	}
	a := &ADS1115{dev: dev, gain: gain, pollInterval: defaultPollInterval, readyTimeout: defaultReadyTimeout}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// OpenADS1115 initializes the host drivers and opens the configured I2C bus.
func OpenADS1115(cfg config.Config) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.I2CAddress), Bus: bus}
	a, err := NewADS1115(dev, cfg.Gain, WithPollInterval(cfg.PollInterval()), WithReadyTimeout(cfg.ReadyTimeout()))
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	a.bus = bus
	glog.Infof("ads1115 on %s gain=%d (±%.3fV)", dev, cfg.Gain, fullScale[cfg.Gain])
	return a, nil
}

func (a *ADS1115) Close() error {
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}

func (a *ADS1115) Gain() int { return a.gain }

// FullScale is the input voltage magnitude of the largest code.
func (a *ADS1115) FullScale() float64 { return fullScale[a.gain] }

// ConfigWord builds the config register value for a single-shot,
// single-ended conversion on channel at the given rate setting.
func (a *ADS1115) ConfigWord(channel, rate int) (uint16, error) {
	if channel < 0 || channel > 3 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if rate < 0 || rate >= len(rateBits) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRate, rate)
	}
	return configOSSingle |
		(configMuxSingle + uint16(channel)<<12) |
		gainBits[a.gain] |
		rateBits[rate] |
		configModeSingle |
		configCompDisable, nil
}

// Read starts a conversion on channel, waits for it to complete and returns
// the signed conversion result. It fails with ErrNotResponding when the
// ready bit is not set within the ready timeout.
func (a *ADS1115) Read(ctx context.Context, channel, rate int) (int16, error) {
	cfg, err := a.ConfigWord(channel, rate)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.writeRegister(pointerConfig, cfg); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	glog.V(2).Infof("ads1115: config 0x%04X written", cfg)

	if err := a.waitReady(ctx); err != nil {
		return 0, err
	}
	v, err := a.readRegister(pointerConv)
	if err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	return DecodeSigned(v), nil
}

func (a *ADS1115) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(a.readyTimeout)
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		v, err := a.readRegister(pointerConfig)
		if err != nil {
			return fmt.Errorf("poll config: %w", err)
		}
		if v&configOSSingle != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: conversion not ready after %s", ErrNotResponding, a.readyTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReadVoltage is Read followed by RawToVoltage.
func (a *ADS1115) ReadVoltage(ctx context.Context, channel, rate int) (float64, error) {
	raw, err := a.Read(ctx, channel, rate)
	if err != nil {
		return 0, err
	}
	return a.RawToVoltage(raw), nil
}

// RawToVoltage scales a conversion result by the full-scale range of the
// driver's gain setting.
func (a *ADS1115) RawToVoltage(raw int16) float64 {
	return float64(raw) * (fullScale[a.gain] / 32768.0)
}

func (a *ADS1115) writeRegister(reg byte, v uint16) error {
	return a.dev.Tx([]byte{reg, byte(v >> 8), byte(v & 0xFF)}, nil)
}

func (a *ADS1115) readRegister(reg byte) (uint16, error) {
	var buf [2]byte
	if err := a.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// DecodeSigned reinterprets a register value as two's complement.
func DecodeSigned(v uint16) int16 {
	if v < 32768 {
		return int16(v)
	}
	return int16(int32(v) - 65536)
}

// EncodeSigned is the inverse of DecodeSigned.
func EncodeSigned(v int16) uint16 {
	return uint16(v)
}
