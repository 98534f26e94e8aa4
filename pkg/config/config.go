package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"
)

type MQTTConfig struct {
	Server         string `json:"server"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	ClientID       string `json:"client_id"`
	Topic          string `json:"topic"`
	DiscoveryTopic string `json:"discovery_topic,omitempty"`
	DiscoveryName  string `json:"discovery_name,omitempty"`
}

type OutputConfig struct {
	Type string      `json:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty"`
}

// PinsConfig names the GPIO lines as known to periph.io's gpioreg
// (e.g. "GPIO25").
type PinsConfig struct {
	Light      string `json:"light"`
	BallastOut string `json:"ballast_out"`
	BallastIn  string `json:"ballast_in"`
}

// MissionConfig holds the timing of the dive profile sequence.
type MissionConfig struct {
	Profiles      int     `json:"profiles"`
	SinkMs        int     `json:"sink_ms"`
	SurfaceMs     int     `json:"surface_ms"`
	SurfaceWaitMs int     `json:"surface_wait_ms"`
	MotorTestMs   int     `json:"motor_test_ms"`
	BobMs         int     `json:"bob_ms"`
	BobDepth      float64 `json:"bob_depth"`
	// SampleIntervalMs is the delay between samples recorded while the
	// ballast moves. Interactive recordings use Config.RecordIntervalMs.
	SampleIntervalMs int `json:"sample_interval_ms"`
}

type Config struct {
	I2CBus            string         `json:"i2c_bus"`
	I2CAddress        int            `json:"i2c_address"`
	Gain              int            `json:"gain"`
	Rate              int            `json:"rate"`
	PollIntervalMs    int            `json:"poll_interval_ms"`
	ReadyTimeoutMs    int            `json:"ready_timeout_ms"`
	CalibrationOffset float64        `json:"calibration_offset"`
	SensorType        string         `json:"sensor_type"`
	Pins              PinsConfig     `json:"pins"`
	RecordIntervalMs  int            `json:"record_interval_ms"`
	StatusIntervalMs  int            `json:"status_interval_ms"`
	Outputs           []OutputConfig `json:"outputs"`
	Mission           MissionConfig  `json:"mission"`
}

func DefaultConfig() Config {
	return Config{
		I2CBus:            "1",
		I2CAddress:        0x48,
		Gain:              1,
		Rate:              4,
		PollIntervalMs:    1,
		ReadyTimeoutMs:    100,
		CalibrationOffset: 0.0,
		SensorType:        SensorReal,
		Pins: PinsConfig{
			Light:      "GPIO13",
			BallastOut: "GPIO25",
			BallastIn:  "GPIO5",
		},
		RecordIntervalMs: 0,
		Outputs:          []OutputConfig{{Type: "console"}},
		Mission: MissionConfig{
			Profiles:      3,
			SinkMs:        6000,
			SurfaceMs:     6000,
			SurfaceWaitMs: 45000,
			MotorTestMs:   500,
			BobMs:         45000,
			BobDepth:      2.5,

			SampleIntervalMs: 5000,
		},
	}
}

// Simulated reports whether pressure comes from the fake source instead of
// the ADC.
func (c Config) Simulated() bool {
	return strings.EqualFold(c.SensorType, SensorSimulation)
}

func (c Config) PollInterval() time.Duration { return ms(c.PollIntervalMs) }
func (c Config) ReadyTimeout() time.Duration { return ms(c.ReadyTimeoutMs) }
func (c Config) RecordInterval() time.Duration {
	return ms(c.RecordIntervalMs)
}
func (c Config) StatusInterval() time.Duration {
	return ms(c.StatusIntervalMs)
}

func (m MissionConfig) Sink() time.Duration        { return ms(m.SinkMs) }
func (m MissionConfig) Surface() time.Duration     { return ms(m.SurfaceMs) }
func (m MissionConfig) SurfaceWait() time.Duration { return ms(m.SurfaceWaitMs) }
func (m MissionConfig) MotorTest() time.Duration   { return ms(m.MotorTestMs) }
func (m MissionConfig) Bob() time.Duration         { return ms(m.BobMs) }
func (m MissionConfig) SampleInterval() time.Duration {
	return ms(m.SampleIntervalMs)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Validate checks ranges that the ADC and mission code rely on.
func (c Config) Validate() error {
	if c.Gain < 0 || c.Gain > 5 {
		return fmt.Errorf("gain %d out of range [0,5]", c.Gain)
	}
	if c.Rate < 0 || c.Rate > 7 {
		return fmt.Errorf("rate %d out of range [0,7]", c.Rate)
	}
	if c.I2CAddress < 0 || c.I2CAddress > 0x7F {
		return fmt.Errorf("i2c address 0x%X is not a 7-bit address", c.I2CAddress)
	}
	switch strings.ToLower(c.SensorType) {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	if c.PollIntervalMs <= 0 {
		return errors.New("poll-interval-ms must be > 0")
	}
	if c.ReadyTimeoutMs <= 0 {
		return errors.New("ready-timeout-ms must be > 0")
	}
	if c.RecordIntervalMs < 0 {
		return errors.New("record-interval-ms must be >= 0")
	}
	if c.StatusIntervalMs < 0 {
		return errors.New("status-interval-ms must be >= 0")
	}
	if c.Mission.Profiles < 0 {
		return errors.New("profiles must be >= 0")
	}
	if c.Mission.SampleIntervalMs < 0 {
		return errors.New("sample-interval-ms must be >= 0")
	}
	return nil
}

// LoadFromFlags loads configuration from a JSON file (optional) and the
// command line flags of the process.
func LoadFromFlags() (Config, error) {
	return Load(flag.CommandLine, os.Args[1:])
}

// Load registers the configuration flags on fs, parses args and applies them
// on top of the defaults and the JSON file given by -config. Flags override
// values present in the JSON file.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	cfgPath := fs.String("config", "", "Path to JSON config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagGain := fs.Int("gain", -1, "ADS1115 gain index 0..5 (6.144V..0.256V full scale)")
	flagRate := fs.Int("rate", -1, "ADS1115 data rate index 0..7 (8..860 SPS)")
	flagPollInterval := fs.Int("poll-interval-ms", -1, "Delay between conversion ready polls in ms")
	flagReadyTimeout := fs.Int("ready-timeout-ms", -1, "Conversion ready timeout in ms")
	flagCalOffset := fs.Float64("calibration-offset", math.NaN(), "Pressure calibration offset (kPa)")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagDebug := fs.Bool("debug", false, "Use simulated pressure readings (same as -sensor-type=simulation)")
	flagPins := fs.String("pins", "", "GPIO pin names e.g. light=GPIO13,out=GPIO25,in=GPIO5")
	flagRecordInterval := fs.Int("record-interval-ms", -1, "Delay between recorded samples in ms")
	flagStatusInterval := fs.Int("status-interval-ms", -1, "Publish a status reading every N ms while the mission runs (0 disables)")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT topic base")
	flagProfiles := fs.Int("profiles", -1, "Number of dive profiles")
	flagSurfaceWait := fs.Int("surface-wait-ms", -1, "Time spent at the surface between profiles in ms")
	flagSampleInterval := fs.Int("sample-interval-ms", -1, "Delay between mission samples in ms")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagI2CBus != "" {
		cfg.I2CBus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2CAddress = v
	}
	if *flagGain != -1 {
		cfg.Gain = *flagGain
	}
	if *flagRate != -1 {
		cfg.Rate = *flagRate
	}
	if *flagPollInterval != -1 {
		cfg.PollIntervalMs = *flagPollInterval
	}
	if *flagReadyTimeout != -1 {
		cfg.ReadyTimeoutMs = *flagReadyTimeout
	}
	if !math.IsNaN(*flagCalOffset) {
		cfg.CalibrationOffset = *flagCalOffset
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagDebug {
		cfg.SensorType = SensorSimulation
	}
	if *flagPins != "" {
		pins, err := parseKeyStringMap(*flagPins)
		if err != nil {
			return cfg, fmt.Errorf("pins: %w", err)
		}
		for k, v := range pins {
			switch strings.ToLower(k) {
			case "light":
				cfg.Pins.Light = v
			case "out", "ballast_out":
				cfg.Pins.BallastOut = v
			case "in", "ballast_in":
				cfg.Pins.BallastIn = v
			default:
				return cfg, fmt.Errorf("pins: unknown pin %q", k)
			}
		}
	}
	if *flagRecordInterval != -1 {
		cfg.RecordIntervalMs = *flagRecordInterval
	}
	if *flagStatusInterval != -1 {
		cfg.StatusIntervalMs = *flagStatusInterval
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	// map mqtt flags into every mqtt output (create one if missing)
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.Topic = *flagTopic
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "mqtt" {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{}}
			apply(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if *flagProfiles != -1 {
		cfg.Mission.Profiles = *flagProfiles
	}
	if *flagSurfaceWait != -1 {
		cfg.Mission.SurfaceWaitMs = *flagSurfaceWait
	}
	if *flagSampleInterval != -1 {
		cfg.Mission.SampleIntervalMs = *flagSampleInterval
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseKeyStringMap(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry %q, want key=value", p)
		}
		k, v := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if k == "" || v == "" {
			return nil, fmt.Errorf("invalid entry %q, want key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
