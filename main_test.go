package main

import (
	"testing"

	"github.com/ericogr/squid-float/pkg/config"
)

func TestInitOutputs(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "Console"}}}
	entries, err := initOutputs(cfg)
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries len: %d", len(entries))
	}
	if err := closeOutputs(entries); err != nil {
		t.Fatalf("closeOutputs: %v", err)
	}
}

func TestInitOutputsUnknownType(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "html"}}}
	if _, err := initOutputs(cfg); err == nil {
		t.Fatalf("expected error for unknown output type")
	}
}

func TestRunSimulatedNoProfiles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	cfg.Mission.Profiles = 0
	cfg.Mission.MotorTestMs = 1
	cfg.Mission.SurfaceWaitMs = 1
	if err := run(cfg); err != nil {
		t.Fatalf("run: %v", err)
	}
}
