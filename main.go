package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ericogr/squid-float/pkg/config"
	"github.com/ericogr/squid-float/pkg/mission"
	"github.com/ericogr/squid-float/pkg/output"
	"github.com/ericogr/squid-float/pkg/output/console"
	"github.com/ericogr/squid-float/pkg/output/mqtt"
	"github.com/ericogr/squid-float/pkg/probe"
	"github.com/golang/glog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	defer glog.Flush()

	if err := run(cfg); err != nil {
		glog.Errorf("squid-float: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(cfg config.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outs, err := initOutputs(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeOutputs(outs)) }()

	p, err := probe.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, p.Close()) }()

	glog.Infof("starting, sensor=%s profiles=%d", cfg.SensorType, cfg.Mission.Profiles)
	m := mission.New(p, cfg.Mission, outs...)

	g, gctx := errgroup.WithContext(ctx)
	missionCtx, missionDone := context.WithCancel(gctx)
	defer missionDone()
	g.Go(func() error {
		defer missionDone()
		profiles, err := m.Run(missionCtx)
		glog.Infof("mission ended with %d profiles", len(profiles))
		return err
	})
	if cfg.StatusIntervalMs > 0 {
		g.Go(func() error { return m.StatusLoop(missionCtx, cfg.StatusInterval()) })
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			glog.Info("interrupted")
			return nil
		}
		return err
	}
	return nil
}

func initOutputs(cfg config.Config) ([]output.Output, error) {
	outs := make([]output.Output, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		var (
			o   output.Output
			err error
		)
		switch strings.ToLower(oc.Type) {
		case "console":
			o = console.NewConsole()
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err = mqtt.NewMQTT(mc)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("output %s: %w", oc.Type, err), closeOutputs(outs))
		}
		outs = append(outs, o)
	}
	return outs, nil
}

func closeOutputs(outs []output.Output) error {
	var err error
	for _, o := range outs {
		err = multierr.Append(err, o.Close())
	}
	return err
}
