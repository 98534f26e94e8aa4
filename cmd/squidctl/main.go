package main

import (
	"context"
	"flag"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/ericogr/squid-float/pkg/config"
	"github.com/ericogr/squid-float/pkg/probe"
	"github.com/golang/glog"
)

var evalOnly bool

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, run the command given as arguments and exit.")
}

type command struct {
	name, help string
	run        func(context.Context, []string) (string, error)
}

func (s *session) commands() []command {
	return []command{
		{"pressure", "read pressure and depth", s.pressure},
		{"surface", "surface <seconds> [&]: drive ballast out", s.surface},
		{"sink", "sink <seconds> [&]: drive ballast in", s.sink},
		{"bob", "bob <seconds>: alternate surface and sink in the background", s.bob},
		{"blink", "blink <times> <seconds>: flash the light in the background", s.blink},
		{"light", "toggle the light", s.light},
		{"record", "record [direction]: take a recording", s.record},
		{"state", "show output levels", s.state},
		{"jobs", "list background actions", s.listJobs},
		{"stop", "cancel background actions", s.stop},
	}
}

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	defer glog.Flush()

	p, err := probe.Open(cfg)
	if err != nil {
		glog.Exitf("open probe: %v", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			glog.Errorf("close probe: %v", err)
		}
	}()

	s := newSession(p)
	sh := ishell.New()
	sh.SetPrompt("squid > ")
	for _, c := range s.commands() {
		c := c
		sh.AddCmd(&ishell.Cmd{
			Name: c.name,
			Help: c.help,
			Func: func(ic *ishell.Context) {
				out, err := c.run(context.Background(), ic.Args)
				if err != nil {
					ic.Err(err)
					return
				}
				ic.Println(out)
			},
		})
	}

	if evalOnly {
		if err := sh.Process(flag.Args()...); err != nil {
			glog.Errorf("%s: %v", strings.Join(flag.Args(), " "), err)
		}
		return
	}
	sh.Println("squid-float operator shell, sensor " + cfg.SensorType)
	sh.Run()
	sh.Close()
}
