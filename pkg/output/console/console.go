package console

import (
	"fmt"

	"github.com/ericogr/squid-float/pkg/output"
	"github.com/ericogr/squid-float/pkg/telemetry"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) PublishStatus(s telemetry.Sample) error {
	f := s.Strings()
	fmt.Printf("status time=%s pressure=%s depth=%s\n", f[0], f[1], f[2])
	return nil
}

func (c *ConsoleOutput) PublishProfile(p telemetry.Profile) error {
	fmt.Printf("profile %d samples=%d\n", p.Number, len(p.Samples))
	for _, s := range p.Samples {
		f := s.Strings()
		fmt.Printf("  time=%s pressure=%s depth=%s\n", f[0], f[1], f[2])
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
