package output

import "github.com/ericogr/squid-float/pkg/telemetry"

// Output receives what the probe measured. Status is a single current
// reading; a profile is one completed dive.
type Output interface {
	PublishStatus(telemetry.Sample) error
	PublishProfile(telemetry.Profile) error
	Close() error
}
