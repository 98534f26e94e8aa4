package telemetry

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/ericogr/squid-float/pkg/sensor"
)

// Sample is one point of a dive profile.
type Sample struct {
	Elapsed  float64 // seconds since the probe started
	Pressure float64 // kPa absolute
	Depth    float64 // meters of water
}

func NewSample(elapsed time.Duration, kpa float64) Sample {
	return Sample{
		Elapsed:  elapsed.Seconds(),
		Pressure: kpa,
		Depth:    sensor.DepthFromPressure(kpa),
	}
}

// Strings formats time, pressure and depth with two decimals.
func (s Sample) Strings() [3]string {
	return [3]string{format2(s.Elapsed), format2(s.Pressure), format2(s.Depth)}
}

func (s Sample) MarshalJSON() ([]byte, error) {
	f := s.Strings()
	return json.Marshal(struct {
		Time     json.Number `json:"time"`
		Pressure json.Number `json:"pressure"`
		Depth    json.Number `json:"depth"`
	}{json.Number(f[0]), json.Number(f[1]), json.Number(f[2])})
}

func format2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// Profile collects the recordings of one dive, descent and ascent.
type Profile struct {
	Number  int      `json:"number"`
	Samples []Sample `json:"samples"`
}

func (p *Profile) Add(samples ...Sample) {
	p.Samples = append(p.Samples, samples...)
}

// MaxDepth is the deepest sample of the profile, 0 for an empty one.
func (p Profile) MaxDepth() float64 {
	var d float64
	for _, s := range p.Samples {
		if s.Depth > d {
			d = s.Depth
		}
	}
	return d
}
