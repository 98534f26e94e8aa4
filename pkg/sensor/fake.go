package sensor

import (
	"context"
	"math"
	"math/rand"
	"sync"
)

const (
	fakeMinKPa = 100.0
	fakeMaxKPa = 130.0
)

// FakeSource returns uniformly distributed pressures in [100, 130) kPa for
// running without hardware.
type FakeSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewFakeSource(seed int64) *FakeSource {
	return &FakeSource{rnd: rand.New(rand.NewSource(seed))}
}

func (f *FakeSource) Pressure(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v := fakeMinKPa + f.rnd.Float64()*(fakeMaxKPa-fakeMinKPa)
	if v >= fakeMaxKPa {
		// rounding of the largest Float64 can land on the upper bound
		v = math.Nextafter(fakeMaxKPa, fakeMinKPa)
	}
	return v, nil
}

func (f *FakeSource) Close() error { return nil }
