package workload

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/bfrggit/qualnet-up-sub002/sim"
	"github.com/sirupsen/logrus"
)

// ArrivalSampler generates inter-departure times for a traffic source.
type ArrivalSampler interface {
	// SampleIAT returns the next gap. Always returns a positive value (>= 1ns).
	SampleIAT(rng *rand.Rand) sim.Time
}

// ConstantSampler emits packets at a fixed interval (CV=0).
type ConstantSampler struct {
	interval sim.Time
}

func (s *ConstantSampler) SampleIAT(*rand.Rand) sim.Time {
	return s.interval
}

// PoissonSampler generates exponentially-distributed gaps (CV=1).
type PoissonSampler struct {
	mean float64 // nanoseconds
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) sim.Time {
	return atLeastOne(rng.ExpFloat64() * s.mean)
}

// GammaSampler generates Gamma-distributed gaps. CV > 1 produces bursts.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // mean·CV²
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) sim.Time {
	return atLeastOne(gammaRand(rng, s.shape, s.scale))
}

func atLeastOne(ns float64) sim.Time {
	if ns < 1 {
		return 1
	}
	return sim.Time(ns)
}

// gammaRand samples from Gamma(shape, scale) using Marsaglia-Tsang's method,
// boosting shape < 1 via Gamma(a) = Gamma(a+1)·U^(1/a).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

// Arrival process names accepted by NewArrivalSampler.
const (
	ArrivalConstant = "constant"
	ArrivalPoisson  = "poisson"
	ArrivalGamma    = "gamma"
)

// IsValidArrival reports whether process names a known arrival process.
func IsValidArrival(process string) bool {
	switch process {
	case "", ArrivalConstant, ArrivalPoisson, ArrivalGamma:
		return true
	}
	return false
}

// NewArrivalSampler creates an ArrivalSampler with the given mean interval.
// cv is only used by the gamma process.
func NewArrivalSampler(process string, interval sim.Time, cv float64) (ArrivalSampler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("arrival interval must be > 0, got %d", interval)
	}
	switch process {
	case "", ArrivalConstant:
		return &ConstantSampler{interval: interval}, nil
	case ArrivalPoisson:
		return &PoissonSampler{mean: float64(interval)}, nil
	case ArrivalGamma:
		if cv <= 0 {
			cv = 1.0
		}
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("Gamma shape %.4f (CV=%.1f) is very small; falling back to Poisson", shape, cv)
			return &PoissonSampler{mean: float64(interval)}, nil
		}
		return &GammaSampler{shape: shape, scale: float64(interval) * cv * cv}, nil
	default:
		return nil, fmt.Errorf("unknown arrival process %q", process)
	}
}
