// Package signal holds the stateful per-session signal stages: the
// exponential smoother and the hysteresis phase detector that cuts the
// smoothed signal into repetitions.
package signal

// Smoother is an exponential moving average. The zero value is not usable;
// construct one with NewSmoother.
type Smoother struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewSmoother returns a smoother with factor alpha in (0,1].
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Update feeds one raw sample and returns the smoothed value. The first
// sample after construction or Reset is returned unchanged.
func (s *Smoother) Update(raw float64) float64 {
	if !s.seeded {
		s.value = raw
		s.seeded = true
		return raw
	}
	s.value = s.alpha*raw + (1-s.alpha)*s.value
	return s.value
}

// Value returns the current smoothed value; ok is false before the first
// sample.
func (s *Smoother) Value() (v float64, ok bool) {
	return s.value, s.seeded
}

// Reset drops the internal state back to undefined.
func (s *Smoother) Reset() {
	s.value = 0
	s.seeded = false
}
