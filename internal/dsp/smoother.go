package dsp

// Smoother is a first-order low-pass filter used to keep noise from
// producing spurious threshold crossings.
type Smoother struct {
	alpha float64
	prev  float64
}

// NewSmoother creates a smoother for the given sample rate and time
// constant tau in seconds. A non-positive tau returns nil, which Filter
// treats as a pass-through.
func NewSmoother(sampleRate int, tau float64) *Smoother {
	if tau <= 0 {
		return nil
	}
	dt := 1.0 / float64(sampleRate)
	return &Smoother{alpha: dt / (tau + dt)}
}

// Filter applies the smoother to a single sample.
func (s *Smoother) Filter(x float64) float64 {
	if s == nil {
		return x
	}
	s.prev += s.alpha * (x - s.prev)
	return s.prev
}

// Reset clears the filter state.
func (s *Smoother) Reset() {
	if s != nil {
		s.prev = 0
	}
}
