package capture

import "math"

// Meter computes a display amplitude level in [0,1] from raw PCM samples.
// It keeps a fixed-size window of the most recent samples and reports RMS
// deviation from the int16 midline. It is purely observational and never
// affects recording correctness.
type Meter struct {
	window []float64
	pos    int
	filled int
}

// NewMeter creates a meter with the given sample window size.
func NewMeter(windowSize int) *Meter {
	if windowSize <= 0 {
		windowSize = 1024
	}
	return &Meter{window: make([]float64, windowSize)}
}

// Level pushes samples into the window and returns the current RMS level.
func (m *Meter) Level(samples []int16) float64 {
	for _, s := range samples {
		m.window[m.pos] = float64(s) / 32768.0
		m.pos = (m.pos + 1) % len(m.window)
		if m.filled < len(m.window) {
			m.filled++
		}
	}
	if m.filled == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < m.filled; i++ {
		sum += m.window[i] * m.window[i]
	}

	level := math.Sqrt(sum / float64(m.filled))
	if level > 1 {
		level = 1
	}
	return level
}
