package rppg

import (
	"math"
	"time"
)

// Sample is one frame's spatially averaged color intensities for a skin
// region, stamped with the frame's capture time.
type Sample struct {
	T       time.Time
	R, G, B float64
}

// missingSample marks a dropped frame. All channels carry NaN and are
// interpolated over at extraction time.
func missingSample(t time.Time) Sample {
	nan := math.NaN()
	return Sample{T: t, R: nan, G: nan, B: nan}
}

// Missing reports whether the sample marks a dropped frame rather than a
// measurement.
func (s Sample) Missing() bool {
	return math.IsNaN(s.R) || math.IsNaN(s.G) || math.IsNaN(s.B)
}

// intensity is the frame's combined brightness, used for motion detection.
func (s Sample) intensity() float64 {
	return (s.R + s.G + s.B) / 3.0
}

// RegionWindow is an immutable snapshot of one region's buffered samples in
// arrival order. Records made after the snapshot do not affect it.
type RegionWindow struct {
	Region     string
	Samples    []Sample
	SampleRate float64 // measured from the snapshot's own timestamps
}

// Channels splits the window into per-channel slices. Missing samples carry
// NaN in every channel.
func (w RegionWindow) Channels() (r, g, b []float64) {
	r = make([]float64, len(w.Samples))
	g = make([]float64, len(w.Samples))
	b = make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		r[i], g[i], b[i] = s.R, s.G, s.B
	}
	return r, g, b
}

// Duration is the time spanned by the snapshot.
func (w RegionWindow) Duration() time.Duration {
	if len(w.Samples) < 2 {
		return 0
	}
	return w.Samples[len(w.Samples)-1].T.Sub(w.Samples[0].T)
}
