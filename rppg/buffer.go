package rppg

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// ColorSignalBuffer accumulates per-region color samples in sliding windows.
// Windows are bounded both by the configured duration and by a hard sample
// capacity so an irregular clock cannot grow them without limit. A single
// mutex covers the record and snapshot paths.
type ColorSignalBuffer struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*deque.Deque[Sample]
	order   []string // regions in first-seen order, for deterministic iteration
	cap     int
}

// NewColorSignalBuffer sizes per-region windows from the configured duration
// and frame-rate hint.
func NewColorSignalBuffer(cfg Config) *ColorSignalBuffer {
	capacity := int(cfg.WindowSeconds*cfg.FrameRateHint + 0.5)
	if capacity < 1 {
		capacity = 1
	}
	return &ColorSignalBuffer{
		cfg:     cfg,
		windows: make(map[string]*deque.Deque[Sample]),
		cap:     capacity,
	}
}

// Record appends one frame's channel means for a region and evicts samples
// that have slid out of the window.
func (b *ColorSignalBuffer) Record(region string, t time.Time, r, g, bl float64) {
	b.record(region, Sample{T: t, R: r, G: g, B: bl})
}

// RecordMissing marks a dropped frame for a region so the gap is carried in
// the window and interpolated over at extraction time.
func (b *ColorSignalBuffer) RecordMissing(region string, t time.Time) {
	b.record(region, missingSample(t))
}

func (b *ColorSignalBuffer) record(region string, s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.windows[region]
	if w == nil {
		w = deque.New[Sample]()
		b.windows[region] = w
		b.order = append(b.order, region)
	}
	w.PushBack(s)

	horizon := s.T.Add(-time.Duration(b.cfg.WindowSeconds * float64(time.Second)))
	for w.Len() > 0 && w.Front().T.Before(horizon) {
		w.PopFront()
	}
	for w.Len() > b.cap {
		w.PopFront()
	}
}

// minSamples is the readiness floor: the configured minimum span, but never
// fewer than two full beat cycles at the slowest trackable rate.
func (b *ColorSignalBuffer) minSamples() int {
	bySpan := b.cfg.MinWindowSeconds * b.cfg.FrameRateHint
	byCycles := 2.0 * 60.0 / b.cfg.MinBPM * b.cfg.FrameRateHint
	n := int(math.Ceil(math.Max(bySpan, byCycles)))
	if n > b.cap {
		n = b.cap
	}
	if n < 2 {
		n = 2
	}
	return n
}

// Snapshot returns a copied view of a region's current window. It returns
// ErrUnknownRegion for a region never recorded and ErrNotReady while the
// window is still filling.
func (b *ColorSignalBuffer) Snapshot(region string) (RegionWindow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.windows[region]
	if w == nil {
		return RegionWindow{}, fmt.Errorf("region %q: %w", region, ErrUnknownRegion)
	}
	if need := b.minSamples(); w.Len() < need {
		return RegionWindow{}, fmt.Errorf("region %q has %d of %d samples: %w", region, w.Len(), need, ErrNotReady)
	}

	samples := make([]Sample, w.Len())
	for i := range samples {
		samples[i] = w.At(i)
	}
	return RegionWindow{
		Region:     region,
		Samples:    samples,
		SampleRate: measuredRate(samples, b.cfg.FrameRateHint),
	}, nil
}

// measuredRate derives the effective sample rate from the snapshot's own
// span, falling back to the configured hint when the span is degenerate.
func measuredRate(samples []Sample, hint float64) float64 {
	if len(samples) < 2 {
		return hint
	}
	span := samples[len(samples)-1].T.Sub(samples[0].T).Seconds()
	if span <= 0 {
		return hint
	}
	return float64(len(samples)-1) / span
}

// Regions lists buffered regions in first-seen order.
func (b *ColorSignalBuffer) Regions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Len reports the current sample count for a region, 0 if never recorded.
func (b *ColorSignalBuffer) Len(region string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w := b.windows[region]; w != nil {
		return w.Len()
	}
	return 0
}

// Reset drops all buffered samples and forgets all regions.
func (b *ColorSignalBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows = make(map[string]*deque.Deque[Sample])
	b.order = nil
}
