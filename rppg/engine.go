package rppg

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/pulse.report/internal/monitoring"
)

// RegionSample is one frame's spatially averaged color for a named skin
// region, as produced by whatever upstream selects and masks regions.
type RegionSample struct {
	Region  string
	R, G, B float64
}

// Result is the engine's output for one processed frame.
type Result struct {
	BPM        float64
	Confidence float64
	Quality    float64
	Motion     bool
	State      TrackerState

	// History holds the accepted estimates behind the published BPM,
	// oldest first.
	History []BpmEstimate

	// Candidates are the per-method readings of this window, including
	// methods that failed, for diagnostics.
	Candidates []BpmCandidate

	// RegionQuality maps each buffered region to its quality this pass.
	RegionQuality map[string]float64
}

// Engine runs the full estimation pipeline frame by frame: buffering, pulse
// extraction, quality-weighted region fusion, conditioning, multi-method
// estimation, and temporal tracking. One Engine serves one subject stream.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	buffer      *ColorSignalBuffer
	extractor   *pulseExtractor
	conditioner *signalConditioner
	estimator   *bpmEstimator
	quality     *qualityAssessor
	tracker     *consistencyTracker

	lastPulse []float64
	lastRate  float64
}

// NewEngine validates cfg and assembles the pipeline. Configuration problems
// are fatal here; everything after construction degrades instead of failing.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conditioner, err := newSignalConditioner(cfg)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         cfg,
		buffer:      NewColorSignalBuffer(cfg),
		extractor:   newPulseExtractor(cfg),
		conditioner: conditioner,
		estimator:   newBpmEstimator(cfg),
		quality:     newQualityAssessor(cfg),
		tracker:     newConsistencyTracker(cfg),
	}
	monitoring.Logf("[Engine] session %s ready: %.0fs window, %.0f-%.0f BPM",
		e.tracker.SessionID(), cfg.WindowSeconds, cfg.MinBPM, cfg.MaxBPM)
	return e, nil
}

// Process records one frame's region samples and runs a full estimation
// pass. Regions known to the engine but absent from this frame are recorded
// as gaps. It returns ErrNotReady until the analysis window has filled and
// ErrDegenerateSignal when a full window carries no usable pulse; both clear
// on their own as frames keep arriving.
func (e *Engine) Process(t time.Time, samples []RegionSample) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool, len(samples))
	for _, s := range samples {
		e.buffer.Record(s.Region, t, s.R, s.G, s.B)
		seen[s.Region] = true
	}
	for _, region := range e.buffer.Regions() {
		if !seen[region] {
			e.buffer.RecordMissing(region, t)
		}
	}

	start := time.Now()
	res, err := e.pass(t)
	if budget := time.Duration(float64(time.Second) / e.cfg.FrameRateHint); time.Since(start) > budget {
		monitoring.Logf("[Engine] pass took %.1fms, over the %.1fms frame budget",
			float64(time.Since(start).Microseconds())/1000, float64(budget.Microseconds())/1000)
	}
	return res, err
}

func (e *Engine) pass(t time.Time) (Result, error) {
	regions := e.buffer.Regions()
	if len(regions) == 0 {
		return Result{State: e.tracker.State()}, fmt.Errorf("no regions recorded: %w", ErrNotReady)
	}

	traces := make(map[string][]float64, len(regions))
	weights := make(map[string]float64, len(regions))
	regionQuality := make(map[string]float64, len(regions))
	motion := false
	var fs float64
	var notReady error

	for _, region := range regions {
		w, err := e.buffer.Snapshot(region)
		if err != nil {
			if errors.Is(err, ErrNotReady) {
				notReady = err
				continue
			}
			return Result{State: e.tracker.State()}, err
		}
		if e.quality.DetectMotion(w) {
			motion = true
		}
		trace, err := e.extractor.regionTrace(w)
		if err != nil {
			// A degenerate region carries no vote this pass.
			regionQuality[region] = 0
			continue
		}
		score := e.quality.Score(trace, w.SampleRate)
		traces[region] = trace
		weights[region] = score.Overall
		regionQuality[region] = score.Overall
		fs = w.SampleRate
	}

	if len(traces) == 0 {
		if notReady != nil {
			return Result{State: e.tracker.State()}, notReady
		}
		res := e.degradedResult(t, motion, regionQuality)
		return res, fmt.Errorf("all %d regions degenerate: %w", len(regions), ErrDegenerateSignal)
	}

	fused, err := e.extractor.fuse(traces, weights)
	if err != nil {
		res := e.degradedResult(t, motion, regionQuality)
		return res, err
	}

	band := e.cfg.band()
	if narrowed, ok := e.tracker.adaptiveBand(); ok {
		band = narrowed
	}

	conditioned, err := e.conditioner.Condition(fused, fs, band)
	if err != nil {
		res := e.degradedResult(t, motion, regionQuality)
		return res, err
	}

	e.lastPulse = conditioned
	e.lastRate = fs

	est, candidates := e.estimator.Estimate(conditioned, fs)
	est.At = t

	windowScore := e.quality.Score(fused, fs)
	published := e.tracker.Submit(est, motion)

	return Result{
		BPM:           published.BPM,
		Confidence:    published.Confidence,
		Quality:       windowScore.Overall,
		Motion:        motion,
		State:         e.tracker.State(),
		History:       e.tracker.History(),
		Candidates:    candidates,
		RegionQuality: regionQuality,
	}, nil
}

// degradedResult publishes the tracked BPM with zero confidence for passes
// where the window produced nothing usable.
func (e *Engine) degradedResult(t time.Time, motion bool, regionQuality map[string]float64) Result {
	published := e.tracker.Submit(BpmEstimate{At: t}, motion)
	return Result{
		BPM:           published.BPM,
		Motion:        motion,
		State:         e.tracker.State(),
		History:       e.tracker.History(),
		RegionQuality: regionQuality,
	}
}

// SetExternalMotion forwards a host-detected motion flag to the quality
// stage, overriding the built-in detector while asserted.
func (e *Engine) SetExternalMotion(moving bool) {
	e.quality.SetExternalMotion(moving)
}

// Pulse returns a copy of the most recent conditioned pulse window and its
// sample rate. ok is false before the first complete pass.
func (e *Engine) Pulse() (trace []float64, fs float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.lastPulse) == 0 {
		return nil, 0, false
	}
	out := make([]float64, len(e.lastPulse))
	copy(out, e.lastPulse)
	return out, e.lastRate, true
}

// SessionID identifies the current tracking session.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.SessionID()
}

// Reset drops all buffered signal and tracking state and starts a fresh
// session.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer.Reset()
	e.tracker.Reset()
	e.lastPulse = nil
	e.lastRate = 0
	monitoring.Logf("[Engine] reset, new session %s", e.tracker.SessionID())
}
