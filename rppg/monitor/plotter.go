// Package monitor renders offline diagnostic plots for an estimation
// session: pulse waveform, in-band spectrum, BPM trend, and quality trends.
// It samples a running Engine once per processed frame and writes PNG files
// after the run.
package monitor

import (
	"fmt"
	"math/cmplx"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pulse.report/internal/units"
	"github.com/banshee-data/pulse.report/rppg"
)

// SessionPlotter records engine output over time for visualization. It
// captures one PassSample per call to Sample(), accumulating time series
// that can be plotted after a run.
type SessionPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	sessionID string

	// BPM range for the spectrum plot's x-axis.
	minBPM float64
	maxBPM float64

	passes []PassSample

	// lastPulse holds the most recent conditioned window, plotted as the
	// waveform and spectrum.
	lastPulse []float64
	lastRate  float64

	startTime time.Time
	frameIdx  int
}

// PassSample represents one engine pass.
type PassSample struct {
	FrameIdx  int
	Timestamp time.Time

	BPM        float64
	Confidence float64
	Quality    float64
	Motion     bool
	State      rppg.TrackerState

	// Candidates maps method name to its BPM reading for this pass;
	// methods that produced nothing are absent.
	Candidates map[string]float64

	// RegionQuality maps region name to its quality this pass.
	RegionQuality map[string]float64
}

// NewSessionPlotter creates a plotter for the given session with the
// spectrum x-axis spanning minBPM to maxBPM.
func NewSessionPlotter(sessionID string, minBPM, maxBPM float64) *SessionPlotter {
	return &SessionPlotter{
		sessionID: sessionID,
		minBPM:    minBPM,
		maxBPM:    maxBPM,
	}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/session-abc/20260812_104500")
func (sp *SessionPlotter) Start(outputDir string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	sp.outputDir = outputDir
	sp.enabled = true
	sp.startTime = time.Time{}
	sp.frameIdx = 0
	sp.passes = nil
	sp.lastPulse = nil
	sp.lastRate = 0
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (sp *SessionPlotter) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (sp *SessionPlotter) IsEnabled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.enabled
}

// Sample captures one pass of engine output. Call this once per processed
// frame with the Result that Process returned; e may be nil when only the
// trend series are wanted.
func (sp *SessionPlotter) Sample(e *rppg.Engine, res rppg.Result) {
	// Read the pulse window before taking the plotter lock; the engine has
	// its own.
	var trace []float64
	var rate float64
	var havePulse bool
	if e != nil {
		trace, rate, havePulse = e.Pulse()
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.enabled {
		return
	}

	now := time.Now()
	if sp.startTime.IsZero() {
		sp.startTime = now
	}
	sp.frameIdx++

	pass := PassSample{
		FrameIdx:   sp.frameIdx,
		Timestamp:  now,
		BPM:        res.BPM,
		Confidence: res.Confidence,
		Quality:    res.Quality,
		Motion:     res.Motion,
		State:      res.State,
	}
	if len(res.Candidates) > 0 {
		pass.Candidates = make(map[string]float64, len(res.Candidates))
		for _, c := range res.Candidates {
			if c.BPM > 0 {
				pass.Candidates[string(c.Method)] = c.BPM
			}
		}
	}
	if len(res.RegionQuality) > 0 {
		pass.RegionQuality = make(map[string]float64, len(res.RegionQuality))
		for region, q := range res.RegionQuality {
			pass.RegionQuality[region] = q
		}
	}
	sp.passes = append(sp.passes, pass)

	if havePulse {
		sp.lastPulse = trace
		sp.lastRate = rate
	}
}

// GeneratePlots creates PNG files for the session: BPM trend, confidence
// and quality trend, per-region quality, and (when a pulse window was
// captured) waveform and spectrum. Returns the number of plots generated.
func (sp *SessionPlotter) GeneratePlots() (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(sp.passes) == 0 {
		return 0, nil
	}

	count := 0
	if err := sp.bpmTrendPlot(); err != nil {
		return count, fmt.Errorf("bpm trend: %w", err)
	}
	count++
	if err := sp.qualityTrendPlot(); err != nil {
		return count, fmt.Errorf("quality trend: %w", err)
	}
	count++

	if sp.hasRegionData() {
		if err := sp.regionQualityPlot(); err != nil {
			return count, fmt.Errorf("region quality: %w", err)
		}
		count++
	}
	if len(sp.lastPulse) > 0 && sp.lastRate > 0 {
		if err := sp.waveformPlot(); err != nil {
			return count, fmt.Errorf("waveform: %w", err)
		}
		count++
		if err := sp.spectrumPlot(); err != nil {
			return count, fmt.Errorf("spectrum: %w", err)
		}
		count++
	}
	return count, nil
}

// bpmTrendPlot draws the published BPM over frames, with one line per
// estimation method behind it.
func (sp *SessionPlotter) bpmTrendPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s - BPM Trend", sp.sessionID)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "BPM"

	published := make(plotter.XYs, 0, len(sp.passes))
	byMethod := make(map[string]plotter.XYs)
	for _, pass := range sp.passes {
		if pass.BPM > 0 {
			published = append(published, plotter.XY{X: float64(pass.FrameIdx), Y: pass.BPM})
		}
		for method, bpm := range pass.Candidates {
			byMethod[method] = append(byMethod[method], plotter.XY{X: float64(pass.FrameIdx), Y: bpm})
		}
	}

	var methods []string
	for method := range byMethod {
		methods = append(methods, method)
	}
	sort.Strings(methods)

	for i, method := range methods {
		line, err := plotter.NewLine(byMethod[method])
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i + 1)
		line.Width = vg.Points(1)
		line.Dashes = plotutil.Dashes(1)
		p.Add(line)
		p.Legend.Add(method, line)
	}
	if len(published) > 0 {
		line, err := plotter.NewLine(published)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(0)
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("published", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	out := filepath.Join(sp.outputDir, "bpm_trend.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("save bpm trend plot: %w", err)
	}
	return nil
}

// qualityTrendPlot draws confidence and window quality over frames.
func (sp *SessionPlotter) qualityTrendPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s - Confidence and Quality", sp.sessionID)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Score"
	p.Y.Min = 0
	p.Y.Max = 1

	confPts := make(plotter.XYs, 0, len(sp.passes))
	qualPts := make(plotter.XYs, 0, len(sp.passes))
	motionPts := make(plotter.XYs, 0)
	for _, pass := range sp.passes {
		confPts = append(confPts, plotter.XY{X: float64(pass.FrameIdx), Y: pass.Confidence})
		qualPts = append(qualPts, plotter.XY{X: float64(pass.FrameIdx), Y: pass.Quality})
		if pass.Motion {
			motionPts = append(motionPts, plotter.XY{X: float64(pass.FrameIdx), Y: 0.02})
		}
	}

	confLine, err := plotter.NewLine(confPts)
	if err != nil {
		return err
	}
	confLine.Color = plotutil.Color(0)
	confLine.Width = vg.Points(1)
	p.Add(confLine)
	p.Legend.Add("confidence", confLine)

	qualLine, err := plotter.NewLine(qualPts)
	if err != nil {
		return err
	}
	qualLine.Color = plotutil.Color(1)
	qualLine.Width = vg.Points(1)
	p.Add(qualLine)
	p.Legend.Add("quality", qualLine)

	if len(motionPts) > 0 {
		scatter, err := plotter.NewScatter(motionPts)
		if err != nil {
			return err
		}
		scatter.Color = plotutil.Color(2)
		p.Add(scatter)
		p.Legend.Add("motion", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	out := filepath.Join(sp.outputDir, "quality_trend.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("save quality trend plot: %w", err)
	}
	return nil
}

// regionQualityPlot draws one quality line per region.
func (sp *SessionPlotter) regionQualityPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s - Region Quality", sp.sessionID)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Quality"
	p.Y.Min = 0
	p.Y.Max = 1

	byRegion := make(map[string]plotter.XYs)
	for _, pass := range sp.passes {
		for region, q := range pass.RegionQuality {
			byRegion[region] = append(byRegion[region], plotter.XY{X: float64(pass.FrameIdx), Y: q})
		}
	}

	var regions []string
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	for i, region := range regions {
		line, err := plotter.NewLine(byRegion[region])
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(region, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	out := filepath.Join(sp.outputDir, "region_quality.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("save region quality plot: %w", err)
	}
	return nil
}

// waveformPlot draws the last conditioned pulse window against time.
func (sp *SessionPlotter) waveformPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s - Pulse Waveform", sp.sessionID)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Amplitude"

	pts := make(plotter.XYs, len(sp.lastPulse))
	for i, v := range sp.lastPulse {
		pts[i] = plotter.XY{X: float64(i) / sp.lastRate, Y: v}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(0)
	line.Width = vg.Points(1)
	p.Add(line)

	out := filepath.Join(sp.outputDir, "pulse_waveform.png")
	if err := p.Save(14*vg.Inch, 4*vg.Inch, out); err != nil {
		return fmt.Errorf("save waveform plot: %w", err)
	}
	return nil
}

// spectrumPlot draws the magnitude spectrum of the last pulse window over
// the configured BPM range.
func (sp *SessionPlotter) spectrumPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s - Pulse Spectrum", sp.sessionID)
	p.X.Label.Text = "BPM"
	p.Y.Label.Text = "Magnitude"

	fft := fourier.NewFFT(len(sp.lastPulse))
	coeffs := fft.Coefficients(nil, sp.lastPulse)
	step := sp.lastRate / float64(len(sp.lastPulse))

	pts := make(plotter.XYs, 0, len(coeffs))
	for i := 1; i < len(coeffs); i++ {
		bpm := units.HzToBPM(float64(i) * step)
		if bpm < sp.minBPM-10 || bpm > sp.maxBPM+20 {
			continue
		}
		pts = append(pts, plotter.XY{X: bpm, Y: cmplx.Abs(coeffs[i])})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotutil.Color(0)
	line.Width = vg.Points(1)
	p.Add(line)

	out := filepath.Join(sp.outputDir, "pulse_spectrum.png")
	if err := p.Save(10*vg.Inch, 6*vg.Inch, out); err != nil {
		return fmt.Errorf("save spectrum plot: %w", err)
	}
	return nil
}

func (sp *SessionPlotter) hasRegionData() bool {
	for _, pass := range sp.passes {
		if len(pass.RegionQuality) > 0 {
			return true
		}
	}
	return false
}

// GetOutputDir returns the current output directory for plots.
func (sp *SessionPlotter) GetOutputDir() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.outputDir
}

// GetSampleCount returns the number of passes recorded.
func (sp *SessionPlotter) GetSampleCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.passes)
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for a
// session's plots: <baseDir>/<sessionID>/<timestamp>.
func MakePlotOutputDir(baseDir, sessionID string) string {
	ts := FormatTimestamp(time.Now())
	if sessionID != "" {
		return filepath.Join(baseDir, sessionID, ts)
	}
	return filepath.Join(baseDir, "session_"+ts)
}
