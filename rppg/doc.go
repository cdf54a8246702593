// Package rppg estimates heart rate from frame-by-frame skin color samples.
//
// Responsibilities: sliding-window buffering of per-region RGB means, POS
// pulse extraction with quality-weighted region fusion, signal conditioning
// (detrend, median, zero-phase bandpass), multi-method BPM estimation
// (spectral, autocorrelation, peak intervals), and temporal consistency
// tracking with smoothed publication.
// Key types: Engine, Config, Result, ColorSignalBuffer.
//
// The package takes no part in camera capture or region selection; the host
// feeds it RegionSample values and reads back Result. All stages degrade
// rather than fail once an Engine is constructed.
package rppg
