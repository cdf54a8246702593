package rppg

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned while a region window has not yet accumulated
// enough samples for a reliable estimate. Keep feeding frames and retry.
var ErrNotReady = errors.New("signal window not ready")

// ErrDegenerateSignal is returned when a window carries no usable pulsatile
// content, such as constant input or a window of missing samples. The
// condition clears on its own once usable frames arrive.
var ErrDegenerateSignal = errors.New("degenerate signal window")

// ErrUnknownRegion is returned when a snapshot is requested for a region that
// has never been recorded.
var ErrUnknownRegion = errors.New("unknown region")

// ConfigError reports an invalid Config at construction time. Unlike the
// per-frame errors above it is not recoverable: the caller must fix the
// configuration and rebuild the engine.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, v ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, v...)}
}
