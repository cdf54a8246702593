// Package monitoring holds the process-wide diagnostic logger used by the
// estimation pipeline. Hosts embedding the library can redirect or silence it.
package monitoring

import "log"

// Logf is the diagnostic log sink. It defaults to log.Printf so stand-alone
// use prints to stderr; embedders replace it via SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the log sink. A nil argument installs a no-op sink, which is
// the supported way to mute pipeline diagnostics entirely.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
