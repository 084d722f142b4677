// Package trace provides best-effort diagnostic logging for the
// object database, gated by environment variables the way go-git's
// GIT_TRACE* family works.
package trace

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"
)

var (
	logger  = newLogger()
	current atomic.Int32
)

func newLogger() *log.Logger {
	return log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds|log.Lshortfile)
}

// Target is a tracing target.
type Target int32

const (
	// General traces directory-level operations: has/open/insert,
	// rescans, alternate resolution.
	General Target = 1 << iota

	// Pack traces pack opening, delta resolution and CRC verification.
	Pack

	// Cache traces block-cache hits, misses and evictions.
	Cache

	// Performance traces wall-clock timings for the above.
	Performance
)

// envToTarget maps the environment variables that enable each target.
var envToTarget = map[string]Target{
	"GIT_TRACE":             General,
	"GIT_TRACE_PACK_ACCESS": Pack,
	"GIT_TRACE_CACHE":       Cache,
	"GIT_TRACE_PERFORMANCE": Performance,
}

// ReadEnv sets the active targets from the environment. Call once at
// process startup; tests that want deterministic output should call
// SetTarget directly instead.
func ReadEnv() {
	var target Target
	for k, v := range envToTarget {
		if val, _ := strconv.ParseBool(os.Getenv(k)); val {
			target |= v
		}
	}
	SetTarget(target)
}

// SetTarget sets the tracing targets directly, overriding ReadEnv.
func SetTarget(target Target) { current.Store(int32(target)) }

// SetLogger replaces the default stderr logger, e.g. to capture trace
// output in a test.
func SetLogger(l *log.Logger) { logger = l }

// GetTarget returns the currently active targets.
func GetTarget() Target { return Target(current.Load()) }

// Enabled reports whether t is currently active.
func (t Target) Enabled() bool { return int32(t)&current.Load() != 0 }

// Print logs args if t is enabled.
func (t Target) Print(args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprint(args...)) //nolint:errcheck
	}
}

// Printf logs a formatted message if t is enabled.
func (t Target) Printf(format string, args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprintf(format, args...)) //nolint:errcheck
	}
}
