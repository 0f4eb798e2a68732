// package shared defines shared helpers
package shared

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// SyntheticID fabricates a dry-run object id with the given resource prefix,
// e.g. SyntheticID("sub") -> "dry_sub_1a2b3c4d". The "dry_" marker keeps
// fabricated ids from ever being mistaken for real billing objects.
func SyntheticID(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("dry_%s_%s", prefix, raw[:8])
}

// RedactKey returns a loggable form of an API key, keeping only the prefix
// and the last four characters.
func RedactKey(key string) string {
	if len(key) < 12 {
		return "****"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
