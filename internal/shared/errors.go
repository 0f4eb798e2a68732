package shared

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// Configuration errors
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed = fmt.Errorf("authentication failed")

	// API and migration errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrCustomerNotFound = fmt.Errorf("customer not found in target account")
	ErrNoPaymentMethod  = fmt.Errorf("no matching payment method")
	ErrAborted          = fmt.Errorf("aborted by operator")

	// Input validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// ImportError is a fatal per-object migration failure. It carries the
// resource type, the source object id and the phase (recreate/revert) the
// failure happened in, with the underlying cause chained.
type ImportError struct {
	Resource string
	SourceID string
	Phase    string
	Err      error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s %s: %s failed: %v", e.Resource, e.SourceID, e.Phase, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// ImportWarning is an expected, recoverable per-object skip condition, such
// as a canceled source subscription or a tolerated failed charge. Warnings
// never abort a batch.
type ImportWarning struct {
	Resource string
	SourceID string
	Reason   string
	Err      error
}

func (w *ImportWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", w.Resource, w.SourceID, w.Reason, w.Err)
	}
	return fmt.Sprintf("%s %s: %s", w.Resource, w.SourceID, w.Reason)
}

func (w *ImportWarning) Unwrap() error { return w.Err }

// IsWarning reports whether err is, or wraps, an [ImportWarning].
func IsWarning(err error) bool {
	var w *ImportWarning
	return errors.As(err, &w)
}

// ErrorGroup aggregates per-item failures from a fan-out without aborting
// the remaining items. The group is fatal when it contains at least one
// error that is not an [ImportWarning].
type ErrorGroup struct {
	Resource string

	mu   sync.Mutex
	errs []error
}

func NewErrorGroup(resource string) *ErrorGroup {
	return &ErrorGroup{Resource: resource}
}

// Append records a failure. Nil errors are ignored.
func (g *ErrorGroup) Append(err error) {
	if err == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, err)
}

// Len returns the number of recorded failures.
func (g *ErrorGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.errs)
}

// Errors returns a copy of all recorded failures.
func (g *ErrorGroup) Errors() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]error, len(g.errs))
	copy(out, g.errs)
	return out
}

// Warnings returns only the recorded [ImportWarning] failures.
func (g *ErrorGroup) Warnings() []error {
	var out []error
	for _, err := range g.Errors() {
		if IsWarning(err) {
			out = append(out, err)
		}
	}
	return out
}

// Fatal reports whether the group contains at least one non-warning error.
func (g *ErrorGroup) Fatal() bool {
	for _, err := range g.Errors() {
		if !IsWarning(err) {
			return true
		}
	}
	return false
}

// ErrIfFatal returns the group as an error when it is fatal, nil otherwise.
// A group holding only warnings does not fail the run.
func (g *ErrorGroup) ErrIfFatal() error {
	if g.Fatal() {
		return g
	}
	return nil
}

func (g *ErrorGroup) Error() string {
	errs := g.Errors()
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s failure(s)", len(errs), g.Resource)
	for _, err := range errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual failures to [errors.Is] and [errors.As].
func (g *ErrorGroup) Unwrap() []error { return g.Errors() }
