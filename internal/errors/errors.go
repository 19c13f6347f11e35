// Package errors provides categorized, context-carrying errors for the worker.
// It wraps the standard library so callers can import a single errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrorCategory groups errors for logging, metrics and reporting.
type ErrorCategory string

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryNetwork       ErrorCategory = "network"
	CategoryCache         ErrorCategory = "cache"
	CategoryStorage       ErrorCategory = "storage"
	CategoryQuota         ErrorCategory = "quota"
	CategoryInstall       ErrorCategory = "install"
	CategorySync          ErrorCategory = "sync"
	CategoryPush          ErrorCategory = "push"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"
)

// EnhancedError wraps an error with component, category and context data.
type EnhancedError struct {
	Err       error
	component string
	category  ErrorCategory
	context   map[string]any
	Timestamp time.Time
}

// Error implements error.
func (e *EnhancedError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *EnhancedError) Unwrap() error {
	return e.Err
}

// GetComponent returns the component that produced the error.
func (e *EnhancedError) GetComponent() string {
	return e.component
}

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() ErrorCategory {
	return e.category
}

// GetContext returns a copy of the context map.
func (e *EnhancedError) GetContext() map[string]any {
	out := make(map[string]any, len(e.context))
	maps.Copy(out, e.context)
	return out
}

// Reporter receives built errors, e.g. to forward them to an error tracker.
type Reporter func(ee *EnhancedError)

var (
	reporterMu sync.RWMutex
	reporter   Reporter
)

// SetReporter installs the process-wide reporter. Passing nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

// quietCategories are expected in normal offline operation and never reported.
var quietCategories = map[ErrorCategory]bool{
	CategoryNetwork:    true,
	CategoryValidation: true,
	CategoryNotFound:   true,
}

func report(ee *EnhancedError) {
	if quietCategories[ee.category] {
		return
	}
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r(ee)
	}
}

// Report forwards an arbitrary error to the reporter. Plain errors are
// wrapped into the generic category.
func Report(err error) {
	if err == nil {
		return
	}
	var ee *EnhancedError
	if !As(err, &ee) {
		ee = &EnhancedError{Err: err, category: CategoryGeneric, Timestamp: time.Now()}
	}
	report(ee)
}

// CategoryOf returns the category of the first EnhancedError in err's chain,
// or CategoryGeneric.
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error wrapping the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

// Errorf is fmt.Errorf, re-exported for wrapping with %w.
func Errorf(format string, args ...any) error { return fmt.Errorf(format, args...) }
