package errors

import (
	"fmt"
	"time"
)

// ErrorBuilder assembles an EnhancedError fluently.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts a builder wrapping an existing error.
func New(err error) *ErrorBuilder {
	if err == nil {
		err = fmt.Errorf("unknown error")
	}
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder with a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return &ErrorBuilder{err: fmt.Errorf(format, args...), category: CategoryGeneric}
}

// Component sets the producing component.
func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.component = component
	return b
}

// Category sets the error category.
func (b *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	b.category = category
	return b
}

// Context adds a key/value pair.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and hands it to the reporter.
func (b *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
		Timestamp: time.Now(),
	}
	report(ee)
	return ee
}
