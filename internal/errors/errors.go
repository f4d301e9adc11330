// Package errors wraps the standard library errors package with a small
// builder that attaches a component, a category and key/value context to an
// error. Errors in reportable categories are forwarded to the registered
// reporter (Sentry in production) when built.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

// Category classifies an error for logging and reporting.
type Category string

// Error categories.
const (
	CategoryValidation    Category = "validation"
	CategoryNotFound      Category = "not-found"
	CategoryDatabase      Category = "database"
	CategoryDelivery      Category = "delivery"
	CategoryConfiguration Category = "configuration"
	CategorySystem        Category = "system"
	CategoryGeneric       Category = "generic"
)

// EnhancedError is an error annotated with component, category and context.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string {
	if len(e.context) == 0 {
		return e.Err.Error()
	}
	keys := make([]string, 0, len(e.context))
	for k := range e.context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(e.Err.Error())
	b.WriteString(" [")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.context[k])
	}
	b.WriteString("]")
	return b.String()
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// Component returns the component that produced the error.
func (e *EnhancedError) Component() string { return e.component }

// Category returns the error category.
func (e *EnhancedError) Category() Category { return e.category }

// Context returns a copy of the error context.
func (e *EnhancedError) Context() map[string]any { return maps.Clone(e.context) }

// Builder assembles an EnhancedError.
type Builder struct {
	err *EnhancedError
}

// New starts a builder wrapping err.
func New(err error) *Builder {
	return &Builder{err: &EnhancedError{Err: err, category: CategoryGeneric}}
}

// Newf starts a builder with a formatted message. %w verbs wrap as usual.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the originating component.
func (b *Builder) Component(name string) *Builder {
	b.err.component = name
	return b
}

// Category sets the error category.
func (b *Builder) Category(c Category) *Builder {
	b.err.category = c
	return b
}

// Context attaches a key/value pair.
func (b *Builder) Context(key string, value any) *Builder {
	if b.err.context == nil {
		b.err.context = make(map[string]any)
	}
	b.err.context[key] = value
	return b
}

// Build finalises the error and hands reportable categories to the reporter.
func (b *Builder) Build() error {
	e := b.err
	if isReportable(e.category) {
		report(e)
	}
	return e
}

func isReportable(c Category) bool {
	return c == CategoryDatabase || c == CategorySystem
}

// Reporter receives reportable errors.
type Reporter func(err *EnhancedError)

var (
	reporter   Reporter
	reporterMu sync.RWMutex
)

// SetReporter installs the process-wide reporter. Passing nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func report(e *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil {
		r(e)
	}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

// CategoryOf returns the category of the first EnhancedError in err's tree,
// or CategoryGeneric.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}
