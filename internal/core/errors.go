package core

import "fmt"

// Error philosophy:
//
// Failures: conditions which signal expected failures the user is testing for (this is a test library), are
// reported as *AssertionError values so that callers can route them through their test framework.
//
// Panics: conditions which signal an error which it is not generally reasonable to expect a caller to recover from,
// which instead imply programmer intervention is necessary to resolve (like reading from a mock that was never
// initialized), trigger an explanatory panic for the programmer to track down.
//
// Errors: all other error conditions return a typed error with sufficient detail to enable the caller to take
// corrective action. The message text is part of the public contract.

// ConfigurationError reports an invalid spy or global configuration,
// like requesting persistence on a spy that does not mock anything.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// InitializationError reports a failure to bind a spy onto a live target:
// a missing or unsettable property, a non-function target, or a property
// that already carries an active spy.
type InitializationError struct {
	// Scope names the mock scope being initialized, when known.
	Scope string
	// Module names the module the failing declaration belongs to, when known.
	Module  string
	Message string
}

func (e *InitializationError) Error() string { return e.Message }

// ModuleResolutionError reports that a module specifier could not be
// resolved, or that the module was registered in a way that cannot be
// rewired after the fact.
type ModuleResolutionError struct {
	Specifier string
	Message   string
}

func (e *ModuleResolutionError) Error() string { return e.Message }

// AssertionError reports a failed spy assertion. The message embeds the
// rendered call log so the failure is readable without further digging.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return e.Message }

func assertionErrorf(format string, args ...any) *AssertionError {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// thrownError is the normalized error raised by Throws and Rejects.
// It remembers which spy produced it, while keeping the user-supplied
// message as the error text.
type thrownError struct {
	spy     string
	message string
}

func (e *thrownError) Error() string { return e.message }

// normalizeError turns the user-supplied throw value into an error.
// Error values pass through unchanged, strings become the error message,
// and an absent value produces a default message carrying the spy's name.
func normalizeError(value any, spyName string) error {
	switch v := value.(type) {
	case nil:
		return &thrownError{spy: spyName, message: spyName + " was requested to throw an error"}
	case error:
		return v
	case string:
		return &thrownError{spy: spyName, message: v}
	default:
		return &thrownError{spy: spyName, message: fmt.Sprintf("%v", v)}
	}
}
