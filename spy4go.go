// Package spy4go provides spies and mocks for Go tests: instrumented
// stand-ins for functions that record every invocation, carry configurable
// behavior, and are asserted against through structural comparison.
//
// This is the public API entry point. Implementation lives in internal/core.
package spy4go

import (
	"github.com/fdc-viktor-luft/spy4go/internal/core"
)

// Spy is a callable, stateful test double. It records every invocation,
// runs a configurable behavior, and can be asserted against through the
// structural differ.
type Spy = core.Spy

// Mock is the placeholder returned by CreateMock and MockModule; its
// members become live spies when the owning scope is initialized.
type Mock = core.Mock

// CallRecord is one recorded invocation.
type CallRecord = core.CallRecord

// Behavior produces the return values for one spy invocation.
type Behavior = core.Behavior

// BehaviorFactory seeds a freshly bound spy's behavior per method name.
type BehaviorFactory = core.BehaviorFactory

// Future is the asynchronous result produced by the Resolves and Rejects
// behaviors.
type Future = core.Future

// SpyConfig carries a partial per-spy configuration update.
type SpyConfig = core.SpyConfig

// GlobalConfig carries a partial update of the process-wide defaults.
type GlobalConfig = core.GlobalConfig

// Hook runs around a test case.
type Hook = core.Hook

// TestReporter is the minimal interface spy4go needs from test frameworks.
type TestReporter = core.TestReporter

// Matcher defines the interface for flexible value matching; expected
// values implementing it take over their position's comparison.
type Matcher = core.Matcher

// Error types. The message text is part of the public contract.
type (
	// ConfigurationError reports an invalid spy or global configuration.
	ConfigurationError = core.ConfigurationError
	// InitializationError reports a failure to bind a spy onto a live target.
	InitializationError = core.InitializationError
	// ModuleResolutionError reports an unresolvable or unrewireable module.
	ModuleResolutionError = core.ModuleResolutionError
	// AssertionError reports a failed spy assertion.
	AssertionError = core.AssertionError
)

// DefaultScopeName names the scope that always exists and is bound by
// every InitMocks run.
const DefaultScopeName = core.DefaultScopeName

// NewSpy creates a bare spy that is not attached to any object.
func NewSpy(name string) *Spy {
	return core.NewSpy(name)
}

// On replaces container's named property with a spy of the same function
// signature and registers the mutation for later restore.
func On(container any, key string) (*Spy, error) {
	return core.On(container, key)
}

// CreateMock declares a mock for the named methods of the container in the
// current scope. The members stay unbound until InitMocks runs.
func CreateMock(container any, methods ...string) *Mock {
	return core.CreateMock(container, methods, nil)
}

// CreateMockWithBehavior is CreateMock with a factory that seeds each bound
// spy's behavior from its method name.
func CreateMockWithBehavior(container any, factory BehaviorFactory, methods ...string) *Mock {
	return core.CreateMock(container, methods, factory)
}

// MockModule declares a mock for the named exports of a registered module.
func MockModule(specifier string, exportNames ...string) (*Mock, error) {
	return core.MockModule(specifier, exportNames...)
}

// RegisterModule registers the module's export table for rewiring. Export
// values must be pointers to package-level function variables.
func RegisterModule(specifier string, exports map[string]any) {
	core.RegisterModule(specifier, exports)
}

// RegisterLazyModule registers a module whose export table is produced on
// demand; such modules refuse rewiring.
func RegisterLazyModule(specifier string, load func() map[string]any) {
	core.RegisterLazyModule(specifier, load)
}

// InitMocks binds every inactive declaration in the default scope and, if
// given, the named scope.
func InitMocks(scope ...string) error {
	return core.InitMocks(scope...)
}

// SetScope creates (or clears) the named scope and switches to it.
func SetScope(name string) {
	core.SetScope(name)
}

// ResetScope switches back to the default scope.
func ResetScope() {
	core.ResetScope()
}

// Configure updates the global defaults: the comparison default new spies
// start with, and the before-each/after-each hook pair (last write wins).
func Configure(config GlobalConfig) {
	core.Configure(config)
}

// Setup runs the active before-each hook now and registers the active
// after-each hook to run when the test completes.
func Setup(t TestReporter) {
	core.Setup(t)
}

// RestoreAll restores every active, non-persistent registry entry in
// registration order.
func RestoreAll() {
	core.RestoreAll()
}

// ResetAll clears every spy's call log.
func ResetAll() {
	core.ResetAll()
}
