package core

import (
	"slices"
	"sync"
)

// TestReporter is the minimal interface this library needs from test
// frameworks.
type TestReporter interface {
	Helper()
	Fatalf(format string, args ...any)
}

// cleanupRegistrar is the interface needed for registering cleanup
// functions. This is satisfied by *testing.T and *testing.B.
type cleanupRegistrar interface {
	Cleanup(cleanupFunc func())
}

// Hook runs around a test case.
type Hook func(t TestReporter)

// GlobalConfig carries a partial update of the process-wide defaults; nil
// fields keep the current value. Supplying either hook replaces the active
// before/after pair as a whole - the omitted side falls back to the
// default hook, and the last write wins.
type GlobalConfig struct {
	// UseOwnEquals sets the default comparison config new spies start with.
	UseOwnEquals *bool
	BeforeEach   Hook
	AfterEach    Hook
}

// Registry, scope, and module state is process-local by design: tests may
// run in isolated worker processes, and the after-each hook resets
// everything between cases.
var (
	//nolint:gochecknoglobals // package-level registry is intentional for test coordination
	globalRegistry = NewRegistry()
	//nolint:gochecknoglobals // package-level scope state is intentional for test coordination
	globalScopes = newScopeManager()
	//nolint:gochecknoglobals // package-level module table is intentional for test coordination
	globalModules = newModuleTable()

	//nolint:gochecknoglobals // mutex for the settings below
	globalMu sync.Mutex
	//nolint:gochecknoglobals // default comparison setting, guarded by globalMu
	useOwnEqualsDefault = true
	//nolint:gochecknoglobals // active before-each hook, guarded by globalMu
	beforeEachHook Hook
	//nolint:gochecknoglobals // active after-each hook, guarded by globalMu
	afterEachHook Hook
	//nolint:gochecknoglobals // every spy ever created, for ResetAll, guarded by globalMu
	allSpies []*Spy
)

// Configure updates the global defaults.
func Configure(config GlobalConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if config.UseOwnEquals != nil {
		useOwnEqualsDefault = *config.UseOwnEquals
	}

	if config.BeforeEach != nil || config.AfterEach != nil {
		beforeEachHook = config.BeforeEach
		afterEachHook = config.AfterEach
	}
}

// Setup runs the active before-each hook now and, when the reporter
// supports Cleanup (like *testing.T), registers the active after-each hook
// to run when the test completes.
func Setup(t TestReporter) {
	t.Helper()

	before, after := activeHooks()
	before(t)

	if registrar, ok := t.(cleanupRegistrar); ok {
		registrar.Cleanup(func() { after(t) })
	}
}

func activeHooks() (Hook, Hook) {
	globalMu.Lock()
	defer globalMu.Unlock()

	before, after := beforeEachHook, afterEachHook
	if before == nil {
		before = defaultBeforeEach
	}

	if after == nil {
		after = defaultAfterEach
	}

	return before, after
}

// defaultBeforeEach binds every declared default-scope mock.
func defaultBeforeEach(t TestReporter) {
	t.Helper()

	if err := InitMocks(); err != nil {
		t.Fatalf("%v", err)
	}
}

// defaultAfterEach restores all non-persistent registry entries and clears
// every spy's call log.
func defaultAfterEach(TestReporter) {
	RestoreAll()
	ResetAll()
}

// InitMocks binds every inactive declaration in the default scope and, if
// given, the named scope.
func InitMocks(scope ...string) error {
	return globalScopes.InitMocks(defaultSpyFactory, scope...)
}

func defaultSpyFactory(container any, methodName string, onRestore func()) (*Spy, error) {
	return spyOn(globalRegistry, container, methodName, onRestore)
}

// CreateMock declares a mock for the named methods of the container in the
// current scope. The optional factory seeds each bound spy's behavior.
func CreateMock(container any, methods []string, factory BehaviorFactory) *Mock {
	return globalScopes.CreateMock(container, methods, factory, "")
}

// SetScope creates (or clears) the named scope and switches to it.
func SetScope(name string) {
	globalScopes.SetScope(name)
}

// ResetScope switches back to the default scope.
func ResetScope() {
	globalScopes.ResetScope()
}

// RestoreAll restores every active, non-persistent registry entry in
// registration order.
func RestoreAll() {
	globalRegistry.RestoreAll()
}

// ResetAll clears every spy's call log. Behaviors and registry state stay
// untouched.
func ResetAll() {
	globalMu.Lock()
	spies := slices.Clone(allSpies)
	globalMu.Unlock()

	for _, spy := range spies {
		spy.Reset()
	}
}

func registerSpy(spy *Spy) {
	globalMu.Lock()
	allSpies = append(allSpies, spy)
	globalMu.Unlock()
}

func defaultUseOwnEquals() bool {
	globalMu.Lock()
	defer globalMu.Unlock()

	return useOwnEqualsDefault
}
