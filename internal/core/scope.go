package core

import (
	"fmt"
	"slices"
	"sync"
)

// DefaultScopeName names the scope that always exists and is bound by every
// InitMocks run.
const DefaultScopeName = "default"

// BehaviorFactory seeds a freshly bound spy's behavior per method name.
// Returning nil leaves the spy without behavior.
type BehaviorFactory func(methodName string) Behavior

// SpyFactory materializes one live spy for a declaration's method. The
// onRestore callback must fire when the spy is restored, so the owning
// declaration can be re-bound later.
type SpyFactory func(container any, methodName string, onRestore func()) (*Spy, error)

// MockDeclaration is a not-yet-bound set of spies targeting named members
// of a container. It transitions to active when its scope is initialized
// and back to inactive when its spies are restored.
type MockDeclaration struct {
	mu         sync.Mutex
	container  any
	methods    []string
	factory    BehaviorFactory
	moduleName string
	active     bool
	mock       *Mock
}

func (d *MockDeclaration) isActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.active
}

func (d *MockDeclaration) setActive(active bool) {
	d.mu.Lock()
	d.active = active
	d.mu.Unlock()
}

// MockScope is a named bucket of mock declarations, independently
// initializable.
type MockScope struct {
	name         string
	declarations []*MockDeclaration
}

// ScopeManager groups mock declarations into scopes. Exactly one scope is
// current at any time; declarations land in the current scope.
type ScopeManager struct {
	mu      sync.Mutex
	scopes  map[string]*MockScope
	current string
}

func newScopeManager() *ScopeManager {
	manager := &ScopeManager{scopes: map[string]*MockScope{}}
	manager.scopes[DefaultScopeName] = &MockScope{name: DefaultScopeName}
	manager.current = DefaultScopeName

	return manager
}

// SetScope creates (or clears) the named scope and switches to it.
func (m *ScopeManager) SetScope(name string) {
	m.mu.Lock()
	m.scopes[name] = &MockScope{name: name}
	m.current = name
	m.mu.Unlock()
}

// ResetScope switches back to the default scope.
func (m *ScopeManager) ResetScope() {
	m.mu.Lock()
	m.current = DefaultScopeName
	m.mu.Unlock()
}

// CreateMock registers a declaration for the named methods in the current
// scope and returns the placeholder that will carry the live spies once
// the scope is initialized.
func (m *ScopeManager) CreateMock(
	container any,
	methods []string,
	factory BehaviorFactory,
	moduleName string,
) *Mock {
	mock := newMock(methods)
	declaration := &MockDeclaration{
		container:  container,
		methods:    methods,
		factory:    factory,
		moduleName: moduleName,
		mock:       mock,
	}

	m.mu.Lock()
	scope := m.scopes[m.current]
	scope.declarations = append(scope.declarations, declaration)
	m.mu.Unlock()

	return mock
}

// InitMocks binds every inactive declaration in the default scope and, if
// given, the named scope. Already-active declarations are skipped, so
// repeated initialization is idempotent.
func (m *ScopeManager) InitMocks(factory SpyFactory, scopeName ...string) error {
	names := []string{DefaultScopeName}
	if len(scopeName) > 0 && scopeName[0] != DefaultScopeName {
		names = append(names, scopeName[0])
	}

	for _, name := range names {
		m.mu.Lock()
		scope, known := m.scopes[name]

		var declarations []*MockDeclaration
		if known {
			declarations = slices.Clone(scope.declarations)
		}
		m.mu.Unlock()

		if !known {
			return &InitializationError{
				Scope: name,
				Message: fmt.Sprintf("Could not initialize mock for %s, because: the scope was never created",
					name),
			}
		}

		for _, declaration := range declarations {
			if err := bindDeclaration(declaration, name, factory); err != nil {
				return err
			}
		}
	}

	return nil
}

func bindDeclaration(declaration *MockDeclaration, scopeName string, factory SpyFactory) error {
	if declaration.isActive() {
		return nil
	}

	for _, method := range declaration.methods {
		spy, err := factory(declaration.container, method, func() {
			declaration.setActive(false)
		})
		if err != nil {
			message := fmt.Sprintf("Could not initialize mock for %s, because: %v", scopeName, err)
			if declaration.moduleName != "" {
				message += fmt.Sprintf(
					"\nPlease consider mocking the module %q with MockModule instead.",
					declaration.moduleName)
			}

			return &InitializationError{
				Scope:   scopeName,
				Module:  declaration.moduleName,
				Message: message,
			}
		}

		if declaration.factory != nil {
			if behavior := declaration.factory(method); behavior != nil {
				spy.Calls(behavior)
			}
		}

		declaration.mock.bind(method, spy)
	}

	declaration.setActive(true)

	return nil
}

// Mock is the placeholder returned by CreateMock. Its members become live
// spies when the owning scope is initialized; until then, reading one
// panics rather than handing out a dead value.
type Mock struct {
	mu    sync.Mutex
	spies map[string]*Spy
}

func newMock(methods []string) *Mock {
	mock := &Mock{spies: make(map[string]*Spy, len(methods))}
	for _, name := range methods {
		mock.spies[name] = nil
	}

	return mock
}

// Get returns the live spy bound for the named method.
func (m *Mock) Get(name string) *Spy {
	m.mu.Lock()
	defer m.mu.Unlock()

	spy, declared := m.spies[name]
	if !declared {
		panic(fmt.Sprintf("%q was never declared on this mock", name))
	}

	if spy == nil {
		panic(fmt.Sprintf("%q is not initialized: run InitMocks before using the mock", name))
	}

	return spy
}

func (m *Mock) bind(name string, spy *Spy) {
	m.mu.Lock()
	m.spies[name] = spy
	m.mu.Unlock()
}
