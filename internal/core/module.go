package core

import (
	"fmt"
	"reflect"
	"sync"
)

// moduleTable is the process-local registry of rewireable modules. A module
// is a named export table whose values are pointers to package-level
// function variables; rewiring swaps the pointed-to variable, so the change
// is visible at every call site that goes through the variable.
type moduleTable struct {
	mu    sync.Mutex
	eager map[string]map[string]any
	lazy  map[string]func() map[string]any
}

func newModuleTable() *moduleTable {
	return &moduleTable{
		eager: map[string]map[string]any{},
		lazy:  map[string]func() map[string]any{},
	}
}

func (t *moduleTable) register(specifier string, exports map[string]any) {
	t.mu.Lock()
	t.eager[specifier] = exports
	delete(t.lazy, specifier)
	t.mu.Unlock()
}

func (t *moduleTable) registerLazy(specifier string, load func() map[string]any) {
	t.mu.Lock()
	t.lazy[specifier] = load
	delete(t.eager, specifier)
	t.mu.Unlock()
}

// resolve returns the export table for an eagerly registered module.
// Modules behind a lazy loader cannot be rewired after the fact: their
// export table does not exist yet, and materializing it here would hide
// the ordering problem instead of surfacing it.
func (t *moduleTable) resolve(specifier string) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if exports, ok := t.eager[specifier]; ok {
		return exports, nil
	}

	if _, ok := t.lazy[specifier]; ok {
		return nil, &ModuleResolutionError{
			Specifier: specifier,
			Message: fmt.Sprintf(
				"the module %q is registered with a lazy loader; only eagerly registered modules can be rewired",
				specifier),
		}
	}

	return nil, &ModuleResolutionError{
		Specifier: specifier,
		Message:   fmt.Sprintf("could not resolve the module %q", specifier),
	}
}

// RegisterModule registers the module's export table for rewiring. Export
// values must be pointers to package-level function variables, like
// &mypkg.Now. Registering the same specifier again replaces the table.
func RegisterModule(specifier string, exports map[string]any) {
	globalModules.register(specifier, exports)
}

// RegisterLazyModule registers a module whose export table is produced on
// demand. Lazy modules can be resolved by the host application but refuse
// rewiring; MockModule reports them as an incompatible loading mode.
func RegisterLazyModule(specifier string, load func() map[string]any) {
	globalModules.registerLazy(specifier, load)
}

// MockModule declares a mock for the named exports of a registered module.
// The declaration lands in the current scope and is bound by InitMocks, so
// restore semantics are shared with every other mock. Only function-typed
// exports can be spied on directly.
func MockModule(specifier string, exportNames ...string) (*Mock, error) {
	exports, err := globalModules.resolve(specifier)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]any, len(exportNames))

	for _, name := range exportNames {
		export, ok := exports[name]
		if !ok {
			return nil, &InitializationError{
				Module:  specifier,
				Message: fmt.Sprintf("the module %q has no export named %q", specifier, name),
			}
		}

		pointer := reflect.ValueOf(export)
		if pointer.Kind() != reflect.Pointer || pointer.Type().Elem().Kind() != reflect.Func {
			return nil, &InitializationError{
				Module: specifier,
				Message: fmt.Sprintf(
					"the export %q of module %q is not a function export; only function exports can be spied on directly",
					name, specifier),
			}
		}

		if globalRegistry.isActive(slotKey{container: pointer.Pointer()}) {
			return nil, &InitializationError{
				Module:  specifier,
				Message: fmt.Sprintf("the export %q of module %q is already mocked", name, specifier),
			}
		}

		selected[name] = export
	}

	return globalScopes.CreateMock(selected, exportNames, nil, specifier), nil
}
