package core

import (
	"fmt"
	"reflect"
	"sync"
)

// A slot is a single replaceable property on a host container: a func-typed
// struct field, a map entry, or a package-level function variable reached
// through a pointer. Go has no field replacement on arbitrary objects, so
// every live mutation goes through one of these.
type slot interface {
	get() reflect.Value
	set(value reflect.Value)
	// identity keys the active-slot set so the same property cannot carry
	// two spies at once.
	identity() slotKey
	describe() string
}

type slotKey struct {
	container uintptr
	key       string
}

// resolveSlot locates the named property on the container. Supported
// containers are pointers to structs with exported func-typed fields and
// maps with string keys (whose values may also be pointers to function
// variables, the module-export shape).
func resolveSlot(container any, key string) (slot, error) {
	value := reflect.ValueOf(container)

	switch {
	case !value.IsValid():
		return nil, &InitializationError{
			Message: fmt.Sprintf("cannot spy on %q: the target container is nil", key),
		}
	case value.Kind() == reflect.Pointer && !value.IsNil() && value.Elem().Kind() == reflect.Struct:
		return resolveFieldSlot(value, key)
	case value.Kind() == reflect.Map && value.Type().Key().Kind() == reflect.String:
		return resolveMapSlot(value, key)
	default:
		return nil, &InitializationError{
			Message: fmt.Sprintf(
				"cannot spy on %q: unsupported container type %T (need a struct pointer or a string-keyed map)",
				key, container),
		}
	}
}

func resolveFieldSlot(container reflect.Value, key string) (slot, error) {
	field := container.Elem().FieldByName(key)

	if !field.IsValid() {
		return nil, &InitializationError{
			Message: fmt.Sprintf("cannot spy on %q: %s has no such field",
				key, container.Type().Elem()),
		}
	}

	if !field.CanSet() {
		return nil, &InitializationError{
			Message: fmt.Sprintf("cannot spy on %q: the field is read-only on %s",
				key, container.Type().Elem()),
		}
	}

	return &fieldSlot{owner: container.Pointer(), field: field, name: key}, nil
}

func resolveMapSlot(container reflect.Value, key string) (slot, error) {
	entry := container.MapIndex(reflect.ValueOf(key))
	if !entry.IsValid() {
		return nil, &InitializationError{
			Message: fmt.Sprintf("cannot spy on %q: the map has no such entry", key),
		}
	}

	// module export tables hold pointers to function variables; spy on
	// the pointed-to variable so the rewrite is visible at every call site
	resolved := entry
	if resolved.Kind() == reflect.Interface {
		resolved = resolved.Elem()
	}

	if resolved.Kind() == reflect.Pointer && resolved.Type().Elem().Kind() == reflect.Func {
		return &pointerSlot{ptr: resolved, name: key}, nil
	}

	return &mapSlot{container: container, name: key}, nil
}

type fieldSlot struct {
	owner uintptr
	field reflect.Value
	name  string
}

func (s *fieldSlot) get() reflect.Value      { return s.field }
func (s *fieldSlot) set(value reflect.Value) { s.field.Set(value) }
func (s *fieldSlot) identity() slotKey       { return slotKey{container: s.owner, key: s.name} }
func (s *fieldSlot) describe() string        { return s.name }

type mapSlot struct {
	container reflect.Value
	name      string
}

func (s *mapSlot) get() reflect.Value {
	entry := s.container.MapIndex(reflect.ValueOf(s.name))
	if entry.Kind() == reflect.Interface {
		return entry.Elem()
	}

	return entry
}

func (s *mapSlot) set(value reflect.Value) {
	s.container.SetMapIndex(reflect.ValueOf(s.name), value)
}

func (s *mapSlot) identity() slotKey {
	return slotKey{container: s.container.Pointer(), key: s.name}
}

func (s *mapSlot) describe() string { return s.name }

type pointerSlot struct {
	ptr  reflect.Value
	name string
}

func (s *pointerSlot) get() reflect.Value      { return s.ptr.Elem() }
func (s *pointerSlot) set(value reflect.Value) { s.ptr.Elem().Set(value) }
func (s *pointerSlot) identity() slotKey       { return slotKey{container: s.ptr.Pointer()} }
func (s *pointerSlot) describe() string        { return s.name }

// Registry tracks every live mutation made to a host container so each one
// can be undone. Handles are stable append-only indices, starting at 1 and
// never reused, even across restores.
type Registry struct {
	mu      sync.Mutex
	entries []*registryEntry
	active  map[slotKey]bool
}

type registryEntry struct {
	slot       slot
	original   reflect.Value
	active     bool
	persistent bool
	onRestore  func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: map[slotKey]bool{}}
}

// Push captures the slot's current value as the original, installs the
// replacement, and returns the entry's handle. Pushing a slot that already
// carries an active entry is an initialization error, never an overwrite.
func (r *Registry) Push(target slot, replacement reflect.Value, onRestore func()) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[target.identity()] {
		return 0, &InitializationError{
			Message: fmt.Sprintf("there is already an active spy on %q", target.describe()),
		}
	}

	entry := &registryEntry{
		slot:      target,
		original:  target.get(),
		active:    true,
		onRestore: onRestore,
	}

	r.entries = append(r.entries, entry)
	r.active[target.identity()] = true
	target.set(replacement)

	return len(r.entries), nil
}

// OriginalValue returns the value stored when the handle was pushed, or
// reports false for unknown or inactive handles.
func (r *Registry) OriginalValue(handle int) (reflect.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entry(handle)
	if !ok || !entry.active {
		return reflect.Value{}, false
	}

	return entry.original, true
}

// Persist toggles the persistent bit on the entry. Persistent entries are
// skipped by RestoreAll and must be restored individually.
func (r *Registry) Persist(handle int, flag bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entry(handle); ok {
		entry.persistent = flag
	}
}

// Restore writes the original value back onto the slot and marks the entry
// inactive. Restoring an inactive or unknown handle is a no-op.
func (r *Registry) Restore(handle int) {
	r.mu.Lock()

	entry, ok := r.entry(handle)
	if !ok || !entry.active {
		r.mu.Unlock()

		return
	}

	entry.slot.set(entry.original)
	entry.active = false
	delete(r.active, entry.slot.identity())
	callback := entry.onRestore
	r.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// RestoreAll restores every active, non-persistent entry in registration
// order. Persistent entries are deliberately left mutated.
func (r *Registry) RestoreAll() {
	r.mu.Lock()
	handles := make([]int, 0, len(r.entries))

	for i, entry := range r.entries {
		if entry.active && !entry.persistent {
			handles = append(handles, i+1)
		}
	}
	r.mu.Unlock()

	for _, handle := range handles {
		r.Restore(handle)
	}
}

// isActive reports whether the slot currently carries an active entry.
func (r *Registry) isActive(key slotKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.active[key]
}

func (r *Registry) entry(handle int) (*registryEntry, bool) {
	if handle < 1 || handle > len(r.entries) {
		return nil, false
	}

	return r.entries[handle-1], true
}
