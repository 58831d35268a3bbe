// Package core provides the internal implementation of the spy runtime:
// the spy state machine, the mutation registry, the structural differ, the
// scope manager, and the module rewiring table.
package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// CallRecord is one recorded invocation: the arguments exactly as received.
type CallRecord struct {
	Args []any
}

// Behavior produces the return values for one spy invocation.
type Behavior func(args ...any) []any

// behaviorFunc is the installed behavior slot. It additionally receives the
// call index, counted from the spy's creation or its last reconfiguration,
// so sequenced behaviors can select their producer.
type behaviorFunc func(index int, args []any) []any

// Config holds a spy's per-instance settings.
type Config struct {
	// UseOwnEquals lets the differ delegate to a value's own Equal method.
	UseOwnEquals bool
	// Persistent excludes the spy's mutation from bulk restore.
	Persistent bool
}

// SpyConfig carries a partial configuration update; nil fields keep the
// current value.
type SpyConfig struct {
	UseOwnEquals *bool
	Persistent   *bool
}

// Spy is a callable, stateful test double. It records every invocation,
// runs a configurable behavior, and can be asserted against through the
// structural differ. A spy created by On additionally holds a registry
// handle so the wrapped property can be restored or forwarded to.
type Spy struct {
	mu            sync.Mutex
	name          string
	calls         []CallRecord
	behavior      behaviorFunc
	behaviorCalls int
	config        Config
	registry      *Registry
	handle        int
	active        bool
}

// NewSpy creates a bare spy that is not attached to any object. An empty
// name falls back to "the spy".
func NewSpy(name string) *Spy {
	if name == "" {
		name = "the spy"
	}

	spy := &Spy{name: name, config: Config{UseOwnEquals: defaultUseOwnEquals()}}
	registerSpy(spy)

	return spy
}

// On replaces container's named property with a spy of the same function
// signature and registers the mutation for later restore. The container is
// a struct pointer with an exported func-typed field, or a string-keyed map.
func On(container any, key string) (*Spy, error) {
	return spyOn(globalRegistry, container, key, nil)
}

func spyOn(registry *Registry, container any, key string, onRestore func()) (*Spy, error) {
	target, err := resolveSlot(container, key)
	if err != nil {
		return nil, err
	}

	original := target.get()
	if original.Kind() == reflect.Interface {
		original = original.Elem()
	}

	if original.Kind() != reflect.Func || original.IsNil() {
		return nil, &InitializationError{
			Message: fmt.Sprintf("cannot spy on %q: the current value is not a function", key),
		}
	}

	spy := NewSpy(fmt.Sprintf("the spy on %q", key))
	spy.registry = registry

	replacement := reflect.MakeFunc(original.Type(), spy.relayFor(original.Type()))

	handle, err := registry.Push(target, replacement, func() {
		spy.deactivate()

		if onRestore != nil {
			onRestore()
		}
	})
	if err != nil {
		return nil, err
	}

	spy.mu.Lock()
	spy.handle = handle
	spy.active = true
	spy.mu.Unlock()

	return spy, nil
}

// Name returns the spy's display name.
func (s *Spy) Name() string { return s.name }

// Call invokes the spy directly with the given arguments, records them, and
// returns whatever the configured behavior produces. Behaviors configured
// with Throws propagate as panics, like any other thrown error.
func (s *Spy) Call(args ...any) []any {
	return s.invoke(args)
}

// invoke appends the call record before the behavior runs, so call counts
// stay correct even when the behavior panics.
func (s *Spy) invoke(args []any) []any {
	s.mu.Lock()
	s.calls = append(s.calls, CallRecord{Args: args})
	index := s.behaviorCalls
	s.behaviorCalls++
	behavior := s.behavior
	s.mu.Unlock()

	if behavior == nil {
		return nil
	}

	return behavior(index, args)
}

// relayFor builds the reflect.MakeFunc implementation that funnels a typed
// call into the spy and converts the behavior's values back to the wrapped
// signature, zero-filling anything the behavior did not supply.
func (s *Spy) relayFor(fnType reflect.Type) func([]reflect.Value) []reflect.Value {
	return func(in []reflect.Value) []reflect.Value {
		out := s.invoke(unreflectValues(in))

		results := make([]reflect.Value, fnType.NumOut())
		for i := range results {
			outType := fnType.Out(i)

			if i >= len(out) || out[i] == nil {
				results[i] = reflect.Zero(outType)

				continue
			}

			value := reflect.ValueOf(out[i])
			if !value.Type().AssignableTo(outType) {
				panic(fmt.Sprintf(
					"%s: configured return value %d (%T) is not assignable to %s",
					s.name, i, out[i], outType))
			}

			results[i] = value
		}

		return results
	}
}

// setBehavior installs a new behavior slot. Reconfiguration resets the call
// index that sequenced behaviors select by.
func (s *Spy) setBehavior(behavior behaviorFunc) *Spy {
	s.mu.Lock()
	s.behavior = behavior
	s.behaviorCalls = 0
	s.mu.Unlock()

	return s
}

// sequence selects producer min(index, len-1) per call, so the last
// producer keeps serving once the sequence is exhausted.
func sequence(producers []Behavior) behaviorFunc {
	return func(index int, args []any) []any {
		if len(producers) == 0 {
			return nil
		}

		producer := producers[min(index, len(producers)-1)]
		if producer == nil {
			return nil
		}

		return producer(args...)
	}
}

// Calls installs the given producers as the spy's behavior, one per call
// index, saturating on the last. The zero-argument form installs a no-op.
func (s *Spy) Calls(producers ...Behavior) *Spy {
	return s.setBehavior(sequence(producers))
}

// Returns makes call i return value min(i, n-1).
func (s *Spy) Returns(values ...any) *Spy {
	producers := make([]Behavior, len(values))
	for i, value := range values {
		value := value
		producers[i] = func(...any) []any { return []any{value} }
	}

	return s.setBehavior(sequence(producers))
}

// Resolves is Returns with each value wrapped in an already-fulfilled
// Future. Without values, a single nil-fulfilled future is produced.
func (s *Spy) Resolves(values ...any) *Spy {
	if len(values) == 0 {
		values = []any{nil}
	}

	producers := make([]Behavior, len(values))
	for i, value := range values {
		value := value
		producers[i] = func(...any) []any { return []any{newResolvedFuture(value)} }
	}

	return s.setBehavior(sequence(producers))
}

// Rejects is Calls with each call producing a Future that settles as
// failed, using the normalized error. Without reasons, a single default
// rejection carrying the spy's name is produced.
func (s *Spy) Rejects(reasons ...any) *Spy {
	if len(reasons) == 0 {
		reasons = []any{nil}
	}

	producers := make([]Behavior, len(reasons))
	for i, reason := range reasons {
		err := normalizeError(reason, s.name)
		producers[i] = func(...any) []any { return []any{newRejectedFuture(err)} }
	}

	return s.setBehavior(sequence(producers))
}

// Throws makes every call panic with the normalized error.
func (s *Spy) Throws(reason any) *Spy {
	err := normalizeError(reason, s.name)

	return s.setBehavior(func(int, []any) []any { panic(err) })
}

// TransparentAfter keeps the previously configured behavior for the first
// threshold calls, then forwards to the original wrapped method. A spy
// without a registry handle becomes a no-op instead of forwarding.
func (s *Spy) TransparentAfter(threshold int) *Spy {
	s.mu.Lock()
	previous := s.behavior
	s.mu.Unlock()

	return s.setBehavior(func(index int, args []any) []any {
		if index < threshold {
			if previous == nil {
				return nil
			}

			return previous(index, args)
		}

		return s.callThrough(args)
	})
}

// Transparent forwards every call to the original wrapped method.
func (s *Spy) Transparent() *Spy {
	return s.TransparentAfter(0)
}

func (s *Spy) callThrough(args []any) []any {
	s.mu.Lock()
	registry, handle := s.registry, s.handle
	s.mu.Unlock()

	if registry == nil {
		return nil
	}

	original, ok := registry.OriginalValue(handle)
	if !ok {
		return nil
	}

	return callFunction(original, args)
}

// Configure updates the spy's settings. Requesting persistence on a spy
// that does not mock any object property is a configuration error.
func (s *Spy) Configure(config SpyConfig) error {
	s.mu.Lock()
	registry, handle := s.registry, s.handle

	if config.UseOwnEquals != nil {
		s.config.UseOwnEquals = *config.UseOwnEquals
	}

	if config.Persistent != nil && registry != nil && handle != 0 {
		s.config.Persistent = *config.Persistent
	}
	s.mu.Unlock()

	if config.Persistent != nil {
		if registry == nil || handle == 0 {
			return &ConfigurationError{Message: fmt.Sprintf(
				"%s can not be configured to be persistent because it does not mock any object property",
				s.name)}
		}

		registry.Persist(handle, *config.Persistent)
	}

	return nil
}

// Reset clears the call log. Behavior and registry state stay untouched.
func (s *Spy) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// Restore reinstates the original wrapped property. Restoring a persistent
// spy is an error; restoring a bare spy is a no-op.
func (s *Spy) Restore() error {
	s.mu.Lock()
	persistent := s.config.Persistent
	registry, handle := s.registry, s.handle
	s.mu.Unlock()

	if persistent {
		return &ConfigurationError{Message: fmt.Sprintf(
			"%s can not be restored while configured to be persistent", s.name)}
	}

	if registry == nil || handle == 0 {
		return nil
	}

	registry.Restore(handle)

	return nil
}

func (s *Spy) deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// isActive reports whether the spy currently replaces a live property.
func (s *Spy) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// GetCallCount returns the number of recorded calls.
func (s *Spy) GetCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

// GetCallArguments returns the arguments of the index-th call.
func (s *Spy) GetCallArguments(index int) ([]any, error) {
	calls := s.snapshot()

	if index < 0 || index >= len(calls) {
		return nil, assertionErrorf("%s has no call with index %d (the spy was called %d times)",
			s.name, index, len(calls))
	}

	return calls[index].Args, nil
}

// GetCallArgument returns one argument of the index-th call. The position
// defaults to 0; a position beyond the call's argument list yields nil
// rather than an error.
func (s *Spy) GetCallArgument(index int, position ...int) (any, error) {
	args, err := s.GetCallArguments(index)
	if err != nil {
		return nil, err
	}

	pos := 0
	if len(position) > 0 {
		pos = position[0]
	}

	if pos < 0 || pos >= len(args) {
		return nil, nil
	}

	return args[pos], nil
}

// WasCalled asserts that the spy was called at least once.
func (s *Spy) WasCalled() error {
	if s.GetCallCount() > 0 {
		return nil
	}

	return assertionErrorf("%s was never called!", s.name)
}

// WasCalledTimes asserts an exact call count.
func (s *Spy) WasCalledTimes(expected int) error {
	count := s.GetCallCount()
	if count == expected {
		return nil
	}

	return assertionErrorf("%s was called %d times, but there were expected %d calls.%s",
		s.name, count, expected, s.renderedLog())
}

// WasNotCalled asserts that the spy was never called.
func (s *Spy) WasNotCalled() error {
	count := s.GetCallCount()
	if count == 0 {
		return nil
	}

	return assertionErrorf("%s was called %d times, but there were expected 0 calls.%s",
		s.name, count, s.renderedLog())
}

// WasCalledWith asserts that at least one recorded call - not only the
// latest - matches the expected arguments with zero structural difference.
func (s *Spy) WasCalledWith(expected ...any) error {
	calls := s.snapshot()
	config := s.diffConfig()

	if len(calls) == 0 {
		return assertionErrorf(
			"%s was expected to be called with the following arguments:\n\n    %s\n\nbut it was never called!",
			s.name, renderArgs(expected))
	}

	annotations := make([]string, len(calls))

	for i, call := range calls {
		diff := Diff(call.Args, expected, config)
		if diff == "" {
			return nil
		}

		annotations[i] = diff
	}

	return assertionErrorf(
		"%s was expected to be called with the following arguments:\n\n    %s\n\nbut the actual calls were:\n\n%s",
		s.name, renderArgs(expected), s.showCalls(annotations))
}

// WasNotCalledWith asserts the opposite of WasCalledWith by catching
// exactly its counterpart's assertion failure and re-raising only if the
// counterpart unexpectedly succeeded.
func (s *Spy) WasNotCalledWith(expected ...any) error {
	err := s.WasCalledWith(expected...)
	if err == nil {
		return assertionErrorf(
			"%s was considered to be called unexpectedly with the following arguments: %s",
			s.name, renderArgs(expected))
	}

	var assertion *AssertionError
	if errors.As(err, &assertion) {
		return nil
	}

	return err
}

// HasCallHistory asserts the complete call history: same length, and zero
// structural difference at every index. Each bare expected value is
// treated as a single-argument call; pass []any{...} for multi-argument
// calls.
func (s *Spy) HasCallHistory(expected ...any) error {
	calls := s.snapshot()
	config := s.diffConfig()

	history := make([][]any, len(expected))

	for i, entry := range expected {
		if args, ok := entry.([]any); ok {
			history[i] = args
		} else {
			history[i] = []any{entry}
		}
	}

	if len(calls) != len(history) {
		return assertionErrorf(
			"%s was called %d times, but the expected call history contains %d calls.%s",
			s.name, len(calls), len(history), s.renderedLog())
	}

	annotations := make([]string, len(calls))
	mismatch := false

	for i := range history {
		if diff := Diff(calls[i].Args, history[i], config); diff != "" {
			annotations[i] = diff
			mismatch = true
		}
	}

	if !mismatch {
		return nil
	}

	return assertionErrorf(
		"%s was expected to have the following call history:\n\n%s\nbut the actual calls were:\n\n%s",
		s.name, renderHistory(history), s.showCalls(annotations))
}

// ShowCallArguments renders one line per recorded call in a deterministic
// textual form, each optionally followed by an annotation line.
func (s *Spy) ShowCallArguments(annotations ...string) string {
	return s.showCalls(annotations)
}

func (s *Spy) showCalls(annotations []string) string {
	calls := s.snapshot()
	if len(calls) == 0 {
		return ""
	}

	var builder strings.Builder

	for i, call := range calls {
		fmt.Fprintf(&builder, "call %d: %s\n", i, renderArgs(call.Args))

		if i < len(annotations) && annotations[i] != "" {
			fmt.Fprintf(&builder, "        %s\n", annotations[i])
		}
	}

	return builder.String()
}

func (s *Spy) renderedLog() string {
	log := s.showCalls(nil)
	if log == "" {
		return ""
	}

	return "\n\nrecent calls:\n" + log
}

func renderHistory(history [][]any) string {
	var builder strings.Builder
	for i, args := range history {
		fmt.Fprintf(&builder, "call %d: %s\n", i, renderArgs(args))
	}

	return builder.String()
}

func (s *Spy) snapshot() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]CallRecord, len(s.calls))
	copy(calls, s.calls)

	return calls
}

func (s *Spy) diffConfig() DiffConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return DiffConfig{UseOwnEquals: s.config.UseOwnEquals}
}

// callFunction invokes fn with args converted to its parameter types,
// zero-filling nil arguments. A call whose final argument is already the
// variadic slice (the shape relays record) is spread with CallSlice.
func callFunction(fn reflect.Value, args []any) []any {
	fnType := fn.Type()
	in := make([]reflect.Value, len(args))

	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(paramTypeAt(fnType, i))
		} else {
			in[i] = reflect.ValueOf(arg)
		}
	}

	if fnType.IsVariadic() && len(in) == fnType.NumIn() &&
		in[len(in)-1].Type() == fnType.In(fnType.NumIn()-1) {
		return unreflectValues(fn.CallSlice(in))
	}

	return unreflectValues(fn.Call(in))
}

func paramTypeAt(fnType reflect.Type, i int) reflect.Type {
	if fnType.IsVariadic() && i >= fnType.NumIn()-1 {
		return fnType.In(fnType.NumIn() - 1).Elem()
	}

	return fnType.In(i)
}

// unreflectValues returns the actual values of the reflected values.
func unreflectValues(rValues []reflect.Value) []any {
	if len(rValues) == 0 {
		return nil
	}

	values := []any{}

	for i := range rValues {
		values = append(values, rValues[i].Interface())
	}

	return values
}
