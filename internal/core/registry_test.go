package core

import (
	"reflect"
	"testing"

	. "github.com/onsi/gomega"
	"pgregory.net/rapid"
)

type clockService struct {
	Now  func() string
	Zone func() string
}

func newClockService() *clockService {
	return &clockService{
		Now:  func() string { return "now" },
		Zone: func() string { return "zone" },
	}
}

// TestResolveSlot_StructField verifies a func-typed field on a struct
// pointer resolves to a writable slot.
func TestResolveSlot_StructField(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	service := newClockService()
	target, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	replacement := func() string { return "replaced" }
	target.set(reflect.ValueOf(replacement))
	g.Expect(service.Now()).To(Equal("replaced"))
}

// TestResolveSlot_UnknownField verifies the error for a missing field.
func TestResolveSlot_UnknownField(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := resolveSlot(newClockService(), "Missing")
	g.Expect(err).To(MatchError(ContainSubstring("has no such field")))
}

// TestResolveSlot_MapEntry verifies a string-keyed map entry resolves to a
// writable slot.
func TestResolveSlot_MapEntry(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	table := map[string]func() int{"Answer": func() int { return 42 }}
	target, err := resolveSlot(table, "Answer")
	g.Expect(err).NotTo(HaveOccurred())

	target.set(reflect.ValueOf(func() int { return 7 }))
	g.Expect(table["Answer"]()).To(Equal(7))
}

// TestResolveSlot_PointerEntry verifies a map entry holding a pointer to a
// function variable resolves to the pointed-to variable, so rewiring is
// visible at call sites that go through the variable.
func TestResolveSlot_PointerEntry(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	variable := func() string { return "original" }
	exports := map[string]any{"Greet": &variable}

	target, err := resolveSlot(exports, "Greet")
	g.Expect(err).NotTo(HaveOccurred())

	target.set(reflect.ValueOf(func() string { return "rewired" }))
	g.Expect(variable()).To(Equal("rewired"))
}

// TestResolveSlot_UnsupportedContainers verifies the errors for nil and
// non-container targets.
func TestResolveSlot_UnsupportedContainers(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	_, err := resolveSlot(nil, "Now")
	g.Expect(err).To(MatchError(ContainSubstring("the target container is nil")))

	_, err = resolveSlot(42, "Now")
	g.Expect(err).To(MatchError(ContainSubstring("unsupported container type")))

	_, err = resolveSlot(map[string]int{}, "Now")
	g.Expect(err).To(MatchError(ContainSubstring("the map has no such entry")))
}

// TestRegistry_PushAndRestore verifies Push installs the replacement,
// Restore reinstates the exact original, and handles start at 1.
func TestRegistry_PushAndRestore(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	registry := NewRegistry()
	service := newClockService()
	original := service.Now

	target, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	handle, err := registry.Push(target, reflect.ValueOf(func() string { return "spy" }), nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(handle).To(Equal(1))
	g.Expect(service.Now()).To(Equal("spy"))

	stored, ok := registry.OriginalValue(handle)
	g.Expect(ok).To(BeTrue())
	g.Expect(stored.Pointer()).To(Equal(reflect.ValueOf(original).Pointer()),
		"the stored original is the exact replaced function")

	registry.Restore(handle)
	g.Expect(service.Now()).To(Equal("now"))

	_, ok = registry.OriginalValue(handle)
	g.Expect(ok).To(BeFalse(), "restored handles no longer expose the original")
}

// TestRegistry_DuplicatePush verifies a slot that already carries an active
// entry rejects a second push instead of overwriting it.
func TestRegistry_DuplicatePush(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	registry := NewRegistry()
	service := newClockService()

	first, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	_, err = registry.Push(first, reflect.ValueOf(func() string { return "a" }), nil)
	g.Expect(err).NotTo(HaveOccurred())

	second, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	_, err = registry.Push(second, reflect.ValueOf(func() string { return "b" }), nil)
	g.Expect(err).To(MatchError(`there is already an active spy on "Now"`))
}

// TestRegistry_DoubleRestore verifies restoring an already-restored handle
// is a no-op and fires the callback only once.
func TestRegistry_DoubleRestore(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	registry := NewRegistry()
	service := newClockService()
	fired := 0

	target, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	handle, err := registry.Push(target, reflect.ValueOf(func() string { return "spy" }), func() {
		fired++
	})
	g.Expect(err).NotTo(HaveOccurred())

	registry.Restore(handle)
	registry.Restore(handle)
	registry.Restore(999)

	g.Expect(fired).To(Equal(1))
	g.Expect(service.Now()).To(Equal("now"))
}

// TestRegistry_RestoreAllSkipsPersistent verifies bulk restore runs in
// registration order and leaves persistent entries mutated.
func TestRegistry_RestoreAllSkipsPersistent(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	registry := NewRegistry()
	service := newClockService()

	nowSlot, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())
	nowHandle, err := registry.Push(nowSlot, reflect.ValueOf(func() string { return "spy-now" }), nil)
	g.Expect(err).NotTo(HaveOccurred())

	zoneSlot, err := resolveSlot(service, "Zone")
	g.Expect(err).NotTo(HaveOccurred())
	_, err = registry.Push(zoneSlot, reflect.ValueOf(func() string { return "spy-zone" }), nil)
	g.Expect(err).NotTo(HaveOccurred())

	registry.Persist(nowHandle, true)
	registry.RestoreAll()

	g.Expect(service.Now()).To(Equal("spy-now"), "persistent entries survive bulk restore")
	g.Expect(service.Zone()).To(Equal("zone"))

	registry.Persist(nowHandle, false)
	registry.RestoreAll()
	g.Expect(service.Now()).To(Equal("now"))
}

// TestRegistry_ReusableAfterRestore verifies a restored slot accepts a new
// push and the new handle never reuses an old one.
func TestRegistry_ReusableAfterRestore(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	registry := NewRegistry()
	service := newClockService()

	target, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	first, err := registry.Push(target, reflect.ValueOf(func() string { return "a" }), nil)
	g.Expect(err).NotTo(HaveOccurred())
	registry.Restore(first)

	again, err := resolveSlot(service, "Now")
	g.Expect(err).NotTo(HaveOccurred())

	second, err := registry.Push(again, reflect.ValueOf(func() string { return "b" }), nil)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(second).To(Equal(first + 1))
}

// TestRegistry_MonotonicHandles_Rapid checks that handles count up from 1
// across any interleaving of pushes and restores.
func TestRegistry_MonotonicHandles_Rapid(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		registry := NewRegistry()
		table := map[string]func() int{}
		count := rapid.IntRange(1, 20).Draw(rt, "count")
		next := 1

		for i := 0; i < count; i++ {
			i := i
			key := "fn" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			table[key] = func() int { return i }

			target, err := resolveSlot(table, key)
			if err != nil {
				rt.Fatalf("resolve %q: %v", key, err)
			}

			handle, err := registry.Push(target, reflect.ValueOf(func() int { return -1 }), nil)
			if err != nil {
				rt.Fatalf("push %q: %v", key, err)
			}

			if handle != next {
				rt.Fatalf("expected handle %d, got %d", next, handle)
			}
			next++

			if rapid.Bool().Draw(rt, "restore") {
				registry.Restore(handle)
			}
		}
	})
}
