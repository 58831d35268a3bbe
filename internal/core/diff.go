package core

import (
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/akedrou/textdiff"
)

// DiffConfig controls how Diff compares values.
type DiffConfig struct {
	// UseOwnEquals delegates comparison to a value's own Equal method when
	// it exposes one (the time.Time convention).
	UseOwnEquals bool
}

// Matcher defines the interface for flexible value matching.
// Compatible with gomega.GomegaMatcher via duck typing - any type
// implementing Match and FailureMessage will work.
type Matcher interface {
	Match(actual any) (success bool, err error)
	FailureMessage(actual any) string
}

// Diff compares two values structurally and returns a description of the
// first difference found, or the empty string when the values are equal.
// The description carries the path to the mismatch, so the same inputs
// always yield the same message.
func Diff(a, b any, config DiffConfig) string {
	return diffValue(a, b, config, map[uintptr]bool{}, nil)
}

// value classes group Go kinds the way the comparison rules see them:
// all numeric kinds compare by mathematical value, slices and arrays are
// both sequences, and so on.
type valueClass int

const (
	classBool valueClass = iota
	classNumber
	classComplex
	classString
	classRegexp
	classTime
	classFunc
	classSequence
	classMap
	classStruct
	classPointer
	classOther
)

func (c valueClass) String() string {
	switch c {
	case classBool:
		return "bool"
	case classNumber:
		return "number"
	case classComplex:
		return "complex"
	case classString:
		return "string"
	case classRegexp:
		return "regexp"
	case classTime:
		return "time"
	case classFunc:
		return "function"
	case classSequence:
		return "sequence"
	case classMap:
		return "map"
	case classStruct:
		return "struct"
	case classPointer:
		return "pointer"
	default:
		return "value"
	}
}

//nolint:cyclop,funlen // the ordered rule chain is clearer in one place
func diffValue(a, b any, config DiffConfig, visited map[uintptr]bool, path []string) string {
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)

	// 1. identical by value or reference
	if identical(va, vb) {
		return ""
	}

	// expected values may be matchers; they take over the comparison
	if matcher, ok := b.(Matcher); ok {
		return matchWith(matcher, a, path)
	}

	// 2. exactly one side nil
	aNil, bNil := isNilValue(va), isNilValue(vb)
	if aNil && bNil {
		return ""
	}

	if aNil != bNil {
		return withPath(path, "null or undefined did not match")
	}

	// 3. differing runtime type class
	classA := typeClass(va)
	if classB := typeClass(vb); classA != classB {
		return withPath(path, "different object types")
	}

	// 4. class-specific leaf rules
	switch classA {
	case classRegexp:
		if a.(*regexp.Regexp).String() == b.(*regexp.Regexp).String() {
			return ""
		}

		return withPath(path, "different regexp")
	case classString:
		return withPath(path, stringMismatch(va.String(), vb.String()))
	case classNumber:
		return diffNumber(va, vb, path)
	case classTime:
		if a.(time.Time).Equal(b.(time.Time)) {
			return ""
		}

		return withPath(path, "different time")
	case classBool:
		// the identity check already excluded equal booleans
		return withPath(path, "different bool")
	case classFunc:
		return withPath(path, "different function")
	case classComplex, classOther:
		if va.Type() != vb.Type() {
			return withPath(path, "different constructor")
		}

		return withPath(path, "different "+classA.String())
	case classSequence, classMap, classStruct, classPointer:
	}

	// 5. default path: constructors, then key counts
	if va.Type() != vb.Type() {
		return withPath(path, "different constructor")
	}

	if classA == classSequence || classA == classMap {
		if va.Len() != vb.Len() {
			return withPath(path, "different key length")
		}
	}

	// 6. own equality capability
	if config.UseOwnEquals {
		if equal, ok := ownEquals(va, vb); ok {
			if equal {
				return ""
			}

			return withPath(path,
				"own Equal method reported a mismatch (set useOwnEquals to false to compare structurally)")
		}
	}

	// 7. cycle guard: a left-hand value already under comparison is
	// treated as equal on revisit. Deliberately loose - it can mask
	// divergence between distinct but structurally similar cyclic graphs.
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if visited[va.Pointer()] {
			return ""
		}

		visited[va.Pointer()] = true
	default:
	}

	// 8. recurse per own key
	switch classA {
	case classPointer:
		return diffValue(va.Elem().Interface(), vb.Elem().Interface(), config, visited, path)
	case classSequence:
		return diffSequence(va, vb, config, visited, path)
	case classMap:
		return diffMap(va, vb, config, visited, path)
	case classStruct:
		return diffStruct(va, vb, config, visited, path)
	default:
		return withPath(path, "different "+classA.String())
	}
}

func diffNumber(va, vb reflect.Value, path []string) string {
	numA, numB := toFloat(va), toFloat(vb)
	if math.IsNaN(numA) && math.IsNaN(numB) {
		return ""
	}

	if numA == numB {
		return ""
	}

	return withPath(path, "different number")
}

func diffSequence(va, vb reflect.Value, config DiffConfig, visited map[uintptr]bool, path []string) string {
	for i := 0; i < va.Len(); i++ {
		diff := diffValue(
			va.Index(i).Interface(), vb.Index(i).Interface(),
			config, visited, append(path, strconv.Itoa(i)),
		)
		if diff != "" {
			return diff
		}
	}

	return ""
}

func diffMap(va, vb reflect.Value, config DiffConfig, visited map[uintptr]bool, path []string) string {
	keys := va.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return renderValue(keys[i].Interface()) < renderValue(keys[j].Interface())
	})

	for _, key := range keys {
		keyPath := append(path, renderValue(key.Interface()))
		other := vb.MapIndex(key)

		if !other.IsValid() {
			return withPath(keyPath, "null or undefined did not match")
		}

		diff := diffValue(
			va.MapIndex(key).Interface(), other.Interface(),
			config, visited, keyPath,
		)
		if diff != "" {
			return diff
		}
	}

	return ""
}

func diffStruct(va, vb reflect.Value, config DiffConfig, visited map[uintptr]bool, path []string) string {
	t := va.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		diff := diffValue(
			va.Field(i).Interface(), vb.Field(i).Interface(),
			config, visited, append(path, field.Name),
		)
		if diff != "" {
			return diff
		}
	}

	return ""
}

func matchWith(matcher Matcher, actual any, path []string) string {
	success, err := matcher.Match(actual)
	if err != nil {
		return withPath(path, err.Error())
	}

	if success {
		return ""
	}

	return withPath(path, matcher.FailureMessage(actual))
}

// stringMismatch reports a string difference, embedding a unified diff for
// multi-line content where a single "different string" is useless.
func stringMismatch(actual, expected string) string {
	msg := "different string"

	if strings.Contains(actual, "\n") || strings.Contains(expected, "\n") {
		if unified := textdiff.Unified("actual", "expected", actual, expected); unified != "" {
			msg += "\n" + unified
		}
	}

	return msg
}

func withPath(path []string, msg string) string {
	if len(path) == 0 {
		return msg
	}

	parts := make([]string, len(path))
	copy(parts, path)
	parts[0] = "-->" + parts[0]

	return strings.Join(parts, " / ") + " / " + msg
}

// identical reports equality by value for comparable types and by
// reference for pointers, maps, funcs, channels, and slices.
func identical(va, vb reflect.Value) bool {
	if !va.IsValid() && !vb.IsValid() {
		return true
	}

	if !va.IsValid() || !vb.IsValid() {
		return false
	}

	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Len() == vb.Len() && (va.Len() == 0 || va.Pointer() == vb.Pointer())
	default:
	}

	if va.Comparable() {
		return va.Equal(vb)
	}

	return false
}

func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface,
		reflect.UnsafePointer:
		return v.IsNil()
	default:
		return false
	}
}

//nolint:cyclop // kind bucketing is a flat switch by nature
func typeClass(v reflect.Value) valueClass {
	switch valueInterface(v).(type) {
	case *regexp.Regexp:
		return classRegexp
	case time.Time:
		return classTime
	}

	switch v.Kind() {
	case reflect.Bool:
		return classBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return classNumber
	case reflect.Complex64, reflect.Complex128:
		return classComplex
	case reflect.String:
		return classString
	case reflect.Func:
		return classFunc
	case reflect.Slice, reflect.Array:
		return classSequence
	case reflect.Map:
		return classMap
	case reflect.Struct:
		return classStruct
	case reflect.Pointer:
		return classPointer
	default:
		return classOther
	}
}

func toFloat(v reflect.Value) float64 {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

// ownEquals invokes a's own Equal method against b when one exists with a
// compatible signature. The second return reports whether delegation
// happened at all.
func ownEquals(va, vb reflect.Value) (equal, ok bool) {
	method := va.MethodByName("Equal")

	if !method.IsValid() {
		// methods with pointer receivers need an addressable copy
		ptr := reflect.New(va.Type())
		ptr.Elem().Set(va)
		method = ptr.MethodByName("Equal")
	}

	if !method.IsValid() {
		return false, false
	}

	t := method.Type()
	if t.NumIn() != 1 || t.NumOut() != 1 || t.Out(0).Kind() != reflect.Bool {
		return false, false
	}

	if !vb.Type().AssignableTo(t.In(0)) {
		return false, false
	}

	return method.Call([]reflect.Value{vb})[0].Bool(), true
}
