package core

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// maxRenderDepth caps rendering of deeply nested values. Anything below the
// cap renders as an ellipsis rather than blowing up the failure message.
const maxRenderDepth = 8

// renderArgs renders an argument list in a deterministic textual form.
// Determinism matters because this output is embedded in failure messages
// that tests may assert on; %#v would leak Go's random map ordering.
func renderArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = renderValue(a)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

func renderValue(v any) string {
	return render(reflect.ValueOf(v), map[uintptr]bool{}, 0)
}

//nolint:cyclop // one case per rendered kind reads better than a dispatch table
func render(v reflect.Value, visited map[uintptr]bool, depth int) string {
	if !v.IsValid() {
		return "nil"
	}

	if depth > maxRenderDepth {
		return "…"
	}

	// Leaf types with an established textual form come first.
	switch val := valueInterface(v); val.(type) {
	case *regexp.Regexp:
		return "/" + val.(*regexp.Regexp).String() + "/"
	case time.Time:
		return val.(time.Time).Format(time.RFC3339Nano)
	}

	switch v.Kind() {
	case reflect.String:
		return strconv.Quote(v.String())
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%v", v)
	case reflect.Func:
		if v.IsNil() {
			return "nil"
		}

		return v.Type().String()
	case reflect.Chan, reflect.UnsafePointer:
		return v.Type().String()
	case reflect.Interface:
		if v.IsNil() {
			return "nil"
		}

		return render(v.Elem(), visited, depth)
	case reflect.Pointer:
		if v.IsNil() {
			return "nil"
		}

		if visited[v.Pointer()] {
			return "<cycle>"
		}

		visited[v.Pointer()] = true
		defer delete(visited, v.Pointer())

		return "&" + render(v.Elem(), visited, depth)
	case reflect.Slice, reflect.Array:
		return renderSequence(v, visited, depth)
	case reflect.Map:
		return renderMap(v, visited, depth)
	case reflect.Struct:
		return renderStruct(v, visited, depth)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderSequence(v reflect.Value, visited map[uintptr]bool, depth int) string {
	if v.Kind() == reflect.Slice {
		if v.IsNil() {
			return "nil"
		}

		if visited[v.Pointer()] {
			return "<cycle>"
		}

		visited[v.Pointer()] = true
		defer delete(visited, v.Pointer())
	}

	parts := make([]string, v.Len())
	for i := 0; i < v.Len(); i++ {
		parts[i] = render(v.Index(i), visited, depth+1)
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// renderMap renders entries sorted by rendered key, since Go map iteration
// order is randomized.
func renderMap(v reflect.Value, visited map[uintptr]bool, depth int) string {
	if v.IsNil() {
		return "nil"
	}

	if visited[v.Pointer()] {
		return "<cycle>"
	}

	visited[v.Pointer()] = true
	defer delete(visited, v.Pointer())

	entries := make([]string, 0, v.Len())
	iter := v.MapRange()

	for iter.Next() {
		entries = append(entries,
			render(iter.Key(), visited, depth+1)+": "+render(iter.Value(), visited, depth+1))
	}

	sort.Strings(entries)

	return "{" + strings.Join(entries, ", ") + "}"
}

func renderStruct(v reflect.Value, visited map[uintptr]bool, depth int) string {
	t := v.Type()
	parts := []string{}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		parts = append(parts, field.Name+": "+render(v.Field(i), visited, depth+1))
	}

	return t.Name() + "{" + strings.Join(parts, ", ") + "}"
}

// valueInterface returns v's value as any, or nil when the value cannot be
// interfaced (unexported fields).
func valueInterface(v reflect.Value) any {
	if !v.CanInterface() {
		return nil
	}

	return v.Interface()
}
