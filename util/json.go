// util/json.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// UnmarshalJSONBytes unmarshals b into out; syntax and type errors are
// reported with the line and character where they occurred.
func UnmarshalJSONBytes[T any](b []byte, out *T) error {
	err := json.Unmarshal(b, out)
	if err == nil {
		return nil
	}

	position := func(offset int64) (line, char int) {
		line, char = 1, 1
		for i := 0; i < int(offset) && i < len(b); i++ {
			if b[i] == '\n' {
				line++
				char = 1
			} else {
				char++
			}
		}
		return
	}

	var serr *json.SyntaxError
	var terr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &serr):
		line, char := position(serr.Offset)
		return fmt.Errorf("line %d, character %d: %w", line, char, err)
	case errors.As(err, &terr):
		line, char := position(terr.Offset)
		return fmt.Errorf("line %d, character %d: %s value for %q invalid for type %s: %w",
			line, char, terr.Value, terr.Field, terr.Type, err)
	default:
		return err
	}
}

// CheckJSON checks that contents is valid JSON and that every object key
// in it names a field of the corresponding part of T, recording a problem
// in e for each unknown key (which is almost always a misspelling that
// encoding/json would silently ignore).
func CheckJSON[T any](contents []byte, e *ErrorLogger) {
	var items any
	if err := UnmarshalJSONBytes(contents, &items); err != nil {
		e.Error(err)
		return
	}

	ty := reflect.TypeOf((*T)(nil)).Elem()
	checkJSONKeys(items, ty, e)
}

func checkJSONKeys(v any, ty reflect.Type, e *ErrorLogger) {
	for ty.Kind() == reflect.Pointer {
		ty = ty.Elem()
	}

	switch ty.Kind() {
	case reflect.Array, reflect.Slice:
		if array, ok := v.([]any); ok {
			for i, item := range array {
				e.Push(fmt.Sprintf("[%d]", i))
				checkJSONKeys(item, ty.Elem(), e)
				e.Pop()
			}
		} else if v != nil {
			e.ErrorString("expected an array, got %T", v)
		}

	case reflect.Map:
		if m, ok := v.(map[string]any); ok {
			for _, k := range SortedMapKeys(m) {
				e.Push(k)
				checkJSONKeys(m[k], ty.Elem(), e)
				e.Pop()
			}
		} else if v != nil {
			e.ErrorString("expected an object, got %T", v)
		}

	case reflect.Struct:
		items, ok := v.(map[string]any)
		if !ok {
			if v != nil {
				e.ErrorString("expected an object, got %T", v)
			}
			return
		}

		fields := make(map[string]reflect.Type)
		for _, field := range reflect.VisibleFields(ty) {
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag, ok := field.Tag.Lookup("json"); ok {
				if n, _, _ := strings.Cut(tag, ","); n == "-" {
					continue
				} else if n != "" {
					name = n
				}
			}
			fields[name] = field.Type
		}

		for _, item := range SortedMapKeys(items) {
			if fty, ok := fields[item]; ok {
				e.Push(item)
				checkJSONKeys(items[item], fty, e)
				e.Pop()
			} else {
				e.ErrorString("the entry %q is not an expected JSON object. Is it misspelled?", item)
			}
		}
	}
}
