package automa

import (
	"reflect"

	"github.com/mohae/deepcopy"
)

// copyValue deep-copies an output cell value on read so downstream workers
// cannot alias a producer's data. Channels and functions pass through
// untouched, which keeps streamed results opaque to the engine.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Chan, reflect.Func:
		return v
	}
	return deepcopy.Copy(v)
}

// asSlice views v as []any when it is a slice of any element type.
func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
