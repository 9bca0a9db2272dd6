package openapi

import (
	"reflect"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// TypeMapping is an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object, array
	Format string // OpenAPI format: int32, int64, float, double, date-time, etc.
}

var timeType = reflect.TypeOf(time.Time{})

// goTypeToOpenAPI maps a Go field type to its OpenAPI representation.
// Pointers map to their element type.
func goTypeToOpenAPI(t reflect.Type) TypeMapping {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return TypeMapping{"string", "date-time"}
	}
	switch t.Kind() {
	case reflect.Bool:
		return TypeMapping{"boolean", ""}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Int, reflect.Uint:
		return TypeMapping{"integer", "int32"}
	case reflect.Int64, reflect.Uint32, reflect.Uint64:
		return TypeMapping{"integer", "int64"}
	case reflect.Float32:
		return TypeMapping{"number", "float"}
	case reflect.Float64:
		return TypeMapping{"number", "double"}
	case reflect.String:
		return TypeMapping{"string", ""}
	case reflect.Slice, reflect.Array:
		return TypeMapping{"array", ""}
	default:
		return TypeMapping{"object", ""}
	}
}

// structSchema builds an object schema from the exported, JSON-visible
// fields of v. Pointer fields are nullable. Fields named in readOnly are
// marked read-only.
func structSchema(v interface{}, readOnly ...string) *openapi3.SchemaRef {
	ro := make(map[string]bool, len(readOnly))
	for _, name := range readOnly {
		ro[name] = true
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	props := openapi3.Schemas{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		s := columnTypeSchema(goTypeToOpenAPI(f.Type))
		if f.Type.Kind() == reflect.Pointer {
			s.Nullable = true
		}
		s.ReadOnly = ro[name]
		props[name] = &openapi3.SchemaRef{Value: s}
	}

	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
		},
	}
}

// columnTypeSchema creates a schema from a TypeMapping.
func columnTypeSchema(m TypeMapping) *openapi3.Schema {
	s := &openapi3.Schema{Type: &openapi3.Types{m.Type}}
	if m.Format != "" {
		s.Format = m.Format
	}
	return s
}
