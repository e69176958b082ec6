package openapi

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// TypeMapping maps a Go kind to an OpenAPI type/format pair.
type TypeMapping struct {
	Type   string // OpenAPI type: string, integer, number, boolean, object, array
	Format string // OpenAPI format: int32, int64, float, double, date-time, byte
}

var kindToOpenAPI = map[reflect.Kind]TypeMapping{
	reflect.Bool:    {"boolean", ""},
	reflect.Int:     {"integer", "int64"},
	reflect.Int8:    {"integer", "int32"},
	reflect.Int16:   {"integer", "int32"},
	reflect.Int32:   {"integer", "int32"},
	reflect.Int64:   {"integer", "int64"},
	reflect.Uint:    {"integer", "int64"},
	reflect.Uint8:   {"integer", "int32"},
	reflect.Uint16:  {"integer", "int32"},
	reflect.Uint32:  {"integer", "int64"},
	reflect.Uint64:  {"integer", "int64"},
	reflect.Float32: {"number", "float"},
	reflect.Float64: {"number", "double"},
	reflect.String:  {"string", ""},
}

var (
	timeType          = reflect.TypeOf(time.Time{})
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// MapKind returns the OpenAPI mapping of a scalar Go type. Types that
// marshal themselves (time.Time, decimals) map to strings.
func MapKind(t reflect.Type) (TypeMapping, bool) {
	switch {
	case t == timeType:
		return TypeMapping{"string", "date-time"}, true
	case t.Implements(jsonMarshalerType), t.Implements(textMarshalerType):
		return TypeMapping{"string", ""}, true
	}
	m, ok := kindToOpenAPI[t.Kind()]
	return m, ok
}

// SchemaOf derives a schema from a Go value's type, following its json
// struct tags.
func SchemaOf(v interface{}) *openapi3.SchemaRef {
	return schemaFor(reflect.TypeOf(v))
}

func schemaFor(t reflect.Type) *openapi3.SchemaRef {
	nullable := false
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
		nullable = true
	}

	s := &openapi3.Schema{Nullable: nullable}
	if m, ok := MapKind(t); ok {
		s.Type = &openapi3.Types{m.Type}
		s.Format = m.Format
		return &openapi3.SchemaRef{Value: s}
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			s.Type = &openapi3.Types{"string"}
			s.Format = "byte"
			break
		}
		s.Type = &openapi3.Types{"array"}
		s.Items = schemaFor(t.Elem())
	case reflect.Map:
		s.Type = &openapi3.Types{"object"}
		s.AdditionalProperties = openapi3.AdditionalProperties{Schema: schemaFor(t.Elem())}
	case reflect.Struct:
		s.Type = &openapi3.Types{"object"}
		s.Properties = openapi3.Schemas{}
		addFields(s, t)
	default:
		// interface{} and anything else: any JSON value
	}
	return &openapi3.SchemaRef{Value: s}
}

func addFields(s *openapi3.Schema, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			addFields(s, f.Type)
			continue
		}
		if name == "" {
			name = f.Name
		}
		s.Properties[name] = schemaFor(f.Type)
		if !strings.Contains(opts, "omitempty") && f.Type.Kind() != reflect.Ptr {
			s.Required = append(s.Required, name)
		}
	}
}
