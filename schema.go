// Datatype declarations and schema derivation.

package docdb

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// Datatype is a declared column datatype: one of the fixed primitives or
// "LIST OF <primitive>".
type Datatype string

// The supported primitive datatypes.
const (
	Text    Datatype = "TEXT"
	Numeric Datatype = "NUMERIC"
	Decimal Datatype = "DECIMAL"
)

const listOfPrefix = "LIST OF "

// primitives lists the valid primitive names, used as suggestion candidates
// in UnknownDatatypeError.
var primitives = []string{string(Text), string(Numeric), string(Decimal)}

// ListOf returns the list datatype for a primitive element type.
func ListOf(elem Datatype) Datatype {
	return Datatype(listOfPrefix + string(elem))
}

// ParseDatatype validates a declared datatype string.
func ParseDatatype(s string) (Datatype, error) {
	if elem, ok := strings.CutPrefix(s, listOfPrefix); ok {
		if !isPrimitive(elem) {
			return "", &UnknownDatatypeError{Type: elem, Valid: primitives}
		}
		return Datatype(s), nil
	}
	if !isPrimitive(s) {
		return "", &UnknownDatatypeError{Type: s, Valid: primitives}
	}
	return Datatype(s), nil
}

func isPrimitive(s string) bool {
	switch Datatype(s) {
	case Text, Numeric, Decimal:
		return true
	}
	return false
}

// IsList reports whether the datatype is a "LIST OF <primitive>" form.
func (d Datatype) IsList() bool {
	return strings.HasPrefix(string(d), listOfPrefix)
}

// Elem returns the element type of a list datatype, or d itself otherwise.
func (d Datatype) Elem() Datatype {
	return Datatype(strings.TrimPrefix(string(d), listOfPrefix))
}

// Check reports whether v conforms to the datatype. It accepts the value
// shapes produced by encoding/json (string, float64, []any) as well as the
// native Go equivalents, since rows round-trip through the snapshot file.
func (d Datatype) Check(column string, v any) error {
	if v == nil {
		return nil
	}
	if d.IsList() {
		elem := d.Elem()
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return &WrongDataTypeError{Column: column, Want: d, Got: v}
		}
		for i := 0; i < rv.Len(); i++ {
			if err := elem.Check(column, rv.Index(i).Interface()); err != nil {
				return &WrongDataTypeError{Column: column, Want: d, Got: v}
			}
		}
		return nil
	}
	switch d {
	case Text:
		if _, ok := v.(string); ok {
			return nil
		}
	case Numeric:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return nil
		case float64:
			// JSON numbers decode as float64; accept whole values.
			if n == float64(int64(n)) {
				return nil
			}
		}
	case Decimal:
		switch v.(type) {
		case float32, float64:
			return nil
		}
	}
	return &WrongDataTypeError{Column: column, Want: d, Got: v}
}

// Column declares a single table column.
type Column struct {
	Name string
	Type Datatype
}

// ColumnsOf derives a column schema from a struct type using JSON Schema
// reflection. Field order follows declaration order; names follow json
// struct tags. Strings map to TEXT, integers to NUMERIC, floats to DECIMAL,
// and slices of those to the matching LIST OF form.
func ColumnsOf[T any]() ([]Column, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	// Inline all properties so field order and names come straight from the
	// generated schema.
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(t)

	var columns []Column
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		name := pair.Key
		colType := Text
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if jsonFieldName(&field) == name {
				var err error
				if colType, err = goTypeToDatatype(field.Type); err != nil {
					return nil, fmt.Errorf("field %s: %w", field.Name, err)
				}
				break
			}
		}
		columns = append(columns, Column{Name: name, Type: colType})
	}
	return columns, nil
}

// jsonFieldName returns the effective JSON name of a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func goTypeToDatatype(t reflect.Type) (Datatype, error) {
	switch t.Kind() {
	case reflect.String:
		return Text, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Numeric, nil
	case reflect.Float32, reflect.Float64:
		return Decimal, nil
	case reflect.Slice, reflect.Array:
		elem, err := goTypeToDatatype(t.Elem())
		if err != nil {
			return "", err
		}
		if elem.IsList() {
			return "", fmt.Errorf("nested lists are not supported")
		}
		return ListOf(elem), nil
	default:
		return "", fmt.Errorf("unsupported field type %s", t)
	}
}
