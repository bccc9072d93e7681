package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validatable is implemented by external argument structs that declare
// constraints beyond the JSON Schema (non-blank fields, active enum
// membership). It runs after schema validation on the unmarshaled value.
type Validatable interface {
	Validate() error
}

// ArgSchema validates raw tool-call arguments against the external schema
// of argument type T. The schema is strict: every property is required and
// unknown properties are rejected, so "optional" is expressed as a nullable
// field, matching structured-output formats that forbid field omission.
//
// ParseAndValidate is side-effect free and never touches storage or the
// dispatcher.
type ArgSchema[T any] struct {
	toolName  string
	schemaMap map[string]any
	resolved  *jsonschema.Resolved
}

// NewArgSchema generates and compiles the schema for T. toolName scopes
// validation messages to the tool.
func NewArgSchema[T any](toolName string) (*ArgSchema[T], error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("generate schema for %s: %w", toolName, err)
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", toolName, err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, fmt.Errorf("decode schema for %s: %w", toolName, err)
	}

	var zero T
	allowNullForPointerFields(schemaMap, reflect.TypeOf(zero))
	applyStrictMode(schemaMap)

	resolved, err := compileSchemaMap(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", toolName, err)
	}
	return &ArgSchema[T]{toolName: toolName, schemaMap: schemaMap, resolved: resolved}, nil
}

// MustArgSchema is NewArgSchema that panics on error. Tool schemas are
// built from static struct types at startup, so a failure is a programming
// error.
func MustArgSchema[T any](toolName string) *ArgSchema[T] {
	s, err := NewArgSchema[T](toolName)
	if err != nil {
		panic(err)
	}
	return s
}

// Schema returns the JSON Schema map, e.g. for exporting the tool
// definition to the agent runtime. Callers must not mutate it.
func (s *ArgSchema[T]) Schema() map[string]any { return s.schemaMap }

// ParseAndValidate deserializes raw against the declared schema and runs
// declared field constraints. Parse failures yield a malformed-input error,
// rule failures a constraint violation; both carry a tool-scoped message
// the model can act on.
func (s *ArgSchema[T]) ParseAndValidate(raw json.RawMessage) (T, error) {
	var zero T
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, MalformedInput(s.toolName, err)
	}
	if err := s.resolved.Validate(v); err != nil {
		return zero, ConstraintViolation(s.toolName, err.Error(), err)
	}
	var args T
	if err := json.Unmarshal(raw, &args); err != nil {
		return zero, MalformedInput(s.toolName, err)
	}
	if err := runDeclaredConstraints(args); err != nil {
		return zero, ConstraintViolation(s.toolName, err.Error(), err)
	}
	return args, nil
}

func runDeclaredConstraints(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	// Pointer-receiver Validate on a value-typed T.
	rv := reflect.ValueOf(args)
	if rv.Kind() != reflect.Pointer {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		if v, ok := p.Interface().(Validatable); ok {
			return v.Validate()
		}
	}
	return nil
}

// allowNullForPointerFields rewrites top-level properties backed by pointer
// struct fields to also accept null, so a nullable field can be sent
// explicitly instead of omitted.
func allowNullForPointerFields(schemaMap map[string]any, typ reflect.Type) {
	if typ == nil {
		return
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return
	}
	props, ok := schemaMap["properties"].(map[string]any)
	if !ok {
		return
	}
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Type.Kind() != reflect.Pointer {
			continue
		}
		name := jsonPropertyName(field)
		if name == "" {
			continue
		}
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		props[name] = map[string]any{"anyOf": []any{prop, map[string]any{"type": "null"}}}
	}
}

func jsonPropertyName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" {
		return field.Name
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			tag = tag[:i]
			break
		}
	}
	if tag == "-" {
		return ""
	}
	if tag == "" {
		return field.Name
	}
	return tag
}

// applyStrictMode marks every object schema closed and all of its
// properties required.
func applyStrictMode(schemaMap map[string]any) {
	walkSchemaObjects(schemaMap, func(n map[string]any) {
		props, ok := n["properties"].(map[string]any)
		if !ok {
			return
		}
		n["additionalProperties"] = false
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		required := make([]any, len(keys))
		for i, k := range keys {
			required[i] = k
		}
		if len(required) > 0 {
			n["required"] = required
		}
	})
}

func walkSchemaObjects(node any, fn func(map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		fn(n)
		for _, v := range n {
			walkSchemaObjects(v, fn)
		}
	case []any:
		for _, v := range n {
			walkSchemaObjects(v, fn)
		}
	}
}

func compileSchemaMap(schemaMap map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}
