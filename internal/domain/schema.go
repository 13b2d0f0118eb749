package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// OutputSchema describes the structured output an agent must produce.
// The schema is a JSON Schema object; Properties caches the declared
// top-level property types for construction-time checks.
type OutputSchema struct {
	name       string
	raw        json.RawMessage
	properties map[string]string
	required   []string
}

type schemaDoc struct {
	Type                 any                        `json:"type"`
	Properties           map[string]json.RawMessage `json:"properties"`
	Required             []string                   `json:"required"`
	AdditionalProperties json.RawMessage            `json:"additionalProperties"`
}

// NewOutputSchema parses a JSON Schema document describing an object.
// The object must be closed: additionalProperties is false and every
// declared property is listed in required.
func NewOutputSchema(name string, raw []byte) (*OutputSchema, error) {
	if name == "" {
		return nil, NewDomainError("NewOutputSchema", ErrInvalidDescriptor, "schema name is empty")
	}
	var doc schemaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, NewDomainError("NewOutputSchema", ErrInvalidDescriptor, fmt.Sprintf("schema %q: %v", name, err))
	}
	if t, ok := doc.Type.(string); !ok || t != "object" {
		return nil, NewDomainError("NewOutputSchema", ErrInvalidDescriptor, fmt.Sprintf("schema %q: type must be \"object\"", name))
	}

	props := make(map[string]string, len(doc.Properties))
	for field, def := range doc.Properties {
		var p struct {
			Type any `json:"type"`
		}
		if err := json.Unmarshal(def, &p); err != nil {
			return nil, NewDomainError("NewOutputSchema", ErrInvalidDescriptor, fmt.Sprintf("schema %q property %q: %v", name, field, err))
		}
		props[field] = propertyType(p.Type)
	}
	if err := checkClosed(name, props, doc); err != nil {
		return nil, err
	}

	compact := new(bytes.Buffer)
	if err := json.Compact(compact, raw); err != nil {
		return nil, NewDomainError("NewOutputSchema", ErrInvalidDescriptor, err.Error())
	}

	return &OutputSchema{
		name:       name,
		raw:        compact.Bytes(),
		properties: props,
		required:   append([]string(nil), doc.Required...),
	}, nil
}

func checkClosed(name string, props map[string]string, doc schemaDoc) error {
	if string(bytes.TrimSpace(doc.AdditionalProperties)) != "false" {
		return NewDomainError("NewOutputSchema", ErrInvalidDescriptor,
			fmt.Sprintf("schema %q: additionalProperties must be false", name))
	}
	required := make(map[string]bool, len(doc.Required))
	for _, f := range doc.Required {
		if _, ok := props[f]; !ok {
			return NewDomainError("NewOutputSchema", ErrInvalidDescriptor,
				fmt.Sprintf("schema %q: required field %q is not a property", name, f))
		}
		required[f] = true
	}
	var missing []string
	for f := range props {
		if !required[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return NewDomainError("NewOutputSchema", ErrInvalidDescriptor,
			fmt.Sprintf("schema %q: properties %v must be required", name, missing))
	}
	return nil
}

// propertyType returns the single JSON type of a property, or "" when the
// property is untyped or allows several types.
func propertyType(t any) string {
	switch v := t.(type) {
	case string:
		return v
	case []any:
		if len(v) == 1 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Name returns the schema name sent to the provider.
func (s *OutputSchema) Name() string { return s.name }

// Raw returns a copy of the compacted JSON Schema document.
func (s *OutputSchema) Raw() json.RawMessage {
	return append(json.RawMessage(nil), s.raw...)
}

// PropertyType reports the declared JSON type of a top-level property.
func (s *OutputSchema) PropertyType(field string) (string, bool) {
	t, ok := s.properties[field]
	return t, ok
}

// Fields returns the declared top-level property names, sorted.
func (s *OutputSchema) Fields() []string {
	out := make([]string, 0, len(s.properties))
	for f := range s.properties {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Required returns the required property names in declaration order.
func (s *OutputSchema) Required() []string {
	return append([]string(nil), s.required...)
}

var fieldTypes = map[string]bool{
	"string":  true,
	"boolean": true,
	"integer": true,
	"number":  true,
	"array":   true,
	"object":  true,
}

// NewFieldSchema builds a flat object schema from a property -> JSON type map.
// Every property is required and no others are allowed.
func NewFieldSchema(name string, fields map[string]string) (*OutputSchema, error) {
	if len(fields) == 0 {
		return nil, NewDomainError("NewFieldSchema", ErrInvalidDescriptor, fmt.Sprintf("schema %q declares no fields", name))
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	props := make(map[string]any, len(fields))
	for _, f := range names {
		typ := fields[f]
		if !fieldTypes[typ] {
			return nil, NewDomainError("NewFieldSchema", ErrInvalidDescriptor,
				fmt.Sprintf("schema %q field %q: unsupported type %q", name, f, typ))
		}
		props[f] = map[string]any{"type": typ}
	}

	raw, err := json.Marshal(map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             names,
		"additionalProperties": false,
	})
	if err != nil {
		return nil, NewDomainError("NewFieldSchema", ErrInvalidDescriptor, err.Error())
	}
	return NewOutputSchema(name, raw)
}
