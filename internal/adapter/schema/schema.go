// Package schema builds output schemas from Go types and validates decoded
// model output against them.
package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonschema"

	"agentgate/internal/domain"
)

// Reflect builds an OutputSchema from the Go struct T.
//
// Every field without `omitempty` is required and unknown properties are
// rejected. Strict structured output has no optional fields, so a struct
// with an `omitempty` field is refused:
//
//	type Verdict struct {
//	    IsFlagged bool   `json:"is_flagged" jsonschema:"description=Whether the message is abusive"`
//	    Reasoning string `json:"reasoning"`
//	}
func Reflect[T any](name string) (*domain.OutputSchema, error) {
	reflector := &invopop.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := reflector.Reflect(new(T))

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %q: %w", name, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %q: %w", name, err)
	}
	// Providers reject the meta keys inside response_format.
	delete(doc, "$schema")
	delete(doc, "$id")

	data, err = json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %q: %w", name, err)
	}
	return domain.NewOutputSchema(name, data)
}

// MustReflect is Reflect for package-level schema variables.
func MustReflect[T any](name string) *domain.OutputSchema {
	s, err := Reflect[T](name)
	if err != nil {
		panic(err)
	}
	return s
}

// Validator compiles schemas once and validates decoded values against them.
// It is safe for concurrent use.
type Validator struct {
	compiler *jsonschema.Compiler
	mu       sync.Mutex
	compiled map[[32]byte]*jsonschema.Schema
}

// NewValidator creates an empty validator cache.
func NewValidator() *Validator {
	return &Validator{
		compiler: jsonschema.NewCompiler(),
		compiled: make(map[[32]byte]*jsonschema.Schema),
	}
}

func (v *Validator) compile(s *domain.OutputSchema) (*jsonschema.Schema, error) {
	raw := s.Raw()
	key := sha256.Sum256(raw)

	v.mu.Lock()
	defer v.mu.Unlock()

	if c, ok := v.compiled[key]; ok {
		return c, nil
	}
	c, err := v.compiler.Compile(raw)
	if err != nil {
		return nil, domain.NewDomainError("Validator.Compile", domain.ErrInvalidDescriptor,
			fmt.Sprintf("schema %q: %v", s.Name(), err))
	}
	v.compiled[key] = c
	return c, nil
}

// Compile compiles s into the cache.
func (v *Validator) Compile(s *domain.OutputSchema) error {
	_, err := v.compile(s)
	return err
}

// Validate checks a decoded JSON value against s.
func (v *Validator) Validate(s *domain.OutputSchema, value any) error {
	compiled, err := v.compile(s)
	if err != nil {
		return err
	}
	result := compiled.Validate(value)
	if !result.IsValid() {
		return domain.NewDomainError("Validator.Validate", domain.ErrDecodeFailure,
			fmt.Sprintf("schema %q: %s", s.Name(), result.Error()))
	}
	return nil
}

// Decode converts a structured output into T. Unknown fields are rejected.
func Decode[T any](out domain.Output) (T, error) {
	var zero T
	if out.Structured == nil {
		return zero, domain.NewDomainError("schema.Decode", domain.ErrDecodeFailure, "output is not structured")
	}
	data, err := json.Marshal(out.Structured)
	if err != nil {
		return zero, domain.NewDomainError("schema.Decode", domain.ErrDecodeFailure, err.Error())
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var v T
	if err := dec.Decode(&v); err != nil {
		return zero, domain.NewDomainError("schema.Decode", domain.ErrDecodeFailure, err.Error())
	}
	return v, nil
}
