// Package schema validates JSON documents against JSON Schemas.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is matched by every *ValidationError.
var ErrInvalidDocument = errors.New("schema: document does not match schema")

// Schema is a compiled JSON Schema. It is safe for concurrent use.
type Schema struct {
	s *gojsonschema.Schema
}

// Compile compiles a JSON Schema document.
func Compile(doc string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Schema{s: s}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(doc string) *Schema {
	s, err := Compile(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidationError lists the violations of a document.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidDocument }

// Validate validates the JSON document doc. A document that is not JSON is
// reported as an error from the loader, not as a *ValidationError.
func (s *Schema) Validate(doc []byte) error {
	result, err := s.s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &ValidationError{Violations: violations}
}
