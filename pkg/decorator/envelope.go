package decorator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Suhaibinator/SPlugin/pkg/codec"
	"github.com/Suhaibinator/SPlugin/pkg/schema"
)

// PreRequest is the envelope posted to a pre decorator: the original
// request as received by the mesh.
type PreRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Query   map[string]any    `json:"query"`
	Body    any               `json:"body,omitempty"`
}

// OriginalResponse is the response produced by the decorated route.
type OriginalResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       any               `json:"body,omitempty"`
}

// PostRequest is the envelope posted to a post decorator.
type PostRequest struct {
	Request  PreRequest       `json:"request"`
	Response OriginalResponse `json:"response"`
}

// ErrInvalidEnvelope wraps every envelope decoding or validation failure.
var ErrInvalidEnvelope = errors.New("decorator: invalid envelope")

// EnvelopeError describes why an envelope was rejected. It is answered
// with a 400.
type EnvelopeError struct {
	Reason string
	Err    error
}

func (e *EnvelopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrInvalidEnvelope, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrInvalidEnvelope, e.Reason)
}

func (e *EnvelopeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidEnvelope, e.Err}
	}
	return []error{ErrInvalidEnvelope}
}

const preRequestSchema = `{
	"type": "object",
	"required": ["method", "path", "headers", "query"],
	"properties": {
		"method": {"type": "string", "minLength": 1},
		"path": {"type": "string", "minLength": 1},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}},
		"query": {"type": "object"}
	}
}`

// PreRequestSchema validates pre decorator envelopes.
var PreRequestSchema = schema.MustCompile(preRequestSchema)

// PostRequestSchema validates post decorator envelopes.
var PostRequestSchema = schema.MustCompile(`{
	"type": "object",
	"required": ["request", "response"],
	"properties": {
		"request": ` + preRequestSchema + `,
		"response": {
			"type": "object",
			"required": ["statusCode", "headers"],
			"properties": {
				"statusCode": {"type": "integer", "minimum": 100, "maximum": 599},
				"headers": {"type": "object", "additionalProperties": {"type": "string"}}
			}
		}
	}
}`)

// DecodePre reads and validates a pre decorator envelope.
func DecodePre(r *http.Request) (PreRequest, error) {
	var env PreRequest
	err := decodeEnvelope(r, PreRequestSchema, &env)
	return env, err
}

// DecodePost reads and validates a post decorator envelope.
func DecodePost(r *http.Request) (PostRequest, error) {
	var env PostRequest
	err := decodeEnvelope(r, PostRequestSchema, &env)
	return env, err
}

func decodeEnvelope(r *http.Request, s *schema.Schema, env any) error {
	raw, err := codec.NewJSONCodec[json.RawMessage, any]().Decode(r)
	if err != nil {
		return &EnvelopeError{Reason: "malformed body", Err: err}
	}
	if err := s.Validate(raw); err != nil {
		return &EnvelopeError{Reason: "schema validation failed", Err: err}
	}
	if err := json.Unmarshal(raw, env); err != nil {
		return &EnvelopeError{Reason: "malformed body", Err: err}
	}
	return nil
}
