// Package codec provides encoding and decoding of request and response bodies.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// ErrEmptyBody is returned by Decode when the request has no body.
var ErrEmptyBody = errors.New("codec: empty request body")

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
// T is the request type and U the response type.
type JSONCodec[T any, U any] struct {
	// DisallowUnknownFields rejects request bodies carrying fields T does not declare.
	DisallowUnknownFields bool
}

// Decode decodes the request body into a value of type T.
func (c *JSONCodec[T, U]) Decode(r *http.Request) (T, error) {
	var data T
	if r.Body == nil {
		return data, ErrEmptyBody
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return data, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return data, ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&data); err != nil {
		return data, err
	}
	return data, nil
}

// Encode encodes a value of type U into the response with a 200 status.
func (c *JSONCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	return c.EncodeStatus(w, http.StatusOK, resp)
}

// EncodeStatus encodes a value of type U into the response with the given status.
func (c *JSONCodec[T, U]) EncodeStatus(w http.ResponseWriter, statusCode int, resp U) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, err = w.Write(body)
	return err
}

// NewJSONCodec creates a new JSONCodec instance for the specified types.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}
