package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Null is the body to send a literal JSON null.
// A nil body sends no payload at all.
var Null = json.RawMessage("null")

const (
	contentTypeJSON = "application/json"
	contentTypeHTML = "text/html"
)

// encodedBody is a request payload ready to be attached to an http.Request.
type encodedBody struct {
	reader      io.Reader
	length      int64 // -1 when unknown
	contentType string
}

// encodeBody applies the body policy:
//
//   - nil sends an empty payload with content-type text/html
//   - Null or any json.RawMessage is sent as is, as JSON
//   - string, []byte and io.Reader are passed through
//   - anything else is JSON encoded
//
// GET and HEAD never carry a body.
func encodeBody(method string, body any) (encodedBody, error) {
	if method == http.MethodGet || method == http.MethodHead {
		return encodedBody{length: 0}, nil
	}

	switch b := body.(type) {
	case nil:
		return encodedBody{length: 0, contentType: contentTypeHTML}, nil
	case json.RawMessage:
		return encodedBody{reader: bytes.NewReader(b), length: int64(len(b)), contentType: contentTypeJSON}, nil
	case string:
		return encodedBody{reader: strings.NewReader(b), length: int64(len(b))}, nil
	case []byte:
		return encodedBody{reader: bytes.NewReader(b), length: int64(len(b))}, nil
	case io.Reader:
		return encodedBody{reader: b, length: -1}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return encodedBody{}, fmt.Errorf("httpclient: encode body: %w", err)
		}
		return encodedBody{reader: bytes.NewReader(data), length: int64(len(data)), contentType: contentTypeJSON}, nil
	}
}

// attach sets the payload on req.
func (b encodedBody) attach(req *http.Request) {
	if b.reader == nil {
		req.Body = http.NoBody
		req.ContentLength = 0
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
	} else {
		rc, ok := b.reader.(io.ReadCloser)
		if !ok {
			rc = io.NopCloser(b.reader)
		}
		req.Body = rc
		req.ContentLength = b.length
	}
	if b.contentType != "" {
		req.Header.Set("Content-Type", b.contentType)
	}
}
