package httpclient

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
)

// Response is a completed outbound call.
//
// Payload depends on the call's ReturnAs: the decoded JSON value (nil for an
// empty body) for JSON, a []byte for BUFFER and an io.ReadCloser for STREAM.
type Response struct {
	StatusCode int
	Headers    http.Header
	Payload    any

	raw []byte
}

// Unmarshal decodes the body of a JSON or BUFFER response into v.
func (r *Response) Unmarshal(v any) error {
	if _, ok := r.Payload.(io.ReadCloser); ok {
		return errors.New("httpclient: cannot unmarshal a streamed response")
	}
	return json.Unmarshal(r.raw, v)
}

// Bytes returns the raw body of a JSON or BUFFER response.
func (r *Response) Bytes() []byte {
	return r.raw
}

// Stream returns the body of a STREAM response, or nil.
// The caller must close it.
func (r *Response) Stream() io.ReadCloser {
	rc, _ := r.Payload.(io.ReadCloser)
	return rc
}

// streamBody releases the call's context once the caller is done reading.
// Reads go straight to the connection, so a slow reader slows the sender.
// The call timeout keeps running until Close.
type streamBody struct {
	io.ReadCloser
	cancel   func()
	timedOut func() bool
	once     sync.Once
}

func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		return n, newTransportError(err, s.timedOut())
	}
	return n, err
}

func (s *streamBody) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(s.cancel)
	return err
}
