package decorator

import (
	"encoding/json"
)

// Action is the outcome of a decorator handler. The only implementations
// are the ones returned by the constructors of this package: Unchanged,
// *RequestChange, *ResponseChange and *Abort. A nil Action is read as
// Unchanged.
type Action interface {
	action()
}

// Unchanged leaves the original request or response as is.
type Unchanged struct{}

func (Unchanged) action() {}

// LeaveUnmodified returns the Unchanged action.
func LeaveUnmodified() Action { return Unchanged{} }

// RequestChange rewrites parts of the original request. Only the fields set
// through its setters are sent back to the mesh.
type RequestChange struct {
	body    any
	query   map[string]any
	headers map[string]string

	bodySet, querySet, headersSet bool
}

func (*RequestChange) action() {}

// ChangeRequest returns an empty request change.
func ChangeRequest() *RequestChange { return &RequestChange{} }

// SetBody replaces the request body.
func (c *RequestChange) SetBody(body any) *RequestChange {
	c.body, c.bodySet = body, true
	return c
}

// SetQuery replaces the request query.
func (c *RequestChange) SetQuery(query map[string]any) *RequestChange {
	c.query, c.querySet = query, true
	return c
}

// SetHeaders replaces the request headers.
func (c *RequestChange) SetHeaders(headers map[string]string) *RequestChange {
	c.headers, c.headersSet = headers, true
	return c
}

// MarshalJSON emits only the fields that were set.
func (c *RequestChange) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	if c.bodySet {
		out["body"] = c.body
	}
	if c.querySet {
		out["query"] = c.query
	}
	if c.headersSet {
		out["headers"] = c.headers
	}
	return json.Marshal(out)
}

// ResponseChange rewrites parts of the original response. Only the fields
// set through its setters are sent back to the mesh.
type ResponseChange struct {
	body       any
	headers    map[string]string
	statusCode int

	bodySet, headersSet, statusCodeSet bool
}

func (*ResponseChange) action() {}

// ChangeResponse returns an empty response change.
func ChangeResponse() *ResponseChange { return &ResponseChange{} }

// SetBody replaces the response body.
func (c *ResponseChange) SetBody(body any) *ResponseChange {
	c.body, c.bodySet = body, true
	return c
}

// SetHeaders replaces the response headers.
func (c *ResponseChange) SetHeaders(headers map[string]string) *ResponseChange {
	c.headers, c.headersSet = headers, true
	return c
}

// SetStatusCode replaces the response status code.
func (c *ResponseChange) SetStatusCode(statusCode int) *ResponseChange {
	c.statusCode, c.statusCodeSet = statusCode, true
	return c
}

// MarshalJSON emits only the fields that were set.
func (c *ResponseChange) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	if c.bodySet {
		out["body"] = c.body
	}
	if c.headersSet {
		out["headers"] = c.headers
	}
	if c.statusCodeSet {
		out["statusCode"] = c.statusCode
	}
	return json.Marshal(out)
}

// Abort stops the decorator chain. The mesh answers the client with
// StatusCode, Body and Headers.
type Abort struct {
	StatusCode int               `json:"statusCode"`
	Body       any               `json:"body"`
	Headers    map[string]string `json:"headers"`
}

func (*Abort) action() {}

// AbortChain returns an Abort action. Nil headers are sent as an empty object.
func AbortChain(statusCode int, body any, headers map[string]string) *Abort {
	if headers == nil {
		headers = map[string]string{}
	}
	return &Abort{StatusCode: statusCode, Body: body, Headers: headers}
}
