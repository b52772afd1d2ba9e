// Package decorator implements the pre and post decorator pipelines.
//
// A pre decorator receives the request the mesh is about to forward and
// may leave it unchanged, rewrite it, or abort the chain with a response of
// its own. A post decorator does the same for the response of the
// decorated route. The pipeline turns the handler's Action into the wire
// response expected by the mesh:
//
//	Unchanged (or nil)      204, empty body
//	*RequestChange          200, {body?, query?, headers?}
//	*ResponseChange         200, {body?, headers?, statusCode?}
//	*Abort                  418, {statusCode, body, headers}
//	anything else           500, Unknown return type
package decorator

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/headers"
	"github.com/Suhaibinator/SPlugin/pkg/request"
)

// AbortStatusCode is the status the mesh reads as "stop the chain and use
// the embedded response".
const AbortStatusCode = http.StatusTeapot

// UnknownReturnTypeMessage is the message of the 500 sent when a handler
// returns an action its pipeline cannot answer with.
const UnknownReturnTypeMessage = "Unknown return type"

// PreHandler handles a pre decorator call.
type PreHandler func(c *PreContext) (Action, error)

// PostHandler handles a post decorator call.
type PostHandler func(c *PostContext) (Action, error)

// PreContext is the context of a pre decorator. Identity is decoded from
// the headers of the original request.
type PreContext struct {
	*request.Context
	Original PreRequest
}

// OriginalMethod returns the method of the original request.
func (c *PreContext) OriginalMethod() string { return c.Original.Method }

// OriginalPath returns the path of the original request.
func (c *PreContext) OriginalPath() string { return c.Original.Path }

// OriginalHeaders returns the headers of the original request.
func (c *PreContext) OriginalHeaders() map[string]string { return c.Original.Headers }

// OriginalQuery returns the query of the original request.
func (c *PreContext) OriginalQuery() map[string]any { return c.Original.Query }

// OriginalBody returns the body of the original request.
func (c *PreContext) OriginalBody() any { return c.Original.Body }

// ChangeOriginalRequest starts a request change.
func (c *PreContext) ChangeOriginalRequest() *RequestChange { return ChangeRequest() }

// LeaveOriginalRequestUnmodified returns the Unchanged action.
func (c *PreContext) LeaveOriginalRequestUnmodified() Action { return LeaveUnmodified() }

// AbortChain stops the chain with the given response.
func (c *PreContext) AbortChain(statusCode int, body any, headers map[string]string) *Abort {
	return AbortChain(statusCode, body, headers)
}

// PostContext is the context of a post decorator. Identity is decoded from
// the headers of the original request.
type PostContext struct {
	*request.Context
	Original PostRequest
}

// OriginalRequestMethod returns the method of the original request.
func (c *PostContext) OriginalRequestMethod() string { return c.Original.Request.Method }

// OriginalRequestPath returns the path of the original request.
func (c *PostContext) OriginalRequestPath() string { return c.Original.Request.Path }

// OriginalRequestHeaders returns the headers of the original request.
func (c *PostContext) OriginalRequestHeaders() map[string]string { return c.Original.Request.Headers }

// OriginalRequestQuery returns the query of the original request.
func (c *PostContext) OriginalRequestQuery() map[string]any { return c.Original.Request.Query }

// OriginalRequestBody returns the body of the original request.
func (c *PostContext) OriginalRequestBody() any { return c.Original.Request.Body }

// OriginalResponseStatusCode returns the status of the original response.
func (c *PostContext) OriginalResponseStatusCode() int { return c.Original.Response.StatusCode }

// OriginalResponseHeaders returns the headers of the original response.
func (c *PostContext) OriginalResponseHeaders() map[string]string {
	return c.Original.Response.Headers
}

// OriginalResponseBody returns the body of the original response.
func (c *PostContext) OriginalResponseBody() any { return c.Original.Response.Body }

// ChangeOriginalResponse starts a response change.
func (c *PostContext) ChangeOriginalResponse() *ResponseChange { return ChangeResponse() }

// LeaveOriginalResponseUnmodified returns the Unchanged action.
func (c *PostContext) LeaveOriginalResponseUnmodified() Action { return LeaveUnmodified() }

// AbortChain stops the chain with the given response.
func (c *PostContext) AbortChain(statusCode int, body any, headers map[string]string) *Abort {
	return AbortChain(statusCode, body, headers)
}

// ServePre decodes a pre decorator envelope, runs h and writes the
// response for its action. Envelope errors (*EnvelopeError) and errors
// returned by h are returned without writing anything.
func ServePre(w http.ResponseWriter, r *http.Request, params httprouter.Params, s *request.Settings, h PreHandler) error {
	env, err := DecodePre(r)
	if err != nil {
		return err
	}
	c := &PreContext{
		Context:  request.NewWithHeaders(r, params, s, headers.Map(env.Headers)),
		Original: env,
	}

	action, err := h(c)
	if err != nil {
		return err
	}

	switch a := action.(type) {
	case nil, Unchanged:
		w.WriteHeader(http.StatusNoContent)
	case *RequestChange:
		if a == nil {
			unknownReturnType(w, c.Logger(), action)
			return nil
		}
		common.WriteJSON(w, http.StatusOK, a)
	case *Abort:
		writeAbort(w, c.Logger(), a)
	default:
		unknownReturnType(w, c.Logger(), action)
	}
	return nil
}

// ServePost decodes a post decorator envelope, runs h and writes the
// response for its action. Errors are handled as in ServePre.
func ServePost(w http.ResponseWriter, r *http.Request, params httprouter.Params, s *request.Settings, h PostHandler) error {
	env, err := DecodePost(r)
	if err != nil {
		return err
	}
	c := &PostContext{
		Context:  request.NewWithHeaders(r, params, s, headers.Map(env.Request.Headers)),
		Original: env,
	}

	action, err := h(c)
	if err != nil {
		return err
	}

	switch a := action.(type) {
	case nil, Unchanged:
		w.WriteHeader(http.StatusNoContent)
	case *ResponseChange:
		if a == nil {
			unknownReturnType(w, c.Logger(), action)
			return nil
		}
		common.WriteJSON(w, http.StatusOK, a)
	case *Abort:
		writeAbort(w, c.Logger(), a)
	default:
		unknownReturnType(w, c.Logger(), action)
	}
	return nil
}

func writeAbort(w http.ResponseWriter, logger *zap.Logger, a *Abort) {
	if a == nil {
		unknownReturnType(w, logger, a)
		return
	}
	out := *a
	if out.Headers == nil {
		out.Headers = map[string]string{}
	}
	common.WriteJSON(w, AbortStatusCode, out)
}

func unknownReturnType(w http.ResponseWriter, logger *zap.Logger, action Action) {
	logger.Error("decorator returned an unknown action", zap.String("type", typeName(action)))
	common.WriteError(w, http.StatusInternalServerError, UnknownReturnTypeMessage)
}

func typeName(action Action) string {
	switch action.(type) {
	case *RequestChange:
		return "RequestChange"
	case *ResponseChange:
		return "ResponseChange"
	case *Abort:
		return "Abort"
	default:
		return "unknown"
	}
}
