package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/codec"
	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/decorator"
	"github.com/Suhaibinator/SPlugin/pkg/middleware"
	"github.com/Suhaibinator/SPlugin/pkg/proxy"
	"github.com/Suhaibinator/SPlugin/pkg/request"
	"github.com/Suhaibinator/SPlugin/pkg/schema"
)

const preEnvelope = `{
	"method": "GET",
	"path": "/hello",
	"headers": {"miauserid": "user-1", "miausergroups": "group-to-greet"},
	"query": {}
}`

const postEnvelope = `{
	"request": {"method": "GET", "path": "/hello", "headers": {"miauserid": "user-1"}, "query": {}},
	"response": {"statusCode": 200, "headers": {}, "body": {"msg": "hi"}}
}`

func newTestRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return NewRouter(config)
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) common.ErrorBody {
	t.Helper()
	var body common.ErrorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return body
}

// TestRawCustomPlugin tests that raw handlers see the caller identity and route params
func TestRawCustomPlugin(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddRawCustomPlugin(http.MethodGet, "/hello/:name", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		userID := c.UserID()
		if userID == nil {
			return NewHTTPError(http.StatusUnauthorized, "missing user")
		}
		common.WriteJSON(w, http.StatusOK, map[string]any{
			"user":   *userID,
			"name":   c.Param("name"),
			"groups": c.Groups(),
			"param":  GetParam(req, "name"),
		})
		return nil
	})

	rr := serve(r, http.MethodGet, "/hello/ada", "", map[string]string{
		"miauserid":     "user-1",
		"miausergroups": "a,b",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["user"] != "user-1" || body["name"] != "ada" || body["param"] != "ada" {
		t.Errorf("Unexpected body %v", body)
	}
	if groups, _ := body["groups"].([]any); len(groups) != 2 {
		t.Errorf("Expected 2 groups, got %v", body["groups"])
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("Expected a generated request id on the response")
	}

	rr = serve(r, http.MethodGet, "/hello/ada", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if body := decodeError(t, rr); body.Message != "missing user" || body.StatusCode != http.StatusUnauthorized {
		t.Errorf("Unexpected error body %+v", body)
	}
}

// TestRegistrationIsChainable tests that registration helpers return the same router
func TestRegistrationIsChainable(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	noop := func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}

	got := r.
		AddRawCustomPlugin(http.MethodGet, "/a", noop).
		AddRawCustomPlugin(http.MethodDelete, "/b", noop).
		AddPreDecorator("/pre", func(c *decorator.PreContext) (decorator.Action, error) { return nil, nil }).
		AddPostDecorator("/post", func(c *decorator.PostContext) (decorator.Action, error) { return nil, nil })
	if got != r {
		t.Fatal("Expected registration to return the same router")
	}

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/a", ""},
		{http.MethodDelete, "/b", ""},
		{http.MethodPost, "/pre", preEnvelope},
		{http.MethodPost, "/post", postEnvelope},
	} {
		if rr := serve(r, tc.method, tc.path, tc.body, nil); rr.Code != http.StatusNoContent {
			t.Errorf("%s %s: expected status code %d, got %d", tc.method, tc.path, http.StatusNoContent, rr.Code)
		}
	}
}

// TestPreDecoratorResponses tests the wire response of every pre decorator action
func TestPreDecoratorResponses(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddPreDecorator("/unchanged", func(c *decorator.PreContext) (decorator.Action, error) {
		return c.LeaveOriginalRequestUnmodified(), nil
	})
	r.AddPreDecorator("/change", func(c *decorator.PreContext) (decorator.Action, error) {
		return c.ChangeOriginalRequest().SetHeaders(map[string]string{"x-user": *c.UserID()}), nil
	})
	r.AddPreDecorator("/abort", func(c *decorator.PreContext) (decorator.Action, error) {
		return c.AbortChain(http.StatusForbidden, map[string]string{"reason": "nope"}, nil), nil
	})
	r.AddPreDecorator("/wrong", func(c *decorator.PreContext) (decorator.Action, error) {
		return decorator.ChangeResponse().SetStatusCode(201), nil
	})

	if rr := serve(r, http.MethodPost, "/unchanged", preEnvelope, nil); rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Errorf("Expected 204 with empty body, got %d %q", rr.Code, rr.Body.String())
	}

	rr := serve(r, http.MethodPost, "/change", preEnvelope, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"headers":{"x-user":"user-1"}}` {
		t.Errorf("Unexpected change body %s", got)
	}

	rr = serve(r, http.MethodPost, "/abort", preEnvelope, nil)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("Expected status code %d, got %d", http.StatusTeapot, rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"statusCode":403,"body":{"reason":"nope"},"headers":{}}` {
		t.Errorf("Unexpected abort body %s", got)
	}

	rr = serve(r, http.MethodPost, "/wrong", preEnvelope, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status code %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if body := decodeError(t, rr); body.Message != decorator.UnknownReturnTypeMessage {
		t.Errorf("Expected message %q, got %q", decorator.UnknownReturnTypeMessage, body.Message)
	}
}

// TestPostDecoratorChange tests a post decorator rewriting the response
func TestPostDecoratorChange(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddPostDecorator("/post", func(c *decorator.PostContext) (decorator.Action, error) {
		body, _ := c.OriginalResponseBody().(map[string]any)
		return c.ChangeOriginalResponse().
			SetBody(map[string]any{"msg": body["msg"], "by": *c.UserID()}).
			SetStatusCode(201), nil
	})

	rr := serve(r, http.MethodPost, "/post", postEnvelope, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"body":{"by":"user-1","msg":"hi"},"statusCode":201}` {
		t.Errorf("Unexpected body %s", got)
	}
}

// TestDecoratorInvalidEnvelope tests that malformed or incomplete envelopes are answered with 400
func TestDecoratorInvalidEnvelope(t *testing.T) {
	called := false
	r := newTestRouter(RouterConfig{})
	r.AddPreDecorator("/pre", func(c *decorator.PreContext) (decorator.Action, error) {
		called = true
		return nil, nil
	})

	for _, body := range []string{"", "{not json", `{"method":"GET"}`} {
		rr := serve(r, http.MethodPost, "/pre", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Body %q: expected status code %d, got %d", body, http.StatusBadRequest, rr.Code)
		}
	}
	if called {
		t.Error("Expected the handler not to run for invalid envelopes")
	}
}

// TestDecoratorHandlerError tests that decorator errors reach the router error handling
func TestDecoratorHandlerError(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddPreDecorator("/fail", func(c *decorator.PreContext) (decorator.Action, error) {
		return nil, errors.New("boom")
	})
	r.AddPreDecorator("/denied", func(c *decorator.PreContext) (decorator.Action, error) {
		return nil, NewHTTPError(http.StatusForbidden, "denied")
	})

	rr := serve(r, http.MethodPost, "/fail", preEnvelope, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if body := decodeError(t, rr); body.Message != "Internal Server Error" {
		t.Errorf("Expected the generic message, got %q", body.Message)
	}

	rr = serve(r, http.MethodPost, "/denied", preEnvelope, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status code %d, got %d", http.StatusForbidden, rr.Code)
	}
}

// TestDecoratorOnlyBoundToPost tests that decorators answer 405 on other methods
func TestDecoratorOnlyBoundToPost(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddPreDecorator("/pre", func(c *decorator.PreContext) (decorator.Action, error) { return nil, nil })

	rr := serve(r, http.MethodGet, "/pre", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status code %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
	if rr.Header().Get("Allow") == "" {
		t.Error("Expected an Allow header")
	}
}

// TestNotFound tests the JSON not found response
func TestNotFound(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	rr := serve(r, http.MethodGet, "/missing", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status code %d, got %d", http.StatusNotFound, rr.Code)
	}
	if body := decodeError(t, rr); body.Error != "Not Found" || body.StatusCode != http.StatusNotFound {
		t.Errorf("Unexpected error body %+v", body)
	}
}

// TestServiceProxyFromDecorator tests that a decorator calls a service through
// the gateway forwarding the identity of the original request
func TestServiceProxyFromDecorator(t *testing.T) {
	var mu sync.Mutex
	var gotUser, gotGroups string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		gotUser = req.Header.Get("miauserid")
		gotGroups = req.Header.Get("miausergroups")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"allowed":true}`))
	}))
	defer upstream.Close()

	settings := request.DefaultSettings()
	settings.GatewayServiceName = upstream.URL

	r := newTestRouter(RouterConfig{Settings: settings})
	r.AddPreDecorator("/pre", func(c *decorator.PreContext) (decorator.Action, error) {
		p, err := c.ServiceProxy(proxy.Options{})
		if err != nil {
			return nil, err
		}
		resp, err := p.Get(c.Ctx(), "/acl")
		if err != nil {
			return nil, err
		}
		var acl struct {
			Allowed bool `json:"allowed"`
		}
		if err := resp.Unmarshal(&acl); err != nil {
			return nil, err
		}
		if !acl.Allowed {
			return c.AbortChain(http.StatusForbidden, nil, nil), nil
		}
		return nil, nil
	})

	rr := serve(r, http.MethodPost, "/pre", preEnvelope, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status code %d, got %d (%s)", http.StatusNoContent, rr.Code, rr.Body.String())
	}
	mu.Lock()
	defer mu.Unlock()
	if gotUser != "user-1" || gotGroups != "group-to-greet" {
		t.Errorf("Expected the envelope identity to be forwarded, got user %q groups %q", gotUser, gotGroups)
	}
}

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Message string `json:"message"`
}

// TestGenericRoute tests typed routes and their decode errors
func TestGenericRoute(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	RegisterGenericRoute(r, GenericRouteConfig[greetRequest, greetResponse]{
		Path:    "/greet",
		Methods: []string{http.MethodPost},
		Codec:   codec.NewJSONCodec[greetRequest, greetResponse](),
		Handler: func(c *request.Context, req greetRequest) (greetResponse, error) {
			if req.Name == "" {
				return greetResponse{}, NewHTTPError(http.StatusUnprocessableEntity, "name is required")
			}
			return greetResponse{Message: "Hello " + req.Name}, nil
		},
	})

	rr := serve(r, http.MethodPost, "/greet", `{"name":"Ada"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}
	var resp greetResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp.Message != "Hello Ada" {
		t.Errorf("Unexpected response %q (%v)", rr.Body.String(), err)
	}

	if rr := serve(r, http.MethodPost, "/greet", `{`, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if rr := serve(r, http.MethodPost, "/greet", `{}`, nil); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status code %d, got %d", http.StatusUnprocessableEntity, rr.Code)
	}
}

// TestMaxBodySize tests that oversized bodies are answered with 413
func TestMaxBodySize(t *testing.T) {
	r := newTestRouter(RouterConfig{GlobalMaxBodySize: 16})
	r.AddPreDecorator("/pre", func(c *decorator.PreContext) (decorator.Action, error) { return nil, nil })
	r.AddPreDecorator("/big", func(c *decorator.PreContext) (decorator.Action, error) { return nil, nil }, WithMaxBodySize(1<<20))

	if rr := serve(r, http.MethodPost, "/pre", preEnvelope, nil); rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status code %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
	if rr := serve(r, http.MethodPost, "/big", preEnvelope, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status code %d, got %d", http.StatusNoContent, rr.Code)
	}
}

// TestBodySchema tests that bodies not matching the route schema are rejected before the handler runs
func TestBodySchema(t *testing.T) {
	greeting := schema.MustCompile(`{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string"}}
	}`)

	r := newTestRouter(RouterConfig{})
	r.AddRawCustomPlugin(http.MethodPost, "/greet", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		var in struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			return err
		}
		common.WriteJSON(w, http.StatusOK, map[string]string{"hello": in.Name})
		return nil
	}, WithBodySchema(greeting))

	rr := serve(r, http.MethodPost, "/greet", `{"name":"ada"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"hello":"ada"}` {
		t.Errorf("Expected restored body to reach the handler, got %s", got)
	}

	rr = serve(r, http.MethodPost, "/greet", `{"name":12}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}

	rr = serve(r, http.MethodPost, "/greet", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if body := decodeError(t, rr); !strings.Contains(body.Message, "name is required") {
		t.Errorf("Expected violation in message, got %q", body.Message)
	}

	rr = serve(r, http.MethodPost, "/greet", `{not json`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

// TestTimeout tests that slow handlers are answered with 408
func TestTimeout(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddRawCustomPlugin(http.MethodGet, "/slow", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		select {
		case <-c.Ctx().Done():
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
		return nil
	}, WithTimeout(20*time.Millisecond))

	rr := serve(r, http.MethodGet, "/slow", "", nil)
	if rr.Code != http.StatusRequestTimeout {
		t.Errorf("Expected status code %d, got %d", http.StatusRequestTimeout, rr.Code)
	}
}

// TestPanicRecovery tests that a panicking handler is answered with 500
func TestPanicRecovery(t *testing.T) {
	r := newTestRouter(RouterConfig{})
	r.AddRawCustomPlugin(http.MethodGet, "/panic", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		panic("boom")
	})

	rr := serve(r, http.MethodGet, "/panic", "", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

// TestRateLimitByIdentity tests that rate limits are counted per user
func TestRateLimitByIdentity(t *testing.T) {
	r := newTestRouter(RouterConfig{
		GlobalRateLimit: &middleware.RateLimitConfig{BucketName: "global", Limit: 1, Window: time.Minute},
	})
	r.AddRawCustomPlugin(http.MethodGet, "/limited", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		w.WriteHeader(http.StatusOK)
		return nil
	})

	if rr := serve(r, http.MethodGet, "/limited", "", map[string]string{"miauserid": "a"}); rr.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}
	rr := serve(r, http.MethodGet, "/limited", "", map[string]string{"miauserid": "a"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status code %d, got %d", http.StatusTooManyRequests, rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected a Retry-After header")
	}
	if rr := serve(r, http.MethodGet, "/limited", "", map[string]string{"miauserid": "b"}); rr.Code != http.StatusOK {
		t.Errorf("Expected another user to be served, got %d", rr.Code)
	}
}

// TestSubRouters tests path prefixes and sub-router overrides
func TestSubRouters(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, req)
			})
		}
	}

	r := newTestRouter(RouterConfig{
		GlobalTimeout: time.Second,
		Middlewares:   []Middleware{mw("global")},
		SubRouters: []SubRouterConfig{{
			PathPrefix:      "/api/v1",
			TimeoutOverride: 20 * time.Millisecond,
			Middlewares:     []Middleware{mw("sub")},
			Routes: []RouteConfig{
				{
					Path:    "/items/:id",
					Methods: []string{http.MethodGet},
					Handler: func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
						common.WriteJSON(w, http.StatusOK, map[string]string{"id": c.Param("id")})
						return nil
					},
					Middlewares: []Middleware{mw("route")},
				},
				{
					Path:    "/slow",
					Methods: []string{http.MethodGet},
					Handler: func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
						<-c.Ctx().Done()
						return nil
					},
				},
			},
		}},
	})

	rr := serve(r, http.MethodGet, "/api/v1/items/42", "", nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"id":"42"}` {
		t.Errorf("Unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if strings.Join(order, ",") != "global,sub,route" {
		t.Errorf("Expected middleware order global,sub,route, got %v", order)
	}

	if rr := serve(r, http.MethodGet, "/api/v1/slow", "", nil); rr.Code != http.StatusRequestTimeout {
		t.Errorf("Expected the sub-router timeout, got %d", rr.Code)
	}
}

// TestShutdown tests that the router drains in-flight requests and rejects new ones
func TestShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	r := newTestRouter(RouterConfig{})
	r.AddRawCustomPlugin(http.MethodGet, "/wait", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
		return nil
	})
	r.AddRawCustomPlugin(http.MethodGet, "/fast", func(c *request.Context, w http.ResponseWriter, req *http.Request) error {
		w.WriteHeader(http.StatusOK)
		return nil
	})

	done := make(chan int, 1)
	go func() {
		done <- serve(r, http.MethodGet, "/wait", "", nil).Code
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded while a request is in flight, got %v", err)
	}

	if rr := serve(r, http.MethodGet, "/fast", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status code %d after shutdown, got %d", http.StatusServiceUnavailable, rr.Code)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("Expected the in-flight request to complete, got %d", code)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}

// TestSettingsDefaults tests that the router hands its logger to handler contexts
func TestSettingsDefaults(t *testing.T) {
	logger := zap.NewNop()
	r := NewRouter(RouterConfig{Logger: logger})
	if r.Settings() == nil || r.Settings().Logger != logger {
		t.Error("Expected the router logger in default settings")
	}
	if r.Settings().Headers.UserIDHeaderKey != "miauserid" {
		t.Errorf("Expected default header names, got %+v", r.Settings().Headers)
	}

	custom := request.DefaultSettings()
	custom.Logger = nil
	custom.Headers.UserIDHeaderKey = "x-user"
	r = NewRouter(RouterConfig{Logger: logger, Settings: custom})
	if r.Settings().Logger != logger || r.Settings().Headers.UserIDHeaderKey != "x-user" {
		t.Errorf("Unexpected settings %+v", r.Settings())
	}
	if custom.Logger != nil {
		t.Error("Expected caller settings to be left untouched")
	}
}
