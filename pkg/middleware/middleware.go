// Package middleware provides the HTTP middleware components used by the SPlugin router.
package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Suhaibinator/SPlugin/pkg/common"
	"github.com/Suhaibinator/SPlugin/pkg/headers"
)

// Use the Middleware type from the common package
type Middleware = common.Middleware

// Chain chains multiple middlewares together
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		return common.NewMiddlewareChain(middlewares...).Then(next)
	}
}

// Recovery is a middleware that recovers from panics
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Panic recovered",
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("request_id", GetRequestID(r)),
					)

					common.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Logging is a middleware that logs requests together with the caller identity
// decoded from the identity headers named by hc.
func Logging(logger *zap.Logger, hc headers.Config) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response writer that captures the status code
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", duration),
			}
			if id := GetRequestID(r); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if userID := headers.DecodeUserID(r.Header.Get(hc.UserIDHeaderKey)); userID != nil {
				fields = append(fields, zap.String("user_id", *userID))
			}
			if clientType := headers.DecodeClientType(r.Header.Get(hc.ClientTypeHeaderKey)); clientType != nil {
				fields = append(fields, zap.String("client_type", *clientType))
			}

			// Use appropriate log level based on status code and duration
			switch {
			case rw.statusCode >= 500:
				logger.Error("Server error", append(fields, zap.String("client_ip", ClientIP(r)))...)
			case rw.statusCode >= 400:
				logger.Warn("Client error", fields...)
			case duration > time.Second:
				logger.Warn("Slow request", fields...)
			default:
				// Normal requests at Debug level to avoid log spam
				logger.Debug("Request", fields...)
			}
		})
	}
}

// MaxBodySize is a middleware that limits the size of the request body
func MaxBodySize(maxSize int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxSize > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout is a middleware that sets a timeout for the request.
// When the deadline passes before the handler has written anything,
// a 408 error body is sent and later writes of the handler are dropped.
func Timeout(timeout time.Duration, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			wrappedW := newTimeoutResponseWriter(w)

			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						panicked <- rec
					}
				}()
				next.ServeHTTP(wrappedW, r)
				close(done)
			}()

			select {
			case <-done:
				wrappedW.mu.Lock()
				defer wrappedW.mu.Unlock()
				if !wrappedW.wroteHeader {
					copyHeader(w.Header(), wrappedW.h)
				}
				return
			case rec := <-panicked:
				// Re-raise on the serving goroutine so Recovery sees it
				panic(rec)
			case <-ctx.Done():
				wrappedW.mu.Lock()
				defer wrappedW.mu.Unlock()
				wrappedW.timedOut = true
				if wrappedW.wroteHeader {
					return
				}
				logger.Error("Request timed out",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("timeout", timeout),
					zap.String("request_id", GetRequestID(r)),
				)
				common.WriteError(w, http.StatusRequestTimeout, "Request Timeout")
			}
		})
	}
}

// timeoutResponseWriter serializes writes between the handler goroutine and
// the timeout path. The handler gets its own header map, copied to the real
// writer when the handler writes its header.
type timeoutResponseWriter struct {
	http.ResponseWriter
	h           http.Header
	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func newTimeoutResponseWriter(w http.ResponseWriter) *timeoutResponseWriter {
	return &timeoutResponseWriter{ResponseWriter: w, h: make(http.Header)}
}

func (rw *timeoutResponseWriter) Header() http.Header { return rw.h }

// writeHeaderLocked must be called with mu held.
func (rw *timeoutResponseWriter) writeHeaderLocked(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	copyHeader(rw.ResponseWriter.Header(), rw.h)
	rw.ResponseWriter.WriteHeader(statusCode)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
}

func (rw *timeoutResponseWriter) WriteHeader(statusCode int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timedOut {
		return
	}
	rw.writeHeaderLocked(statusCode)
}

func (rw *timeoutResponseWriter) Write(b []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	rw.writeHeaderLocked(http.StatusOK)
	return rw.ResponseWriter.Write(b)
}

func (rw *timeoutResponseWriter) Flush() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timedOut {
		return
	}
	rw.writeHeaderLocked(http.StatusOK)
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// responseWriter is a wrapper around http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader captures the status code and calls the underlying ResponseWriter.WriteHeader
func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter.Write
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Flush calls the underlying ResponseWriter.Flush if it implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
