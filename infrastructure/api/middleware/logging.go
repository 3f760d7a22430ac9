// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// bodyLogLimit caps how much of a request body a log record carries.
const bodyLogLimit = 4096

// Header names worth echoing into the access log; everything else
// (credentials included) is deliberately dropped.
var (
	loggedRequestHeaders  = []string{"Content-Type", "Accept", "User-Agent", "X-Forwarded-For", "Referer"}
	loggedResponseHeaders = []string{"Content-Type", "Cache-Control", "Location", "Retry-After"}
)

// Logging returns an access-log middleware. Each completed request emits
// one record whose level follows the response status: 5xx is an error,
// 4xx a warning, everything else info.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			body := snapshotBody(r)

			defer func() {
				logger.LogAttrs(r.Context(), statusLevel(ww.Status()), "request completed",
					accessAttrs(r, ww, body, time.Since(started))...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func accessAttrs(r *http.Request, ww chimiddleware.WrapResponseWriter, body string, elapsed time.Duration) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", ww.Status()),
		slog.Int("bytes", ww.BytesWritten()),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if q := r.URL.RawQuery; q != "" {
		attrs = append(attrs, slog.String("query", q))
	}
	if body != "" {
		attrs = append(attrs, slog.String("body", body))
	}
	for _, name := range loggedRequestHeaders {
		if v := r.Header.Get(name); v != "" {
			attrs = append(attrs, slog.String("req_"+attrKey(name), v))
		}
	}
	for _, name := range loggedResponseHeaders {
		if v := ww.Header().Get(name); v != "" {
			attrs = append(attrs, slog.String("resp_"+attrKey(name), v))
		}
	}
	return attrs
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// snapshotBody reads up to bodyLogLimit bytes of a textual request body
// for logging, re-stitching the body so the downstream handler still
// sees the full stream.
func snapshotBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody || !textualContent(r.Header.Get("Content-Type")) {
		return ""
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, bodyLogLimit+1))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), r.Body))

	if len(head) > bodyLogLimit {
		return string(head[:bodyLogLimit]) + "...(truncated)"
	}
	return string(head)
}

var textualPrefixes = []string{
	"application/json",
	"application/xml",
	"application/x-www-form-urlencoded",
	"text/",
}

func textualContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	contentType = strings.ToLower(contentType)
	for _, p := range textualPrefixes {
		if strings.HasPrefix(contentType, p) {
			return true
		}
	}
	return false
}

func attrKey(header string) string {
	return strings.ReplaceAll(strings.ToLower(header), "-", "_")
}
