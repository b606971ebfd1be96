package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
)

const (
	filtered = "[FILTERED]"

	// bodies beyond this size are summarized instead of logged
	maxLoggedBody = 4 << 10
)

// redactedKeys are matched case-insensitively against header, query and JSON keys.
var redactedKeys = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"x-api-key":     {},
	"token":         {},
	"jti":           {},
	"password_hash": {},
	"secret":        {},
}

// redactedSuffixes catch the variants: new_password, reset_token, api_key, ...
var redactedSuffixes = []string{"password", "_token", "_secret", "_key"}

func LoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())

			logger.InfoContext(r.Context(), "incoming request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", filterSensitiveQuery(r.URL.Query()),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", filterSensitiveHeaders(r.Header),
				"body", filterSensitiveBody(peekBody(r)),
			)

			rec := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			attrs := []any{
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", rec.size,
			}
			// error bodies carry the AppError code, success bodies may carry tokens
			if status >= 400 {
				attrs = append(attrs, "body", filterSensitiveBody(rec.body.Bytes()))
			}
			logger.Log(r.Context(), level, "response", attrs...)
		})
	}
}

// peekBody reads the request body and puts an identical reader back.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	size   int
	body   bytes.Buffer
}

func (b *bodyRecorder) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	if room := maxLoggedBody + 1 - b.body.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.body.Write(p[:room])
	}
	n, err := b.ResponseWriter.Write(p)
	b.size += n
	return n, err
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := redactedKeys[lower]; ok {
		return true
	}
	for _, suffix := range redactedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func filterSensitiveQuery(query url.Values) string {
	for name := range query {
		if isSensitive(name) {
			query.Set(name, filtered)
		}
	}
	return query.Encode()
}

func filterSensitiveHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// filterSensitiveBody renders a JSON body with sensitive keys masked.
// Anything that is not JSON is reduced to its size.
func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxLoggedBody {
		return fmt.Sprintf("[%d+ bytes omitted]", maxLoggedBody)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Sprintf("[%d bytes non-JSON]", len(body))
	}

	out, err := json.Marshal(redact(doc))
	if err != nil {
		return "[unrenderable body]"
	}
	return string(out)
}

func redact(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, child := range node {
			if isSensitive(key) {
				node[key] = filtered
			} else {
				node[key] = redact(child)
			}
		}
		return node
	case []interface{}:
		for i, child := range node {
			node[i] = redact(child)
		}
		return node
	default:
		return v
	}
}
