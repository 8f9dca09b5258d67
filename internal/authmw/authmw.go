// Package authmw provides HTTP middleware for bearer token authentication of
// the report intake API.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

const bearerPrefix = "Bearer "

// ParseTokens splits a comma-separated token list, dropping blanks. Several
// tokens may be active at once so clients can rotate without downtime.
func ParseTokens(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// BearerTokens returns middleware that accepts a request only if its
// Authorization header carries one of tokens. Every configured token is
// compared in constant time, so response timing does not reveal which
// token, if any, was close.
func BearerTokens(logger log.Logger, tokens ...string) func(http.Handler) http.Handler {
	if len(tokens) == 0 {
		panic(xerrors.New("authmw: at least one token is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	expected := make([][]byte, len(tokens))
	for i, t := range tokens {
		expected[i] = []byte(t)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) {
				reject(w, "missing or malformed authorization header")
				return
			}
			got := []byte(auth[len(bearerPrefix):])

			match := -1
			for i, want := range expected {
				if subtle.ConstantTimeCompare(got, want) == 1 {
					match = i
				}
			}
			if match < 0 {
				logger.Warn(r.Context(), "rejected request with invalid token",
					"path", r.URL.Path, "remote_addr", r.RemoteAddr)
				reject(w, "invalid token")
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int("sentinel.auth.token_index", match))
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="sentinel"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
