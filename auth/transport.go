package auth

import "net/http"

// credentialHeaders are the only headers forwarded to authenticators.
var credentialHeaders = []string{"Authorization", DefaultAPIKeyHeader}

// WithAuthHeaders is HTTP middleware that copies credential headers into the
// context so the tool gateway can authenticate without seeing the request.
//
// Usage:
//
//	r.With(auth.WithAuthHeaders).Post("/v1/tools/{tool}", handler)
func WithAuthHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := make(map[string][]string, len(credentialHeaders))
		for _, name := range credentialHeaders {
			if values := r.Header.Values(name); len(values) > 0 {
				headers[name] = values
			}
		}
		ctx := WithHeaders(r.Context(), headers)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
