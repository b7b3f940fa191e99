package httpserver

import (
	"crypto/subtle"
	"net/http"

	apierrors "github.com/coderomm/Xolana/internal/errors"
)

// adminMetricsAuth is middleware that protects the /metrics endpoint with an
// API key. If no key is configured, the endpoint is accessible without
// authentication. Otherwise requests must include an
// "Authorization: Bearer {key}" header.
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			expected := "Bearer " + apiKey
			header := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(header), []byte(expected)) != 1 {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "Invalid or missing admin API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
