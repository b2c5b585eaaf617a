package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/safetrack/fieldsign/internal/server/auth"
)

type contextKey string

const deviceIDKey contextKey = "deviceID"

// authMiddleware requires a valid bearer token on every API call and places
// the device id into the request context. With an empty secret the check is
// disabled, which is only acceptable in development setups.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secretKey) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		deviceID, err := auth.GetDeviceIDFromToken(tokenString, s.secretKey)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceID extracts the authenticated device id, empty when auth is
// disabled.
func deviceID(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDKey).(string)
	return id
}
