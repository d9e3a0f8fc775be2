package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/jsa498/digitalmarketing/internal/identity"
	"github.com/jsa498/digitalmarketing/pkg/apierror"
	"github.com/sirupsen/logrus"
)

// UserIDKey is the context key for the resolved user id.
const UserIDKey contextKey = "user_id"

// NewIdentityMiddleware resolves the bearer token of each request into a user id
// and rejects requests without a valid one. The resolver is passed via closure.
func NewIdentityMiddleware(resolver identity.Resolver, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := identity.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use Authorization: Bearer <token>."))
				return
			}

			userID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrInvalidToken) {
					writeError(w, apierror.Unauthorized("Invalid or expired token"))
					return
				}
				log.WithError(err).WithField("request_id", GetRequestID(r.Context())).Warn("identity lookup failed")
				writeError(w, apierror.ServiceUnavailable("identity service unavailable"))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves the resolved user id from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}
