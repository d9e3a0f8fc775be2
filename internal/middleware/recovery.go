package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/jsa498/digitalmarketing/pkg/apierror"
	"github.com/sirupsen/logrus"
)

// Recovery turns handler panics into 500 responses.
func Recovery(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(logrus.Fields{
						"panic":      err,
						"path":       r.URL.Path,
						"request_id": GetRequestID(r.Context()),
					}).Errorf("PANIC recovered\n%s", debug.Stack())

					writeError(w, apierror.InternalError("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
