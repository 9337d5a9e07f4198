package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/osei-labs/marketplace-backend/pkg/logger"
)

// HeaderRequestID is honored when the caller supplies an id, echoed back
// otherwise generated.
const HeaderRequestID = "X-Request-Id"

// RequestID tags every request and its log entries with a correlation id.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
