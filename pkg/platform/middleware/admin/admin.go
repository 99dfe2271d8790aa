package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "petregistry/pkg/domain-errors"
	"petregistry/pkg/platform/httputil"
	"petregistry/pkg/requestcontext"
)

// RequireAdminToken guards operational endpoints (expiry sweep, batch code
// generation) with a shared X-Admin-Token. Admin callers act as "system".
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			// constant-time compare
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			ctx = requestcontext.WithActor(ctx, "system", "system")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
