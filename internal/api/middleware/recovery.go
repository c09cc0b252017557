package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/vidresolve/internal/api/response"
)

// Recovery turns handler panics into a 500 envelope. The panic is logged with
// its stack and, when Sentry is configured, reported with the request attached.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			reqID := chimw.GetReqID(r.Context())
			slog.Error("panic recovered",
				"error", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
			)

			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(r)
			hub.Scope().SetTag("request_id", reqID)
			hub.Recover(rec)

			response.Error(w, http.StatusInternalServerError,
				response.CodeInternal, "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
