package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xinkaiwang/swmr/libs/xklib/kcommon"
	"github.com/xinkaiwang/swmr/libs/xklib/kerror"
	"github.com/xinkaiwang/swmr/libs/xklib/klogging"
	"github.com/xinkaiwang/swmr/services/prefsvc/api"
)

// ErrorHandlingMiddleware turns a handler panic into a JSON error with the Kerror's HTTP code.
func ErrorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		startMs := kcommon.GetMonoTimeMs()
		defer func() {
			elapsedMs := kcommon.GetMonoTimeMs() - startMs
			if err := recover(); err != nil {
				var ke *kerror.Kerror
				switch v := err.(type) {
				case *kerror.Kerror:
					ke = v
				case error:
					ke = kerror.Wrap(v, "InternalServerError", "an unexpected error occurred", false).
						WithErrorCode(kerror.EC_UNKNOWN)
				default:
					ke = kerror.Create("UnknownPanic", "unexpected panic with non-error value").
						WithErrorCode(kerror.EC_UNKNOWN).
						With("panic_value", v)
				}
				httpCode := ke.ErrorCode.ToHttpErrorCode()
				logger := klogging.Info(r.Context())
				if httpCode >= 500 {
					logger = klogging.Error(r.Context())
				}
				logger.With("elapsedMs", elapsedMs).With("path", r.URL.Path).With("method", r.Method).
					WithError(ke).Log("RequestFailed", "")

				w.WriteHeader(httpCode)
				json.NewEncoder(w).Encode(&api.ErrorResponse{
					Error: ke.Type,
					Msg:   ke.Msg,
					Code:  string(ke.ErrorCode),
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
