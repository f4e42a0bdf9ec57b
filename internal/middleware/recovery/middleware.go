package recovery

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"wsbridge/internal/middleware"
	"wsbridge/pkg/errors"
)

// Config holds recovery middleware configuration
type Config struct {
	// StackTrace enables stack trace logging
	StackTrace bool
	// PanicHandler is called when a panic occurs (optional)
	PanicHandler func(r *http.Request, recovered any, stack []byte)
}

// Middleware creates panic recovery middleware. A recovered panic is logged
// and answered with a JSON INTERNAL_ERROR; http.ErrAbortHandler is re-raised.
func Middleware(config Config, logger *slog.Logger) middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				logger.Error("panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"method", r.Method,
				)
				if config.StackTrace {
					logger.Error("stack trace", "stack", string(stack))
				}
				if config.PanicHandler != nil {
					config.PanicHandler(r, rec, stack)
				}

				errors.WriteJSON(w, errors.NewError(errors.KindInternal, "Internal server error").
					WithDetail("panic", fmt.Sprintf("%v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Default creates recovery middleware with stack traces enabled
func Default(logger *slog.Logger) middleware.Middleware {
	return Middleware(Config{StackTrace: true}, logger)
}
