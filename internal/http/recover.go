package http

import (
	"fmt"
	"net/http"

	"mgnregs/internal/log"
)

// recoverer turns a panic anywhere below it into a server_error response.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Recovered panic",
				"panic", rec,
				log.FieldErrorType, log.ErrorTypeInternal)
			_ = writeJSON(w, http.StatusInternalServerError, messageError{Error: codeServerError, Message: fmt.Sprint(rec)})
		}()
		next.ServeHTTP(w, r)
	})
}
