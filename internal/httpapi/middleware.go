package httpapi

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"exam-app/internal/auth"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	maxLogBytes  int
	bytesWritten int
	logBody      bytes.Buffer
	truncated    bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	written, err := r.ResponseWriter.Write(p)
	r.bytesWritten += written

	if remaining := r.maxLogBytes - r.logBody.Len(); remaining > 0 {
		chunk := p[:written]
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
			r.truncated = true
		}
		r.logBody.Write(chunk)
	} else if written > 0 {
		r.truncated = true
	}
	return written, err
}

func requestLogger(maxLogBytes int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				maxLogBytes:    maxLogBytes,
			}

			next.ServeHTTP(recorder, r)

			level := zerolog.InfoLevel
			if recorder.statusCode >= http.StatusInternalServerError {
				level = zerolog.ErrorLevel
			} else if recorder.statusCode >= http.StatusBadRequest {
				level = zerolog.WarnLevel
			}

			event := log.WithLevel(level).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.statusCode).
				Int("bytes", recorder.bytesWritten).
				Dur("duration", time.Since(start))
			if zerolog.GlobalLevel() <= zerolog.DebugLevel {
				event = event.Str("body", recorder.logBody.String()).Bool("truncated", recorder.truncated)
			}
			event.Msg("request")
		})
	}
}

// authenticate requires a valid bearer token and stores the caller's
// identity in the request context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		if a.tokens == nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}

		identity, err := a.tokens.Parse(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFrom(r.Context())
			if !ok || identity.Role != role {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
