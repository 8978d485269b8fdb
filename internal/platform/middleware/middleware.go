// Package middleware carries the HTTP middleware chain shared by every
// route: request ids, panic recovery, access logging, and the
// request-scoped values services read through requestcontext.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	id "vitaex/pkg/domain"
	"vitaex/pkg/requestcontext"
)

const (
	headerRequestID = "X-Request-ID"
	headerActor     = "X-Actor-ID"
)

// RequestID stamps every request with an id, honoring one supplied by the
// caller so traces line up across services.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(headerRequestID, rid)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(r.Context(), actorOf(r))))
	})
}

func actorOf(r *http.Request) string {
	if a := r.Header.Get(headerActor); a != "" {
		return a
	}
	return "api"
}

// RequestTime fixes one timestamp per request so a handler's writes all
// carry the same clock reading.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery converts handler panics into 500s instead of dropped connections.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "handler panic",
						"path", r.URL.Path,
						"panic", rec,
					)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logger emits one access log line per request.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Subject lifts a subject id path or query value into the context when the
// route carries one. Handlers that need it still validate explicitly.
func Subject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := r.URL.Query().Get("subject_id"); s != "" {
			r = r.WithContext(requestcontext.WithSubjectID(r.Context(), id.SubjectID(s)))
		}
		next.ServeHTTP(w, r)
	})
}
