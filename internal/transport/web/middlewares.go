package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/staybook/internal/booking"
)

const headerActor = "X-Actor"

var tracer = otel.Tracer("github.com/avstrong/staybook/internal/transport/web")

func (s *Server) tracingMiddleware() func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.request_id", middleware.GetReqID(r.Context())),
				),
			)
			defer span.End()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) actorMiddleware() func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := r.Header.Get(headerActor); actor != "" {
				r = r.WithContext(booking.NewContextWithActor(r.Context(), actor))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) loggerMiddleware() func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now().UTC()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			s.l.WithContext(r.Context()).WithFields(map[string]any{
				"type":       "access",
				"method":     r.Method,
				"url":        r.URL.Path,
				"proto":      r.Proto,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"user_agent": r.Header.Get("User-Agent"),
				"request_id": middleware.GetReqID(r.Context()),
				"latency":    time.Since(start).String(),
			}).LogInfo("Request served")
		})
	}
}

func (s *Server) recoverMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if re := recover(); re != nil {
					if re == http.ErrAbortHandler { //nolint:errorlint,goerr113
						panic(re)
					}

					err, ok := re.(error)
					if !ok {
						err = fmt.Errorf("%v: %w", re, ErrPanic)
					}

					s.l.WithContext(r.Context()).WithFields(map[string]any{"type": "panic"}).LogErrorf("%v", err)
					writeError(w, http.StatusInternalServerError, "internal", http.StatusText(http.StatusInternalServerError))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
